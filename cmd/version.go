package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbukum/bytepipe/version"
)

// newVersionCommand returns the command that prints build information.
func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the bytepipe version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.GetVersionInfo()
			out := cmd.OutOrStdout()

			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			if short, _ := cmd.Flags().GetBool("short"); short {
				_, err := fmt.Fprintln(out, info.Short())
				return err
			}
			_, err := fmt.Fprintf(out, "bytepipe %s %s\n", info.String(), info.GoVersion)
			return err
		},
	}
	cmd.Flags().Bool("short", false, "print only version-commit")
	cmd.Flags().Bool("json", false, "print build information as JSON")
	return cmd
}
