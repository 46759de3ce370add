// Package cmd contains the commands of the bytepipe binary.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kbukum/bytepipe/config"
	"github.com/kbukum/bytepipe/logger"
)

const configFlag = "config"

// flagKeys maps flag names to config keys. Commands share flag names, so flags
// are bound when a command runs rather than when it is built.
var flagKeys = map[string]string{
	"debug":            "debug",
	"log-level":        "logging.level",
	"log-format":       "logging.format",
	"delimiter":        "stream.delimiter",
	"output-delimiter": "stream.output_delimiter",
	"policy":           "stream.trailing_partial_policy",
	"high-water-mark":  "stream.high_water_mark",
	"low-water-mark":   "stream.low_water_mark",
	"read-size":        "stream.read_size",
	"max-record-size":  "stream.max_record_size",
	"rate":             "stream.rate_limit",
	"addr":             "http.addr",
	"max-body-size":    "http.max_body_size",
	"telemetry":        "telemetry.enabled",
	"otlp-endpoint":    "telemetry.endpoint",
}

// NewRootCommand returns the bytepipe command. Subcommands read settings from
// flags, BYTEPIPE_* environment variables and a config file, in that order.
func NewRootCommand() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "bytepipe",
		Short: "Stream bytes and delimited records with bounded memory",
		Long: `bytepipe moves bytes from a source through transforms into a sink while
respecting backpressure at every stage.

It splits arbitrarily chunked input into delimiter-terminated records, re-emits
them with a new terminator and can serve the same pipelines over HTTP.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String(configFlag, "", "path to a config file (default: ./bytepipe.yml, ./config/bytepipe.yml)")
	flags.Bool("debug", false, "enable debug logging")
	flags.String("log-level", "", "log level: trace, debug, info, warn, error (default info)")
	flags.String("log-format", "", "log format: console or json (default console)")

	root.AddCommand(
		newSplitCommand(v),
		newServeCommand(v),
		newVersionCommand(),
	)
	return root
}

// mustBindPFlag binds a config key to a pflag and panics if the binding fails.
func mustBindPFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}

// loadConfig loads the service configuration and installs the loggers it
// describes. Logs go to stderr so stdout stays free for stream output.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.ServiceConfig, *logger.Logger, error) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			mustBindPFlag(v, key, f)
		}
	})
	path, err := cmd.Flags().GetString(configFlag)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(config.WithViper(v), config.WithConfigFile(path))
	if err != nil {
		return nil, nil, err
	}

	log := logger.NewWithWriter(&cfg.Logging, cfg.Name, cmd.ErrOrStderr())
	logger.SetGlobalLogger(log)
	logger.RegisterDefaults(log, "config", "stream", "server", "observability")
	return cfg, log, nil
}
