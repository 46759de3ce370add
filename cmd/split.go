package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kbukum/bytepipe/config"
	"github.com/kbukum/bytepipe/logger"
	"github.com/kbukum/bytepipe/stream"
)

const outputBufferSize = 64 * 1024

// newSplitCommand returns the command that re-frames a file or stdin.
func newSplitCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split [file]",
		Short: "Split input into records and write them with a new terminator",
		Long: `Split reads a file, or stdin when no file or "-" is given, splits it on the
delimiter and writes every record to stdout followed by the output delimiter.

Delimiters accept Go escape sequences, e.g. '\r\n' or '\x00'.`,
		Example: `  bytepipe split --delimiter '\r\n' --output-delimiter '\n' access.log
  cat data.bin | bytepipe split --delimiter '\x00' --max-record-size 1MB --checksum`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSplit(cmd, v, args)
		},
	}
	addStreamFlags(cmd)
	cmd.Flags().Bool("checksum", false, "print the BLAKE2b-256 digest of the output to stderr")
	return cmd
}

// addStreamFlags adds the framing and buffering flags shared by split and serve.
func addStreamFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	flags.StringP("delimiter", "d", "", `record delimiter (default "\n")`)
	flags.StringP("output-delimiter", "o", "", "terminator written after every record (default: the delimiter)")
	flags.String("policy", "", "trailing partial policy: emit or require-delimiter (default emit)")
	flags.String("high-water-mark", "", "bytes a stage buffers before signalling backpressure (default 64KB)")
	flags.String("low-water-mark", "", "buffered bytes at which a saturated stage accepts input again (default 0)")
	flags.String("read-size", "", "bytes requested from the input per read (default 16KB)")
	flags.String("max-record-size", "", "fail on records larger than this, 0 for unbounded (default 0)")
	flags.String("rate", "", "limit output to this many bytes per second, 0 for unlimited")
}

func runSplit(cmd *cobra.Command, v *viper.Viper, args []string) error {
	cfg, log, err := loadConfig(cmd, v)
	if err != nil {
		return err
	}
	withChecksum, err := cmd.Flags().GetBool("checksum")
	if err != nil {
		return err
	}

	in, closeIn, err := openInput(cmd, args)
	if err != nil {
		return err
	}
	defer closeIn()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := bufio.NewWriterSize(cmd.OutOrStdout(), outputBufferSize)
	stages, digest, err := splitStages(&cfg.Stream, withChecksum)
	if err != nil {
		return err
	}

	p := stream.New(
		stream.FromReader(in, append(cfg.Stream.StageOptions(), stream.WithName("input"))...),
		stream.ToWriter(out, append(cfg.Stream.StageOptions(), stream.WithName("output"), stream.WithBorrow())...),
		stream.WithLogger(log.WithComponent("stream")),
	).Through(stages...)

	if err := p.Run(ctx); err != nil {
		return err
	}

	st := p.Stats()
	log.Debug("split complete", logger.Fields(
		"bytes_in", st.BytesRead,
		"bytes_out", st.BytesWritten,
		"chunks_out", st.ChunksWritten,
		"busy_waits", st.BusyWaits,
		"duration", st.Duration.String(),
	))
	if digest != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "blake2b-256 %s %d bytes\n", digest.Hex(), digest.Bytes())
	}
	return nil
}

// splitStages builds Split, Join and the optional Throttle and Checksum
// stages described by cfg.
func splitStages(cfg *config.StreamConfig, withChecksum bool) ([]*stream.Transform, *stream.Digest, error) {
	splitter, err := cfg.Splitter()
	if err != nil {
		return nil, nil, err
	}
	opts := cfg.StageOptions()
	stages := []*stream.Transform{
		stream.Split(splitter, opts...),
		stream.Join(cfg.OutputDelimiterBytes(), opts...),
	}
	if bps := cfg.BytesPerSecond(); bps > 0 {
		stages = append(stages, stream.Throttle(bps, opts...))
	}
	var digest *stream.Digest
	if withChecksum {
		var sum *stream.Transform
		sum, digest = stream.Checksum(opts...)
		stages = append(stages, sum)
	}
	return stages, digest, nil
}

func openInput(cmd *cobra.Command, args []string) (io.Reader, func(), error) {
	if len(args) == 0 || args[0] == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, nil, fmt.Errorf("opening input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
