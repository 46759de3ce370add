package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kbukum/bytepipe/config"
	"github.com/kbukum/bytepipe/logger"
	"github.com/kbukum/bytepipe/observability"
	"github.com/kbukum/bytepipe/server"
)

const meterName = "github.com/kbukum/bytepipe"

// newServeCommand returns the command that runs the HTTP front.
func newServeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve split and checksum pipelines over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, v)
		},
	}
	flags := cmd.Flags()

	flags.String("addr", "", "the host:port address to serve on (default localhost:8080)")
	flags.String("max-body-size", "", "reject request bodies larger than this, 0 for unbounded")
	flags.Bool("telemetry", false, "export traces and metrics over OTLP/HTTP")
	flags.String("otlp-endpoint", "", "the OTLP/HTTP collector host:port (default localhost:4318)")

	addStreamFlags(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, v *viper.Viper) error {
	cfg, log, err := loadConfig(cmd, v)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := initTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			log.WithError(err).Warn("telemetry shutdown failed")
		}
	}()

	meter := observability.Meter(meterName)
	metrics, err := observability.NewMetrics(meter)
	if err != nil {
		return err
	}
	streamMetrics, err := observability.NewStreamMetrics(meter)
	if err != nil {
		return err
	}

	srv := server.New(cfg, log,
		server.WithMetrics(metrics),
		server.WithStreamMetrics(streamMetrics),
	)
	log.Info("serving", logger.Fields(
		"addr", cfg.HTTP.Addr,
		"environment", cfg.Environment,
		"version", cfg.Version,
	))
	return srv.Run(ctx)
}

// initTelemetry installs OTLP trace and metric providers when enabled. The
// returned function flushes and stops them.
func initTelemetry(ctx context.Context, cfg *config.ServiceConfig) (func(context.Context) error, error) {
	if !cfg.Telemetry.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	tp, err := observability.InitTracer(ctx, cfg.Telemetry.TracerConfig(cfg.Name, cfg.Version, cfg.Environment))
	if err != nil {
		return nil, err
	}
	mp, err := observability.InitMeter(ctx, cfg.Telemetry.MeterConfig(cfg.Name, cfg.Version, cfg.Environment))
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
