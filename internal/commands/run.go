package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/nfeflow/internal/alert"
	"github.com/dwsmith1983/nfeflow/internal/config"
	"github.com/dwsmith1983/nfeflow/internal/filetag"
	"github.com/dwsmith1983/nfeflow/internal/ledger"
	"github.com/dwsmith1983/nfeflow/internal/lock"
	"github.com/dwsmith1983/nfeflow/internal/logging"
	"github.com/dwsmith1983/nfeflow/internal/metrics"
	"github.com/dwsmith1983/nfeflow/internal/orchestrator"
)

// NewRunCmd creates the run command. It is also the root command's default
// action.
func NewRunCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fetch new invoices and drive them through every stage once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), opts)
		},
	}
}

func runOnce(ctx context.Context, opts *Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.Setup(cfg.Log, time.Now())
	if err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}
	defer func() { _ = closeLog() }()

	rec, shutdown, err := setupTelemetry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer shutdown()

	var cl closers
	defer cl.close(logger)

	key, err := googleKey(ctx, cfg)
	if err != nil {
		return err
	}
	locker, err := newLocker(ctx, cfg, key, logger, &cl)
	if err != nil {
		return err
	}
	store, err := newLedgerStore(ctx, cfg, key)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	src, err := newSource(ctx, cfg, key, &cl)
	if err != nil {
		return fmt.Errorf("opening document source: %w", err)
	}
	driver, err := newDriver(cfg, logger)
	if err != nil {
		return fmt.Errorf("configuring remote driver: %w", err)
	}
	cache, err := filetag.NewCache(cfg.CacheDir, logger)
	if err != nil {
		return err
	}
	dispatcher, err := alert.NewDispatcher(ctx, cfg.Alerts, logger)
	if err != nil {
		return fmt.Errorf("creating alert dispatcher: %w", err)
	}
	defer func() {
		if err := dispatcher.Close(); err != nil {
			logger.Warn("closing notifier sinks failed", "error", err)
		}
	}()

	runner, err := orchestrator.New(orchestrator.Deps{
		Source:   src,
		Cache:    cache,
		Ledger:   ledger.New(store, logger),
		Driver:   driver,
		Notifier: dispatcher,
		Policy:   cfg.Retry,
		Metrics:  rec,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	return lock.WithLock(ctx, locker, logger, func(ctx context.Context) error {
		rep, err := runner.Run(ctx)
		if err != nil {
			return err
		}
		if rep.Empty() {
			color.Cyan("Nothing to process")
		}
		return nil
	})
}

// setupTelemetry installs OTLP exporters when an endpoint is configured and
// otherwise records into the global no-op providers.
func setupTelemetry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*metrics.Recorder, func(), error) {
	noop := func() {}
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		return metrics.Global(), noop, nil
	}
	shutdown, err := metrics.Setup(ctx, cfg.ServiceName)
	if err != nil {
		return nil, noop, fmt.Errorf("configuring telemetry: %w", err)
	}
	return metrics.Global(), func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			logger.Warn("flushing telemetry failed", "error", err)
		}
	}, nil
}
