package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/nfeflow/internal/config"
	"github.com/dwsmith1983/nfeflow/internal/ledger"
	"github.com/dwsmith1983/nfeflow/internal/logging"
	"github.com/dwsmith1983/nfeflow/internal/source"
)

// NewSelftestCmd creates the selftest command.
func NewSelftestCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Check credentials by stamping the ledger heartbeat and listing the source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return selftest(cmd.Context(), opts)
		},
	}
}

func selftest(ctx context.Context, opts *Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	logger, closeLog, err := logging.Setup(cfg.Log, time.Now())
	if err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}
	defer func() { _ = closeLog() }()

	var cl closers
	defer cl.close(logger)

	key, err := googleKey(ctx, cfg)
	if err != nil {
		return err
	}

	store, err := newLedgerStore(ctx, cfg, key)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	now := time.Now()
	if err := ledger.New(store, logger).Heartbeat(ctx, now); err != nil {
		return err
	}
	color.Green("Ledger heartbeat written at %s", now.Format(ledger.HeartbeatLayout))

	src, err := newSource(ctx, cfg, key, &cl)
	if err != nil {
		return fmt.Errorf("opening document source: %w", err)
	}
	if src == nil {
		color.Cyan("Document source disabled")
		return nil
	}
	files, err := src.List(ctx, source.Filter{Suffix: ".xml", ExcludeTagged: true})
	if err != nil {
		return fmt.Errorf("listing document source: %w", err)
	}
	color.Green("Document source reachable: %d new documents", len(files))
	return nil
}
