package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/nfeflow/internal/config"
)

// NewUnlockCmd creates the unlock command. It removes the run lock without
// checking its owner, for recovery after a crashed run.
func NewUnlockCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Force-release the run lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return unlock(cmd.Context(), opts)
		},
	}
}

func unlock(ctx context.Context, opts *Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	logger := slog.Default()

	var cl closers
	defer cl.close(logger)

	var key []byte
	if cfg.Lock.Backend == "firestore" {
		if key, err = googleKey(ctx, cfg); err != nil {
			return err
		}
	}
	locker, err := newLocker(ctx, cfg, key, logger, &cl)
	if err != nil {
		return err
	}
	if err := locker.Release(ctx); err != nil {
		return fmt.Errorf("releasing run lock: %w", err)
	}
	color.Green("Run lock released (%s)", cfg.Lock.Backend)
	return nil
}
