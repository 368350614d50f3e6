// Package commands implements the CLI subcommands for the nfeflow binary.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dwsmith1983/nfeflow/internal/actions"
	"github.com/dwsmith1983/nfeflow/internal/actions/httpdriver"
	"github.com/dwsmith1983/nfeflow/internal/actions/scripted"
	"github.com/dwsmith1983/nfeflow/internal/config"
	"github.com/dwsmith1983/nfeflow/internal/creds"
	"github.com/dwsmith1983/nfeflow/internal/ledger"
	"github.com/dwsmith1983/nfeflow/internal/ledger/sheets"
	"github.com/dwsmith1983/nfeflow/internal/ledger/xlsx"
	"github.com/dwsmith1983/nfeflow/internal/lock"
	"github.com/dwsmith1983/nfeflow/internal/source"
	"github.com/dwsmith1983/nfeflow/internal/source/drive"
	"github.com/dwsmith1983/nfeflow/internal/source/gcs"
)

const firestoreScope = "https://www.googleapis.com/auth/datastore"

// closers releases clients in reverse creation order.
type closers []func() error

func (c *closers) add(fn func() error) { *c = append(*c, fn) }

func (c closers) close(logger *slog.Logger) {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			logger.Warn("closing client failed", "error", err)
		}
	}
}

// googleKey loads the service-account key when a selected backend needs it.
func googleKey(ctx context.Context, cfg *config.Config) ([]byte, error) {
	if !cfg.NeedsGoogleCredentials() {
		return nil, nil
	}
	key, err := creds.Load(ctx, cfg.Credentials)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}
	return key, nil
}

func newLedgerStore(ctx context.Context, cfg *config.Config, key []byte) (ledger.Store, error) {
	switch cfg.Ledger.Backend {
	case "sheets":
		return sheets.New(ctx, cfg.Ledger.SpreadsheetID, cfg.Ledger.Sheet, creds.ClientOptions(key, sheets.Scope)...)
	case "xlsx":
		return xlsx.New(cfg.Ledger.Path, cfg.Ledger.Sheet)
	case "memory":
		return ledger.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported ledger backend: %s", cfg.Ledger.Backend)
	}
}

// newSource returns nil when fetching is disabled.
func newSource(ctx context.Context, cfg *config.Config, key []byte, cl *closers) (source.Source, error) {
	switch cfg.Source.Backend {
	case "drive":
		return drive.New(ctx, cfg.Source.FolderID, creds.ClientOptions(key, drive.Scope)...)
	case "gcs":
		client, err := storage.NewClient(ctx, creds.ClientOptions(key, storage.ScopeReadWrite)...)
		if err != nil {
			return nil, fmt.Errorf("creating storage client: %w", err)
		}
		cl.add(client.Close)
		return gcs.New(client, cfg.Source.Bucket, cfg.Source.Prefix)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported source backend: %s", cfg.Source.Backend)
	}
}

func newLocker(ctx context.Context, cfg *config.Config, key []byte, logger *slog.Logger, cl *closers) (lock.Locker, error) {
	switch cfg.Lock.Backend {
	case "file":
		return lock.NewFile(cfg.Lock.Path, lock.WithStaleAfter(cfg.Lock.StaleAfter), lock.WithLogger(logger)), nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.Lock.RedisAddr})
		cl.add(client.Close)
		return lock.NewRedis(client, cfg.Lock.Key, cfg.Lock.StaleAfter), nil
	case "firestore":
		client, err := firestore.NewClient(ctx, cfg.Lock.Project, creds.ClientOptions(key, firestoreScope)...)
		if err != nil {
			return nil, fmt.Errorf("creating firestore client: %w", err)
		}
		cl.add(client.Close)
		return lock.NewFirestore(client, cfg.Lock.Collection, cfg.Lock.Key, cfg.Lock.StaleAfter), nil
	default:
		return nil, fmt.Errorf("unsupported lock backend: %s", cfg.Lock.Backend)
	}
}

func newDriver(cfg *config.Config, logger *slog.Logger) (actions.Driver, error) {
	switch cfg.Remote.Driver {
	case "http":
		return httpdriver.New(httpdriver.Config{
			BaseURL:  cfg.Remote.URL,
			Username: cfg.Remote.Username,
			Password: cfg.Remote.Password,
			Timeout:  cfg.Remote.Timeout,
		}, nil, logger)
	case "scripted":
		sc, err := scripted.Load(cfg.Remote.Scenario)
		if err != nil {
			return nil, err
		}
		return scripted.New(sc), nil
	default:
		return nil, fmt.Errorf("unsupported remote driver: %s", cfg.Remote.Driver)
	}
}
