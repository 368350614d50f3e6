package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dwsmith1983/nfeflow/internal/filetag"
	"github.com/dwsmith1983/nfeflow/internal/ledger"
	"github.com/dwsmith1983/nfeflow/internal/nfe"
	"github.com/dwsmith1983/nfeflow/pkg/types"
)

// Fetcher downloads new documents from a Source into the local cache.
type Fetcher struct {
	src    Source
	cache  *filetag.Cache
	ledger *ledger.Ledger
	logger *slog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(src Source, cache *filetag.Cache, l *ledger.Ledger, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{src: src, cache: cache, ledger: l, logger: logger}
}

// FetchSummary counts what a fetch pass did.
type FetchSummary struct {
	Listed     int
	Downloaded int
	Repaired   int
}

// Fetch lists untagged remote XML files, downloads the ones the cache does
// not hold in any state and records them in the ledger. A remote file whose
// local copy is already finalised is renamed remotely. A listing failure is
// logged and the run continues with what is already cached.
func (f *Fetcher) Fetch(ctx context.Context) FetchSummary {
	var sum FetchSummary

	files, err := f.src.List(ctx, Filter{Suffix: ".xml", ExcludeTagged: true})
	if err != nil {
		f.logger.Warn("listing remote documents failed, continuing with local cache", "error", err)
		return sum
	}
	sum.Listed = len(files)

	for _, rf := range files {
		if ctx.Err() != nil {
			return sum
		}
		entry, ok := filetag.Parse(rf.Name)
		if !ok {
			continue
		}

		local, cached, err := f.cache.Lookup(entry.Base)
		if err != nil {
			f.logger.Warn("checking cache failed", "file", rf.Name, "error", err)
			continue
		}
		if cached {
			if local.Tag == filetag.Done && f.repair(ctx, rf, local) {
				sum.Repaired++
			}
			continue
		}

		path, err := f.download(ctx, rf, entry.Base)
		if err != nil {
			f.logger.Error("downloading document failed", "file", rf.Name, "error", err)
			continue
		}
		sum.Downloaded++
		f.logger.Info("document downloaded", "file", rf.Name)
		f.record(ctx, path, entry.ID)
	}
	return sum
}

func (f *Fetcher) repair(ctx context.Context, rf RemoteFile, local filetag.Entry) bool {
	if err := f.src.Rename(ctx, rf, local.Name); err != nil {
		f.logger.Warn("renaming finalised remote document failed", "file", rf.Name, "error", err)
		return false
	}
	f.logger.Info("remote document marked finalised", "file", rf.Name, "to", local.Name)
	return true
}

func (f *Fetcher) download(ctx context.Context, rf RemoteFile, name string) (string, error) {
	rc, err := f.src.Fetch(ctx, rf)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(f.cache.Dir(), ".download-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("closing %s: %w", name, err)
	}

	dest := filepath.Join(f.cache.Dir(), name)
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("placing %s: %w", name, err)
	}
	return dest, nil
}

// record upserts the ledger row under the identifier the stages will use.
func (f *Fetcher) record(ctx context.Context, path, fallbackID string) {
	id, date, err := nfe.Identify(path, fallbackID)
	if err != nil {
		f.logger.Warn("reading downloaded document failed", "path", path, "error", err)
	}

	row, err := f.ledger.FindOrCreateRow(ctx, id, date)
	if err != nil {
		f.logger.Warn("ledger upsert failed", "document", id, "error", err)
		return
	}
	if err := f.ledger.UpdateCell(ctx, row, types.ColFetched, true); err != nil {
		f.logger.Warn("ledger update failed", "document", id, "column", types.ColFetched.String(), "error", err)
	}
}

// Mirror renames the remote copy of each finalised entry, found by its
// pre-tag name, to the entry's final name. A missing remote file is taken
// as already finalised. Failures are warnings.
func Mirror(ctx context.Context, src Source, entries []filetag.Entry, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}
	renamed := 0
	for _, e := range entries {
		rf, found, err := src.Lookup(ctx, e.Base)
		if err != nil {
			logger.Warn("looking up remote document failed", "file", e.Base, "error", err)
			continue
		}
		if !found {
			logger.Debug("remote document already finalised", "file", e.Base)
			continue
		}
		if err := src.Rename(ctx, rf, e.Name); err != nil {
			logger.Warn("renaming remote document failed", "file", e.Base, "error", err)
			continue
		}
		renamed++
	}
	return renamed
}
