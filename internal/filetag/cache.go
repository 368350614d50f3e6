package filetag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/dwsmith1983/nfeflow/internal/retry"
	"github.com/dwsmith1983/nfeflow/pkg/types"
)

// Cache is the local directory of downloaded documents. The tag embedded in
// each filename is the durable record of local import progress.
type Cache struct {
	dir    string
	logger *slog.Logger
	rename func(oldpath, newpath string) error
	policy types.RetryPolicy
}

// Option configures a Cache.
type Option func(*Cache)

// WithRenameFunc replaces os.Rename, for tests that simulate a file held open
// by another process.
func WithRenameFunc(fn func(oldpath, newpath string) error) Option {
	return func(c *Cache) { c.rename = fn }
}

// WithRetryPolicy overrides the policy applied to contended renames.
func WithRetryPolicy(p types.RetryPolicy) Option {
	return func(c *Cache) { c.policy = p }
}

// NewCache opens dir, creating it if needed.
func NewCache(dir string, logger *slog.Logger, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		dir:    dir,
		logger: logger,
		rename: os.Rename,
		policy: retry.RenamePolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Path returns the absolute location of a cached entry.
func (c *Cache) Path(e Entry) string { return filepath.Join(c.dir, e.Name) }

// Entries lists every cached XML document sorted by filename.
func (c *Cache) Entries() ([]Entry, error) {
	dirents, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("listing cache: %w", err)
	}
	var out []Entry
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		if e, ok := Parse(d.Name()); ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Lookup returns the cached entry for an untagged base name in whatever
// state it currently is. Tagged entries win over an untagged duplicate.
func (c *Cache) Lookup(base string) (Entry, bool, error) {
	entries, err := c.Entries()
	if err != nil {
		return Entry{}, false, err
	}
	var found Entry
	ok := false
	for _, e := range entries {
		if !strings.EqualFold(e.Base, base) {
			continue
		}
		if !ok || found.Tag == Untagged {
			found, ok = e, true
		}
	}
	return found, ok, nil
}

// PendingForImport lists untagged files. An untagged file whose base already
// exists under a tag is skipped so it can never be imported twice.
func (c *Cache) PendingForImport() ([]Entry, error) {
	entries, err := c.Entries()
	if err != nil {
		return nil, err
	}
	tagged := make(map[string]bool)
	for _, e := range entries {
		if e.Tag != Untagged {
			tagged[strings.ToLower(e.Base)] = true
		}
	}
	var out []Entry
	for _, e := range entries {
		if e.Tag != Untagged {
			continue
		}
		if tagged[strings.ToLower(e.Base)] {
			c.logger.Warn("untagged duplicate of a tagged document skipped", "file", e.Name)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Recoverable lists files left in a temporary tag by an interrupted run.
func (c *Cache) Recoverable() ([]Entry, error) {
	entries, err := c.Entries()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range entries {
		if e.Tag.IsTemp() {
			out = append(out, e)
		}
	}
	return out, nil
}

// MarkImported moves an untagged entry to the temporary tag matching outcome.
func (c *Cache) MarkImported(ctx context.Context, e Entry, outcome types.Outcome) (Entry, error) {
	to, err := TagFor(outcome)
	if err != nil {
		return e, err
	}
	return c.move(ctx, e, to)
}

// Finalize moves every temporarily tagged entry to the final tag and returns
// the finalised entries. Per-file failures are logged and skipped.
func (c *Cache) Finalize(ctx context.Context) ([]Entry, error) {
	temps, err := c.Recoverable()
	if err != nil {
		return nil, err
	}
	var done []Entry
	for _, e := range temps {
		moved, err := c.move(ctx, e, Done)
		if err != nil {
			c.logger.Warn("finalising cached document failed", "file", e.Name, "error", err)
			continue
		}
		done = append(done, moved)
	}
	return done, nil
}

func (c *Cache) move(ctx context.Context, e Entry, to Tag) (Entry, error) {
	if err := Transition(e.Tag, to); err != nil {
		return e, err
	}
	next := e
	next.Name = Tagged(e.Base, to)
	next.Tag = to

	oldpath, newpath := c.Path(e), c.Path(next)
	err := retry.Do(ctx, c.policy, classifyRename, func() error {
		return c.rename(oldpath, newpath)
	})
	if err != nil {
		return e, fmt.Errorf("renaming %s to %s: %w", e.Name, next.Name, err)
	}
	c.logger.Debug("cached document retagged", "from", e.Name, "to", next.Name)
	return next, nil
}

// Another process (antivirus, editor, sync client) holding the file surfaces
// as a permission or busy error; those are retried.
func classifyRename(err error) types.FailureCategory {
	if errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.EBUSY) {
		return types.FailureTransient
	}
	return types.FailurePermanent
}
