// Package source defines the remote document folder the pipeline pulls
// invoices from, and the fetch and mirror steps that keep it in step with the
// local cache.
package source

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/dwsmith1983/nfeflow/internal/filetag"
)

// ErrNotFound is returned by backends when a file does not exist.
var ErrNotFound = errors.New("remote file not found")

// RemoteFile identifies a file in the remote folder.
type RemoteFile struct {
	ID   string
	Name string
}

// Filter narrows a listing.
type Filter struct {
	Suffix        string // case-insensitive, e.g. ".xml"
	ExcludeTagged bool   // skip names carrying any lifecycle tag
}

// Match reports whether name passes the filter.
func (f Filter) Match(name string) bool {
	if f.Suffix != "" && !strings.HasSuffix(strings.ToLower(name), strings.ToLower(f.Suffix)) {
		return false
	}
	if f.ExcludeTagged {
		e, ok := filetag.Parse(name)
		if ok && e.Tag != filetag.Untagged {
			return false
		}
	}
	return true
}

// Source is a remote folder of documents.
type Source interface {
	List(ctx context.Context, f Filter) ([]RemoteFile, error)
	Fetch(ctx context.Context, file RemoteFile) (io.ReadCloser, error)
	Rename(ctx context.Context, file RemoteFile, newName string) error
	// Lookup finds a file by exact name; ok is false when it is absent.
	Lookup(ctx context.Context, name string) (RemoteFile, bool, error)
}
