// Package gcs implements the document Source on a Cloud Storage bucket
// prefix, for suppliers that drop invoices into a bucket instead of Drive.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/dwsmith1983/nfeflow/internal/source"
)

// Compile-time interface satisfaction check.
var _ source.Source = (*Source)(nil)

// Source treats the objects directly under prefix as the document folder.
// RemoteFile.ID is the full object name.
type Source struct {
	bucket *storage.BucketHandle
	prefix string
}

// New creates a Source over bucket/prefix.
func New(client *storage.Client, bucket, prefix string) (*Source, error) {
	if client == nil || bucket == "" {
		return nil, fmt.Errorf("storage client and bucket are required")
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Source{bucket: client.Bucket(bucket), prefix: prefix}, nil
}

func (s *Source) List(ctx context.Context, f source.Filter) ([]source.RemoteFile, error) {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: s.prefix, Delimiter: "/"})

	var out []source.RemoteFile
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing gs objects under %q: %w", s.prefix, err)
		}
		if attrs.Name == "" {
			continue // synthetic prefix entry
		}
		name := path.Base(attrs.Name)
		if f.Match(name) {
			out = append(out, source.RemoteFile{ID: attrs.Name, Name: name})
		}
	}
	return out, nil
}

func (s *Source) Fetch(ctx context.Context, rf source.RemoteFile) (io.ReadCloser, error) {
	r, err := s.bucket.Object(rf.ID).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%s: %w", rf.ID, source.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rf.ID, err)
	}
	return r, nil
}

// Rename copies the object to its new name and deletes the original;
// Cloud Storage has no in-place rename.
func (s *Source) Rename(ctx context.Context, rf source.RemoteFile, newName string) error {
	src := s.bucket.Object(rf.ID)
	dst := s.bucket.Object(s.prefix + newName)
	if _, err := dst.CopierFrom(src).Run(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("%s: %w", rf.ID, source.ErrNotFound)
		}
		return fmt.Errorf("copying %s to %s: %w", rf.ID, newName, err)
	}
	if err := src.Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("deleting %s after copy: %w", rf.ID, err)
	}
	return nil
}

func (s *Source) Lookup(ctx context.Context, name string) (source.RemoteFile, bool, error) {
	id := s.prefix + name
	_, err := s.bucket.Object(id).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return source.RemoteFile{}, false, nil
	}
	if err != nil {
		return source.RemoteFile{}, false, fmt.Errorf("stat %s: %w", id, err)
	}
	return source.RemoteFile{ID: id, Name: name}, true, nil
}
