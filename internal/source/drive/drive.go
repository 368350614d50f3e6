// Package drive implements the document Source on a Google Drive folder.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dwsmith1983/nfeflow/internal/source"
)

// Compile-time interface satisfaction check.
var _ source.Source = (*Source)(nil)

// Scope is the OAuth scope needed to read and rename folder contents.
const Scope = gdrive.DriveScope

const folderMime = "application/vnd.google-apps.folder"

// Source lists and renames files in one Drive folder.
type Source struct {
	files    *gdrive.FilesService
	folderID string
}

// New creates a Source for folderID.
func New(ctx context.Context, folderID string, opts ...option.ClientOption) (*Source, error) {
	if folderID == "" {
		return nil, fmt.Errorf("drive folder id is required")
	}
	svc, err := gdrive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating drive client: %w", err)
	}
	return &Source{files: svc.Files, folderID: folderID}, nil
}

func (s *Source) List(ctx context.Context, f source.Filter) ([]source.RemoteFile, error) {
	q := s.baseQuery()
	if f.Suffix != "" {
		q += fmt.Sprintf(" and name contains '%s'", escape(f.Suffix))
	}

	var out []source.RemoteFile
	err := s.files.List().
		Q(q).
		Fields("nextPageToken, files(id, name)").
		PageSize(1000).
		Pages(ctx, func(page *gdrive.FileList) error {
			for _, file := range page.Files {
				if f.Match(file.Name) {
					out = append(out, source.RemoteFile{ID: file.Id, Name: file.Name})
				}
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("listing drive folder %s: %w", s.folderID, err)
	}
	return out, nil
}

func (s *Source) Fetch(ctx context.Context, rf source.RemoteFile) (io.ReadCloser, error) {
	resp, err := s.files.Get(rf.ID).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", rf.Name, mapErr(err))
	}
	return resp.Body, nil
}

func (s *Source) Rename(ctx context.Context, rf source.RemoteFile, newName string) error {
	_, err := s.files.Update(rf.ID, &gdrive.File{Name: newName}).Fields("id, name").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("renaming %s: %w", rf.Name, mapErr(err))
	}
	return nil
}

func (s *Source) Lookup(ctx context.Context, name string) (source.RemoteFile, bool, error) {
	q := s.baseQuery() + fmt.Sprintf(" and name = '%s'", escape(name))
	list, err := s.files.List().Q(q).Fields("files(id, name)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return source.RemoteFile{}, false, fmt.Errorf("looking up %s: %w", name, err)
	}
	if len(list.Files) == 0 {
		return source.RemoteFile{}, false, nil
	}
	return source.RemoteFile{ID: list.Files[0].Id, Name: list.Files[0].Name}, true, nil
}

func (s *Source) baseQuery() string {
	return fmt.Sprintf("'%s' in parents and trashed = false and mimeType != '%s'", escape(s.folderID), folderMime)
}

func escape(v string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
}

func mapErr(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %s", source.ErrNotFound, gerr.Message)
	}
	return err
}
