package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/dwsmith1983/nfeflow/internal/source"
)

// Compile-time interface satisfaction check.
var _ source.Source = (*MockSource)(nil)

// MockSource is an in-memory remote folder.
type MockSource struct {
	mu      sync.Mutex
	files   map[string]*mockFile // by ID
	nextID  int
	renames []string

	ListErr   error
	RenameErr error
}

type mockFile struct {
	name    string
	content []byte
}

// NewMockSource creates an empty MockSource.
func NewMockSource() *MockSource {
	return &MockSource{files: make(map[string]*mockFile)}
}

// Put adds a file and returns its ID.
func (m *MockSource) Put(name string, content []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("file-%03d", m.nextID)
	m.files[id] = &mockFile{name: name, content: content}
	return id
}

// Names returns every file name, sorted.
func (m *MockSource) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, f := range m.files {
		out = append(out, f.name)
	}
	sort.Strings(out)
	return out
}

// Renames returns "<old> -> <new>" for each rename performed.
func (m *MockSource) Renames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.renames...)
}

func (m *MockSource) List(_ context.Context, f source.Filter) ([]source.RemoteFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []source.RemoteFile
	for id, file := range m.files {
		if f.Match(file.name) {
			out = append(out, source.RemoteFile{ID: id, Name: file.name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MockSource) Fetch(_ context.Context, rf source.RemoteFile) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[rf.ID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", rf.ID, source.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(file.content)), nil
}

func (m *MockSource) Rename(_ context.Context, rf source.RemoteFile, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RenameErr != nil {
		return m.RenameErr
	}
	file, ok := m.files[rf.ID]
	if !ok {
		return fmt.Errorf("%s: %w", rf.ID, source.ErrNotFound)
	}
	m.renames = append(m.renames, file.name+" -> "+newName)
	file.name = newName
	return nil
}

func (m *MockSource) Lookup(_ context.Context, name string) (source.RemoteFile, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, file := range m.files {
		if file.name == name {
			return source.RemoteFile{ID: id, Name: file.name}, true, nil
		}
	}
	return source.RemoteFile{}, false, nil
}
