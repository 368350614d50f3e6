// Package testutil provides shared test doubles for nfeflow.
package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/dwsmith1983/nfeflow/internal/actions"
	"github.com/dwsmith1983/nfeflow/pkg/types"
)

// Compile-time interface satisfaction checks.
var (
	_ actions.Driver  = (*MockDriver)(nil)
	_ actions.Session = (*MockSession)(nil)
)

// MockDriver hands out a single MockSession.
type MockDriver struct {
	Session *MockSession
	OpenErr error
	Opens   int
}

// NewMockDriver creates a driver around a fresh MockSession.
func NewMockDriver() *MockDriver {
	return &MockDriver{Session: NewMockSession()}
}

func (d *MockDriver) Open(_ context.Context) (actions.Session, error) {
	d.Opens++
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	return d.Session, nil
}

// MockSession is a scripted in-memory remote system. Behaviour is keyed by
// document identifier; unknown documents succeed.
type MockSession struct {
	mu sync.Mutex

	AlreadyImported map[string]bool
	ImportErr       map[string]error
	Items           map[string][]types.LineItem
	LinkErr         map[string]error
	LinkPanic       map[string]bool
	EntryRefs       map[string]string
	EntryErr        map[string]error
	InvoiceErr      map[string]error
	InvoiceRejected map[string]bool
	InvoicePanic    map[string]bool

	imported  []string
	confirmed []string
	entries   []string
	invoices  []types.Payable
	closed    bool
}

// NewMockSession creates an empty MockSession.
func NewMockSession() *MockSession {
	return &MockSession{
		AlreadyImported: make(map[string]bool),
		ImportErr:       make(map[string]error),
		Items:           make(map[string][]types.LineItem),
		LinkErr:         make(map[string]error),
		LinkPanic:       make(map[string]bool),
		EntryRefs:       make(map[string]string),
		EntryErr:        make(map[string]error),
		InvoiceErr:      make(map[string]error),
		InvoiceRejected: make(map[string]bool),
		InvoicePanic:    make(map[string]bool),
	}
}

func (s *MockSession) ImportDocument(_ context.Context, doc types.Document, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ImportErr[doc.ID]; err != nil {
		return err
	}
	s.imported = append(s.imported, doc.ID)
	if s.AlreadyImported[doc.ID] {
		return actions.ErrAlreadyDone
	}
	s.AlreadyImported[doc.ID] = true
	return nil
}

func (s *MockSession) LineItems(_ context.Context, doc types.Document) ([]types.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LinkPanic[doc.ID] {
		panic("line item table vanished")
	}
	if err := s.LinkErr[doc.ID]; err != nil {
		return nil, err
	}
	return append([]types.LineItem(nil), s.Items[doc.ID]...), nil
}

func (s *MockSession) ConfirmLink(_ context.Context, doc types.Document, item types.LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.Items[doc.ID]
	for i := range items {
		if items[i].Ref == item.Ref {
			items[i].Linked = true
			s.confirmed = append(s.confirmed, doc.ID+"/"+item.Ref)
			return nil
		}
	}
	return errors.New("line item not found: " + item.Ref)
}

func (s *MockSession) GenerateEntry(_ context.Context, doc types.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.EntryErr[doc.ID]; err != nil {
		return "", err
	}
	s.entries = append(s.entries, doc.ID)
	if ref, ok := s.EntryRefs[doc.ID]; ok {
		return ref, nil
	}
	return "https://erp.example/entries/" + doc.ID, nil
}

func (s *MockSession) GenerateInvoice(_ context.Context, doc types.Document, p types.Payable) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InvoicePanic[doc.ID] {
		panic("payable form crashed")
	}
	if err := s.InvoiceErr[doc.ID]; err != nil {
		return false, err
	}
	if s.InvoiceRejected[doc.ID] {
		return false, nil
	}
	s.invoices = append(s.invoices, p)
	return true, nil
}

func (s *MockSession) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Imported returns the identifiers passed to ImportDocument, in order.
func (s *MockSession) Imported() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.imported...)
}

// Confirmed returns "<id>/<ref>" for each confirmed line item.
func (s *MockSession) Confirmed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.confirmed...)
}

// Entries returns the identifiers for which an entry was generated.
func (s *MockSession) Entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.entries...)
}

// Invoices returns the payables registered.
func (s *MockSession) Invoices() []types.Payable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Payable(nil), s.invoices...)
}

// Closed reports whether Close was called.
func (s *MockSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
