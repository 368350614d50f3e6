// Package scripted provides a Driver whose responses come from a YAML
// scenario file. It backs dry runs and rehearsals without touching the ERP.
package scripted

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/nfeflow/internal/actions"
	"github.com/dwsmith1983/nfeflow/pkg/types"
)

// Compile-time interface satisfaction checks.
var (
	_ actions.Driver  = (*Driver)(nil)
	_ actions.Session = (*Session)(nil)
)

// Response keywords accepted in scenario files.
const (
	RespOK          = "ok"
	RespAlreadyDone = "already_done"
	RespTransient   = "transient"
	RespError       = "error"
	RespRejected    = "rejected"
)

// Scenario describes how the fake ERP answers, per document identifier.
// Documents not listed succeed with no line items.
type Scenario struct {
	Login     string              `yaml:"login,omitempty"`
	Documents map[string]Document `yaml:"documents"`
}

// Document is the scripted behaviour of one invoice.
type Document struct {
	Import  string           `yaml:"import,omitempty"`
	Items   []types.LineItem `yaml:"items,omitempty"`
	Link    string           `yaml:"link,omitempty"`
	Entry   string           `yaml:"entry,omitempty"` // reference, or a response keyword
	Invoice string           `yaml:"invoice,omitempty"`
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if sc.Documents == nil {
		sc.Documents = map[string]Document{}
	}
	return &sc, nil
}

// Driver opens sessions over a scenario.
type Driver struct {
	scenario *Scenario
}

// New creates a Driver.
func New(sc *Scenario) *Driver {
	return &Driver{scenario: sc}
}

func (d *Driver) Open(_ context.Context) (actions.Session, error) {
	if err := response(d.scenario.Login, "login"); err != nil {
		return nil, err
	}
	items := make(map[string][]types.LineItem, len(d.scenario.Documents))
	for id, doc := range d.scenario.Documents {
		items[id] = append([]types.LineItem(nil), doc.Items...)
	}
	return &Session{scenario: d.scenario, items: items, imported: map[string]bool{}}, nil
}

// Session tracks imports and confirmations so repeated calls behave like the
// real system.
type Session struct {
	mu       sync.Mutex
	scenario *Scenario
	items    map[string][]types.LineItem
	imported map[string]bool
}

func (s *Session) ImportDocument(_ context.Context, doc types.Document, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := response(s.scenario.Documents[doc.ID].Import, "import "+doc.ID); err != nil {
		return err
	}
	if s.imported[doc.ID] {
		return actions.ErrAlreadyDone
	}
	s.imported[doc.ID] = true
	return nil
}

func (s *Session) LineItems(_ context.Context, doc types.Document) ([]types.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := response(s.scenario.Documents[doc.ID].Link, "link "+doc.ID); err != nil {
		return nil, err
	}
	return append([]types.LineItem(nil), s.items[doc.ID]...), nil
}

func (s *Session) ConfirmLink(_ context.Context, doc types.Document, item types.LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.items[doc.ID]
	for i := range items {
		if items[i].Ref == item.Ref {
			items[i].Linked = true
			return nil
		}
	}
	return fmt.Errorf("line item %s not found on %s", item.Ref, doc.ID)
}

func (s *Session) GenerateEntry(_ context.Context, doc types.Document) (string, error) {
	entry := s.scenario.Documents[doc.ID].Entry
	switch entry {
	case "", RespOK:
		return "scripted://entries/" + doc.ID, nil
	case RespAlreadyDone, RespTransient, RespError:
		return "", response(entry, "entry "+doc.ID)
	default:
		return entry, nil
	}
}

func (s *Session) GenerateInvoice(_ context.Context, doc types.Document, _ types.Payable) (bool, error) {
	inv := s.scenario.Documents[doc.ID].Invoice
	if inv == RespRejected {
		return false, nil
	}
	if err := response(inv, "invoice "+doc.ID); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Session) Close(_ context.Context) error { return nil }

func response(keyword, what string) error {
	switch keyword {
	case "", RespOK:
		return nil
	case RespAlreadyDone:
		return actions.ErrAlreadyDone
	case RespTransient:
		return fmt.Errorf("%w: scripted %s", actions.ErrTransient, what)
	case RespError:
		return errors.New("scripted failure: " + what)
	default:
		return fmt.Errorf("unknown scripted response %q for %s", keyword, what)
	}
}
