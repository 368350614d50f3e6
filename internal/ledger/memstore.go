package ledger

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/dwsmith1983/nfeflow/pkg/types"
)

// Compile-time interface satisfaction check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store used for dry runs and tests. It keeps
// the raw written values and renders them the way a spreadsheet displays them.
type MemoryStore struct {
	mu   sync.Mutex
	rows [][]any

	Writes int // number of mutating calls
}

// NewMemoryStore creates a store seeded with the given rows.
func NewMemoryStore(rows ...[]any) *MemoryStore {
	m := &MemoryStore{}
	for _, r := range rows {
		m.rows = append(m.rows, append([]any(nil), r...))
	}
	return m
}

func (m *MemoryStore) ReadAll(_ context.Context) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]string, len(m.rows))
	for i, r := range m.rows {
		// Spreadsheet APIs drop trailing blank cells.
		end := len(r)
		for end > 0 && FormatValue(r[end-1]) == "" {
			end--
		}
		row := make([]string, end)
		for j := 0; j < end; j++ {
			row[j] = FormatValue(r[j])
		}
		out[i] = row
	}
	return out, nil
}

func (m *MemoryStore) WriteRow(_ context.Context, index int, fields []any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRow, index)
	}
	m.grow(index)
	m.rows[index] = append([]any(nil), fields...)
	m.Writes++
	return nil
}

func (m *MemoryStore) AppendRow(_ context.Context, fields []any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rows = append(m.rows, append([]any(nil), fields...))
	m.Writes++
	return nil
}

func (m *MemoryStore) UpdateCell(_ context.Context, index int, column types.Column, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || column < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRow, index)
	}
	m.grow(index)
	for len(m.rows[index]) <= int(column) {
		m.rows[index] = append(m.rows[index], "")
	}
	m.rows[index][column] = value
	m.Writes++
	return nil
}

// Raw returns the value exactly as written, or nil when the cell is unset.
func (m *MemoryStore) Raw(index int, column types.Column) any {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index >= len(m.rows) || int(column) >= len(m.rows[index]) {
		return nil
	}
	return m.rows[index][column]
}

// Len returns the number of rows, header included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *MemoryStore) grow(index int) {
	for len(m.rows) <= index {
		m.rows = append(m.rows, nil)
	}
}

// FormatValue renders a scalar as a spreadsheet would display it.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprint(x)
	}
}
