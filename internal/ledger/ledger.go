// Package ledger maps document identifiers to rows of the external,
// row-oriented control sheet and updates their stage flags.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dwsmith1983/nfeflow/pkg/types"
)

// ErrInvalidRow is returned for operations addressing a row that cannot exist.
var ErrInvalidRow = errors.New("invalid ledger row")

// HeartbeatLayout is the timestamp format written by Heartbeat.
const HeartbeatLayout = "02/01/2006 15:04:05"

// Store is the positional backing table. Row 0 is the header; indices are
// zero-based. Values are primitive scalars (string or bool).
type Store interface {
	ReadAll(ctx context.Context) ([][]string, error)
	WriteRow(ctx context.Context, index int, fields []any) error
	AppendRow(ctx context.Context, fields []any) error
	UpdateCell(ctx context.Context, index int, column types.Column, value any) error
}

// Ledger is the upsert layer over a Store. It performs read-modify-write
// without concurrency control and relies on the run lock for exclusion.
type Ledger struct {
	store  Store
	logger *slog.Logger
}

// New creates a Ledger over the given store.
func New(store Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, logger: logger}
}

// Header returns the header row written to an empty ledger.
func Header() []any {
	row := make([]any, types.RowWidth)
	for i := range row {
		row[i] = types.Column(i).String()
	}
	return row
}

// FindOrCreateRow returns the row index holding id. An existing row is reused
// and its issue date backfilled only when blank. Otherwise the first blank row
// (top-down) is claimed, and failing that a new row is appended.
func (l *Ledger) FindOrCreateRow(ctx context.Context, id, issueDate string) (int, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, fmt.Errorf("%w: empty identifier", ErrInvalidRow)
	}

	rows, err := l.store.ReadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading ledger: %w", err)
	}
	if len(rows) == 0 {
		if err := l.store.AppendRow(ctx, Header()); err != nil {
			return 0, fmt.Errorf("writing ledger header: %w", err)
		}
		rows = [][]string{{}}
	}

	emptyIdx := -1
	for idx := 1; idx < len(rows); idx++ {
		row := rows[idx]
		current := cell(row, types.ColIdentifier)
		if current == id {
			if issueDate != "" && cell(row, types.ColIssueDate) == "" {
				if err := l.store.UpdateCell(ctx, idx, types.ColIssueDate, issueDate); err != nil {
					return 0, fmt.Errorf("backfilling issue date for %s: %w", id, err)
				}
			}
			return idx, nil
		}
		if emptyIdx < 0 && current == "" {
			emptyIdx = idx
		}
	}

	if emptyIdx >= 0 {
		fields := pad(rows[emptyIdx])
		fields[types.ColIdentifier] = id
		if issueDate != "" {
			fields[types.ColIssueDate] = issueDate
		}
		if err := l.store.WriteRow(ctx, emptyIdx, fields); err != nil {
			return 0, fmt.Errorf("reusing ledger row %d for %s: %w", emptyIdx, id, err)
		}
		l.logger.Debug("reused empty ledger row", "document", id, "row", emptyIdx)
		return emptyIdx, nil
	}

	fields := pad(nil)
	fields[types.ColIdentifier] = id
	fields[types.ColIssueDate] = issueDate
	if err := l.store.AppendRow(ctx, fields); err != nil {
		return 0, fmt.Errorf("appending ledger row for %s: %w", id, err)
	}
	return len(rows), nil
}

// Lookup finds the row for id without creating one.
func (l *Ledger) Lookup(ctx context.Context, id string) (int, bool, error) {
	rows, err := l.store.ReadAll(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("reading ledger: %w", err)
	}
	id = strings.TrimSpace(id)
	for idx := 1; idx < len(rows); idx++ {
		if id != "" && cell(rows[idx], types.ColIdentifier) == id {
			return idx, true, nil
		}
	}
	return 0, false, nil
}

// UpdateCell sets a single cell, coercing truthy/falsy tokens to booleans.
func (l *Ledger) UpdateCell(ctx context.Context, row int, col types.Column, value any) error {
	if row < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidRow, row)
	}
	if err := l.store.UpdateCell(ctx, row, col, Normalize(value)); err != nil {
		return fmt.Errorf("updating ledger cell %s%d: %w", columnLetter(col), row+1, err)
	}
	return nil
}

// Cell reads one cell; short rows and missing rows read as "".
func (l *Ledger) Cell(ctx context.Context, row int, col types.Column) (string, error) {
	rows, err := l.store.ReadAll(ctx)
	if err != nil {
		return "", fmt.Errorf("reading ledger: %w", err)
	}
	if row < 0 || row >= len(rows) {
		return "", nil
	}
	return cell(rows[row], col), nil
}

// Flag reads a cell as a boolean stage flag.
func (l *Ledger) Flag(ctx context.Context, row int, col types.Column) (bool, error) {
	v, err := l.Cell(ctx, row, col)
	if err != nil {
		return false, err
	}
	return IsTruthy(v), nil
}

// Heartbeat stamps the reserved header cell, proving the store is writable.
func (l *Ledger) Heartbeat(ctx context.Context, now time.Time) error {
	if err := l.store.UpdateCell(ctx, 0, types.HeartbeatColumn, now.Format(HeartbeatLayout)); err != nil {
		return fmt.Errorf("writing heartbeat: %w", err)
	}
	return nil
}

func cell(row []string, col types.Column) string {
	if int(col) < len(row) {
		return strings.TrimSpace(row[col])
	}
	return ""
}

// pad widens a row to the full column width, keeping existing values.
func pad(row []string) []any {
	out := make([]any, types.RowWidth)
	for i := range out {
		out[i] = ""
		if i < len(row) {
			out[i] = row[i]
		}
	}
	return out
}

func columnLetter(col types.Column) string {
	return string(rune('A' + int(col)))
}
