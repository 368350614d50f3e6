// Package sheets implements the ledger Store on a Google Sheets tab.
package sheets

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/dwsmith1983/nfeflow/internal/ledger"
	"github.com/dwsmith1983/nfeflow/pkg/types"
)

// Scope is the OAuth scope needed to read and write the ledger.
const Scope = gsheets.SpreadsheetsScope

// Compile-time interface satisfaction check.
var _ ledger.Store = (*Store)(nil)

// Store reads and writes the ledger tab with RAW value input so booleans
// persist as booleans.
type Store struct {
	values        *gsheets.SpreadsheetsValuesService
	spreadsheetID string
	tab           string
}

// New creates a Store for the given spreadsheet and tab.
func New(ctx context.Context, spreadsheetID, tab string, opts ...option.ClientOption) (*Store, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet ID must be provided")
	}
	if tab == "" {
		return nil, fmt.Errorf("sheet tab must be provided")
	}
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}
	return &Store{values: svc.Spreadsheets.Values, spreadsheetID: spreadsheetID, tab: tab}, nil
}

func (s *Store) ReadAll(ctx context.Context) ([][]string, error) {
	resp, err := s.values.Get(s.spreadsheetID, s.rangeOf("A1:%s", lastColumn())).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.tab, err)
	}
	rows := make([][]string, len(resp.Values))
	for i, r := range resp.Values {
		row := make([]string, len(r))
		for j, v := range r {
			row[j] = ledger.FormatValue(v)
		}
		rows[i] = row
	}
	return rows, nil
}

func (s *Store) WriteRow(ctx context.Context, index int, fields []any) error {
	rng := s.rangeOf("A%d:%s%d", index+1, lastColumn(), index+1)
	_, err := s.values.Update(s.spreadsheetID, rng, &gsheets.ValueRange{Values: [][]interface{}{fields}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("writing row %d: %w", index+1, err)
	}
	return nil
}

func (s *Store) AppendRow(ctx context.Context, fields []any) error {
	_, err := s.values.Append(s.spreadsheetID, s.rangeOf("A1"), &gsheets.ValueRange{Values: [][]interface{}{fields}}).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("appending row: %w", err)
	}
	return nil
}

func (s *Store) UpdateCell(ctx context.Context, index int, column types.Column, value any) error {
	rng := s.rangeOf("%s%d", columnLetter(column), index+1)
	_, err := s.values.Update(s.spreadsheetID, rng, &gsheets.ValueRange{Values: [][]interface{}{{value}}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("updating %s: %w", rng, err)
	}
	return nil
}

func (s *Store) rangeOf(format string, args ...any) string {
	return fmt.Sprintf("'%s'!", s.tab) + fmt.Sprintf(format, args...)
}

func columnLetter(c types.Column) string {
	return string(rune('A' + int(c)))
}

func lastColumn() string {
	return columnLetter(types.RowWidth - 1)
}
