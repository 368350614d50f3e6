// Package xlsx implements the ledger Store on a local workbook, for hosts
// that keep the control sheet offline.
package xlsx

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/dwsmith1983/nfeflow/internal/ledger"
	"github.com/dwsmith1983/nfeflow/pkg/types"
)

// Compile-time interface satisfaction check.
var _ ledger.Store = (*Store)(nil)

// Store persists every mutation to the workbook file immediately.
type Store struct {
	mu    sync.Mutex
	path  string
	sheet string
}

// New opens (or creates) the workbook at path with the given sheet.
func New(path, sheet string) (*Store, error) {
	if path == "" || sheet == "" {
		return nil, fmt.Errorf("workbook path and sheet are required")
	}
	s := &Store{path: path, sheet: sheet}
	f, err := s.open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	if err := f.SaveAs(path); err != nil {
		return nil, fmt.Errorf("saving workbook: %w", err)
	}
	return s, nil
}

func (s *Store) ReadAll(_ context.Context) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(s.sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", s.sheet, err)
	}
	return rows, nil
}

func (s *Store) WriteRow(_ context.Context, index int, fields []any) error {
	return s.mutate(func(f *excelize.File) error {
		return s.setRow(f, index, fields)
	})
}

func (s *Store) AppendRow(_ context.Context, fields []any) error {
	return s.mutate(func(f *excelize.File) error {
		rows, err := f.GetRows(s.sheet)
		if err != nil {
			return err
		}
		return s.setRow(f, len(rows), fields)
	})
}

func (s *Store) UpdateCell(_ context.Context, index int, column types.Column, value any) error {
	return s.mutate(func(f *excelize.File) error {
		name, err := excelize.CoordinatesToCellName(int(column)+1, index+1)
		if err != nil {
			return err
		}
		return f.SetCellValue(s.sheet, name, value)
	})
}

func (s *Store) setRow(f *excelize.File, index int, fields []any) error {
	start, err := excelize.CoordinatesToCellName(1, index+1)
	if err != nil {
		return err
	}
	row := append([]any(nil), fields...)
	return f.SetSheetRow(s.sheet, start, &row)
}

func (s *Store) mutate(fn func(f *excelize.File) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open()
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := fn(f); err != nil {
		return fmt.Errorf("updating workbook %s: %w", s.path, err)
	}
	if err := f.Save(); err != nil {
		return fmt.Errorf("saving workbook %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) open() (*excelize.File, error) {
	var f *excelize.File
	if _, err := os.Stat(s.path); err == nil {
		f, err = excelize.OpenFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("opening workbook %s: %w", s.path, err)
		}
	} else if os.IsNotExist(err) {
		f = excelize.NewFile()
		f.Path = s.path
	} else {
		return nil, fmt.Errorf("checking workbook %s: %w", s.path, err)
	}

	idx, err := f.GetSheetIndex(s.sheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("locating sheet %s: %w", s.sheet, err)
	}
	if idx < 0 {
		if _, err := f.NewSheet(s.sheet); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("creating sheet %s: %w", s.sheet, err)
		}
	}
	return f, nil
}
