// Package rostertest writes roster workbooks for tests.
package rostertest

import (
	"testing"

	"github.com/xuri/excelize/v2"
)

// Sheet is one unit: a header row followed by data rows.
type Sheet struct {
	Unit string
	Rows [][]any
}

// Header is the standard column layout.
var Header = []any{"user", "is_on_duty", "shift", "card"}

// WriteWorkbook saves sheets to path, replacing any existing file.
func WriteWorkbook(t testing.TB, path string, sheets ...Sheet) {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.Unit); err != nil {
				t.Fatalf("rename sheet: %v", err)
			}
		} else if _, err := f.NewSheet(s.Unit); err != nil {
			t.Fatalf("new sheet %s: %v", s.Unit, err)
		}
		for r, row := range s.Rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			row := row
			if err := f.SetSheetRow(s.Unit, cell, &row); err != nil {
				t.Fatalf("write %s row %d: %v", s.Unit, r, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save %s: %v", path, err)
	}
}

// WithHeader prefixes rows with Header.
func WithHeader(rows ...[]any) [][]any {
	return append([][]any{Header}, rows...)
}
