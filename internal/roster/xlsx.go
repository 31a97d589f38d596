package roster

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/BrandonDHaskell/refectory/internal/refectory/types"
)

// Source reads units and rows out of a roster document.
type Source interface {
	Units(doc Document) ([]string, error)
	Rows(doc Document, unit string) ([]types.RosterRow, error)
}

// Column headers, matched case-insensitively on the first row of a sheet.
const (
	colUser   = "user"
	colOnDuty = "is_on_duty"
	colShift  = "shift"
	colCard   = "card"
)

// XLSXSource decodes workbooks with excelize: one sheet per unit.
type XLSXSource struct{}

func (XLSXSource) Units(doc Document) ([]string, error) {
	f, err := excelize.OpenFile(doc.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", doc.Name, err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

// Rows returns the usable rows of one sheet. Rows without an identity, or
// whose is_on_duty is neither 0 nor 1, are dropped.
func (XLSXSource) Rows(doc Document, unit string) ([]types.RosterRow, error) {
	f, err := excelize.OpenFile(doc.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", doc.Name, err)
	}
	defer f.Close()

	grid, err := f.GetRows(unit)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", doc.Name, unit, err)
	}
	return parseGrid(unit, grid)
}

func parseGrid(unit string, grid [][]string) ([]types.RosterRow, error) {
	if len(grid) == 0 {
		return nil, nil
	}

	cols := map[string]int{}
	for i, h := range grid[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, req := range []string{colUser, colOnDuty} {
		if _, ok := cols[req]; !ok {
			return nil, fmt.Errorf("%w: %s in sheet %s", ErrMissingColumn, req, unit)
		}
	}

	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	out := make([]types.RosterRow, 0, len(grid)-1)
	for _, row := range grid[1:] {
		identity := cell(row, colUser)
		if identity == "" {
			continue
		}
		onDuty, ok := parseFlag(cell(row, colOnDuty))
		if !ok {
			continue
		}
		out = append(out, types.RosterRow{
			Identity: identity,
			Unit:     unit,
			OnDuty:   onDuty,
			Shift:    strings.ToLower(cell(row, colShift)),
			CardID:   cell(row, colCard),
		})
	}
	return out, nil
}

// parseFlag accepts 0/1 in any numeric spelling excel may produce.
func parseFlag(s string) (bool, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return false, false
	}
	switch f {
	case 1:
		return true, true
	case 0:
		return false, true
	}
	return false, false
}
