// Package roster reads the dated duty roster workbooks and tracks which one
// is current.
package roster

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrNoDocument    = errors.New("roster: no dated roster document")
	ErrMissingColumn = errors.New("roster: required column missing")
)

const (
	dateLayout = "2006-01-02"
	extension  = ".xlsx"
)

// Document is one dated roster workbook, identified by content hash.
type Document struct {
	Name string    // e.g. 2026-02-15.xlsx
	Path string    // absolute or dir-relative path
	Date time.Time // parsed from Name
	Hash string    // hex blake3 of the file contents
}

// ParseName returns the date encoded in a roster filename. Only
// YYYY-MM-DD.xlsx names qualify.
func ParseName(name string) (time.Time, bool) {
	base := filepath.Base(name)
	if !strings.EqualFold(filepath.Ext(base), extension) {
		return time.Time{}, false
	}
	d, err := time.Parse(dateLayout, strings.TrimSuffix(base, filepath.Ext(base)))
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
