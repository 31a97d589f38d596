package roster

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/BrandonDHaskell/refectory/internal/refectory/types"
)

type sheetKey struct {
	path string
	hash string
	unit string
}

// CachedSource memoises parsed sheets per (document, hash, unit). Purge
// drops everything; the watcher calls it when the current document's
// content changes.
type CachedSource struct {
	src   Source
	cache *lru.Cache[sheetKey, []types.RosterRow]
}

func NewCachedSource(src Source, size int) (*CachedSource, error) {
	if size <= 0 {
		size = 10
	}
	c, err := lru.New[sheetKey, []types.RosterRow](size)
	if err != nil {
		return nil, fmt.Errorf("roster cache: %w", err)
	}
	return &CachedSource{src: src, cache: c}, nil
}

func (c *CachedSource) Units(doc Document) ([]string, error) {
	return c.src.Units(doc)
}

func (c *CachedSource) Rows(doc Document, unit string) ([]types.RosterRow, error) {
	k := sheetKey{path: doc.Path, hash: doc.Hash, unit: unit}
	if rows, ok := c.cache.Get(k); ok {
		return rows, nil
	}
	rows, err := c.src.Rows(doc, unit)
	if err != nil {
		return nil, err
	}
	c.cache.Add(k, rows)
	return rows, nil
}

func (c *CachedSource) Purge() { c.cache.Purge() }

func (c *CachedSource) Len() int { return c.cache.Len() }
