package memory

import (
	"context"
	"strings"
	"time"

	"github.com/BrandonDHaskell/refectory/internal/refectory/store"
	"github.com/BrandonDHaskell/refectory/internal/refectory/types"
)

// ApplyBatch mirrors the SQLite two-pass upsert: update existing identities,
// then insert the rest unless update-only or their card is already taken.
func (s *Store) ApplyBatch(ctx context.Context, rows []store.Desired, at time.Time) (store.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return store.BatchResult{}, err
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	at = at.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		res     store.BatchResult
		missing []store.Desired
	)
	for _, d := range rows {
		d.Identity = strings.TrimSpace(d.Identity)
		d.CardID = strings.TrimSpace(d.CardID)
		if d.Identity == "" {
			continue
		}

		a, ok := s.byIdentity[d.Identity]
		if !ok {
			missing = append(missing, d)
			continue
		}
		if d.CardID != "" && d.CardID != a.CardID {
			if _, taken := s.byCard[d.CardID]; taken {
				res.Skip(d, store.SkipCardConflict)
				continue
			}
			delete(s.byCard, a.CardID)
			a.CardID = d.CardID
			s.byCard[a.CardID] = a
		}
		a.Unit = d.Unit
		a.Entitled = d.Entitled
		a.UpdatedAt = at
		res.Updated++
	}

	for _, d := range missing {
		switch {
		case d.UpdateOnly:
			res.Skip(d, store.SkipUpdateOnlyAbsent)
			continue
		case d.CardID == "":
			res.Skip(d, store.SkipNoCard)
			continue
		}
		if _, taken := s.byCard[d.CardID]; taken {
			res.Skip(d, store.SkipCardConflict)
			continue
		}
		if _, dup := s.byIdentity[d.Identity]; dup {
			res.Skip(d, store.SkipCardConflict)
			continue
		}
		a := &types.CardAccount{
			Identity:  d.Identity,
			CardID:    d.CardID,
			Unit:      d.Unit,
			Entitled:  d.Entitled,
			UpdatedAt: at,
		}
		s.byCard[a.CardID] = a
		s.byIdentity[a.Identity] = a
		res.Inserted++
	}
	return res, nil
}
