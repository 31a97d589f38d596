// Package reconcile re-derives card entitlements from the current roster
// and writes them to the card store in bounded batches.
package reconcile

import (
	"github.com/BrandonDHaskell/refectory/internal/refectory/store"
	"github.com/BrandonDHaskell/refectory/internal/refectory/types"
	"github.com/BrandonDHaskell/refectory/internal/refectory/window"
)

// Classify turns one unit's roster rows into desired writes for window id.
// On-duty rows grant entitlement only when their shift is eligible for the
// window and are otherwise left alone. Off-duty rows revoke entitlement
// but may only update existing cards.
func Classify(rows []types.RosterRow, id window.ID, rule window.ShiftRule) []store.Desired {
	out := make([]store.Desired, 0, len(rows))
	for _, r := range rows {
		switch {
		case r.OnDuty && rule.Eligible(r.Shift, id):
			out = append(out, store.Desired{
				Identity: r.Identity,
				Unit:     r.Unit,
				CardID:   r.CardID,
				Entitled: true,
			})
		case !r.OnDuty:
			out = append(out, store.Desired{
				Identity:   r.Identity,
				Unit:       r.Unit,
				CardID:     r.CardID,
				Entitled:   false,
				UpdateOnly: true,
			})
		}
	}
	return out
}

// chunk splits rows into consecutive slices of at most size.
func chunk(rows []store.Desired, size int) [][]store.Desired {
	if size <= 0 {
		size = len(rows)
	}
	var out [][]store.Desired
	for len(rows) > 0 {
		n := min(size, len(rows))
		out = append(out, rows[:n])
		rows = rows[n:]
	}
	return out
}
