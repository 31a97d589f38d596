package store

import (
	"context"
	"time"
)

// Desired is the entitlement a roster row asks for. UpdateOnly rows may
// change an existing card but never create one.
type Desired struct {
	Identity   string
	Unit       string
	CardID     string
	Entitled   bool
	UpdateOnly bool
}

type SkipReason string

const (
	SkipUpdateOnlyAbsent SkipReason = "update_only_absent"
	SkipCardConflict     SkipReason = "card_conflict"
	SkipNoCard           SkipReason = "no_card"
)

type SkippedRow struct {
	Identity string
	CardID   string
	Reason   SkipReason
}

type BatchResult struct {
	Updated  int
	Inserted int
	Skipped  []SkippedRow
}

func (r *BatchResult) Skip(d Desired, reason SkipReason) {
	r.Skipped = append(r.Skipped, SkippedRow{Identity: d.Identity, CardID: d.CardID, Reason: reason})
}

func (r BatchResult) Count(reason SkipReason) int {
	n := 0
	for _, s := range r.Skipped {
		if s.Reason == reason {
			n++
		}
	}
	return n
}

// RosterWriter applies one bounded batch of desired entitlements inside a
// single transaction.
type RosterWriter interface {
	ApplyBatch(ctx context.Context, rows []Desired, at time.Time) (BatchResult, error)
}
