package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BrandonDHaskell/refectory/internal/refectory/store"
	"github.com/BrandonDHaskell/refectory/internal/refectory/types"
	"github.com/BrandonDHaskell/refectory/internal/refectory/window"
)

var (
	ErrInvalidCardID    = errors.New("card_id is required")
	ErrNoIdentities     = errors.New("at least one identity is required")
	ErrInvalidTimeRange = errors.New("from must be before to")
)

// AdminService backs the operator surface: lookups, manual entitlement
// changes and counters.
type AdminService struct {
	cards    store.CardStore
	audit    store.AuditStore
	schedule window.Schedule
	loc      *time.Location
}

func NewAdminService(cards store.CardStore, audit store.AuditStore, schedule window.Schedule, loc *time.Location) *AdminService {
	if loc == nil {
		loc = time.Local
	}
	return &AdminService{cards: cards, audit: audit, schedule: schedule, loc: loc}
}

func (s *AdminService) Lookup(ctx context.Context, cardID string) (types.CardAccount, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return types.CardAccount{}, ErrInvalidCardID
	}
	return s.cards.Lookup(ctx, cardID)
}

func (s *AdminService) SetEntitlement(ctx context.Context, cardID string, entitled bool) (int64, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return 0, ErrInvalidCardID
	}
	return s.cards.SetEntitlement(ctx, cardID, entitled, time.Now().UTC())
}

func (s *AdminService) SetEntitlementForIdentities(ctx context.Context, identities []string, entitled bool) (int64, error) {
	if len(identities) == 0 {
		return 0, ErrNoIdentities
	}
	return s.cards.SetEntitlementForIdentities(ctx, identities, entitled, time.Now().UTC())
}

// SetUnitEntitlement applies entitled to every card of unit.
func (s *AdminService) SetUnitEntitlement(ctx context.Context, unit string, entitled bool) (int64, error) {
	accts, err := s.cards.ListByUnit(ctx, unit)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(accts))
	for _, a := range accts {
		ids = append(ids, a.Identity)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return s.cards.SetEntitlementForIdentities(ctx, ids, entitled, time.Now().UTC())
}

func (s *AdminService) ListByUnit(ctx context.Context, unit string) ([]types.CardAccount, error) {
	return s.cards.ListByUnit(ctx, unit)
}

func (s *AdminService) Units(ctx context.Context) ([]string, error) {
	return s.cards.Units(ctx)
}

func (s *AdminService) Stats(ctx context.Context) ([]types.UnitStats, error) {
	return s.cards.Stats(ctx)
}

// BucketCounts tallies consumed swipes in [from, to) per bucket and per
// configured swipe window. Every bucket appears, zero or not.
func (s *AdminService) BucketCounts(ctx context.Context, from, to time.Time) ([]types.BucketCount, error) {
	if !from.Before(to) {
		return nil, ErrInvalidTimeRange
	}
	txs, err := s.audit.Transactions(ctx, from, to)
	if err != nil {
		return nil, err
	}

	nWindows := len(s.schedule.Ranges())
	order := Buckets()
	idx := make(map[string]int, len(order))
	out := make([]types.BucketCount, len(order))
	for i, b := range order {
		idx[b] = i
		out[i] = types.BucketCount{Bucket: b, ByWindow: make([]int, nWindows)}
	}

	for _, tx := range txs {
		i, ok := idx[tx.Bucket]
		if !ok {
			i = idx[Unassigned]
		}
		out[i].Total++
		if w, ok := s.schedule.Allows(tx.OccurredAt.In(s.loc)); ok {
			out[i].ByWindow[w]++
		}
	}
	return out, nil
}

// Failures returns rejected swipes in [from, to).
func (s *AdminService) Failures(ctx context.Context, from, to time.Time) ([]store.FailureRecord, error) {
	if !from.Before(to) {
		return nil, ErrInvalidTimeRange
	}
	return s.audit.Failures(ctx, from, to)
}
