package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/refectory/internal/refectory/store"
	"github.com/BrandonDHaskell/refectory/internal/refectory/types"
)

// Store is an in-memory CardStore, AuditStore, RosterWriter and
// HeartbeatStore. One mutex guards everything, so Consume is atomic in the
// same sense as the SQLite implementation. It is intended for use in tests
// and dev environments.
type Store struct {
	mu         sync.Mutex
	byCard     map[string]*types.CardAccount
	byIdentity map[string]*types.CardAccount

	transactions []store.TransactionRecord
	failures     []store.FailureRecord
	heartbeats   []heartbeatRow
}

type heartbeatRow struct {
	deviceSN string
	rec      store.HeartbeatRecord
}

func New() *Store {
	return &Store{
		byCard:     make(map[string]*types.CardAccount),
		byIdentity: make(map[string]*types.CardAccount),
	}
}

// Put inserts or replaces an account. Test and seeding helper.
func (s *Store) Put(a types.CardAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.byIdentity[a.Identity]; ok {
		delete(s.byCard, old.CardID)
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}
	acct := a
	s.byCard[a.CardID] = &acct
	s.byIdentity[a.Identity] = &acct
}

func (s *Store) Lookup(_ context.Context, cardID string) (types.CardAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byCard[strings.TrimSpace(cardID)]
	if !ok {
		return types.CardAccount{}, store.ErrCardNotFound
	}
	return *a, nil
}

func (s *Store) Consume(ctx context.Context, req store.ConsumeRequest) (store.ConsumeResult, error) {
	if err := ctx.Err(); err != nil {
		return store.ConsumeResult{}, err
	}
	if req.At.IsZero() {
		req.At = time.Now().UTC()
	}
	cardID := strings.TrimSpace(req.CardID)

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byCard[cardID]
	if !ok {
		s.failures = append(s.failures, store.FailureRecord{
			CardID:     cardID,
			DeviceSN:   req.DeviceSN,
			Kind:       store.FailureCardNotFound,
			OccurredAt: req.At,
		})
		return store.ConsumeResult{Kind: types.OutcomeCardNotFound}, nil
	}

	if !a.Entitled {
		cp := *a
		s.failures = append(s.failures, store.FailureRecord{
			Identity:   a.Identity,
			Unit:       a.Unit,
			CardID:     cardID,
			DeviceSN:   req.DeviceSN,
			Kind:       store.FailureNotEntitled,
			OccurredAt: req.At,
		})
		return store.ConsumeResult{Kind: types.OutcomeNotEntitled, Account: &cp}, nil
	}

	a.Entitled = false
	a.UpdatedAt = req.At.UTC()
	s.transactions = append(s.transactions, store.TransactionRecord{
		Identity:   a.Identity,
		Unit:       a.Unit,
		Bucket:     req.Bucket,
		DeviceSN:   req.DeviceSN,
		OccurredAt: req.At,
	})
	cp := *a
	return store.ConsumeResult{Kind: types.OutcomeConsumed, Account: &cp}, nil
}

func (s *Store) SetEntitlement(_ context.Context, cardID string, entitled bool, at time.Time) (int64, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byCard[strings.TrimSpace(cardID)]
	if !ok {
		return 0, nil
	}
	a.Entitled = entitled
	a.UpdatedAt = at.UTC()
	return 1, nil
}

func (s *Store) SetEntitlementForIdentities(_ context.Context, identities []string, entitled bool, at time.Time) (int64, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	seen := make(map[string]struct{}, len(identities))
	for _, id := range identities {
		id = strings.TrimSpace(id)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if a, ok := s.byIdentity[id]; ok {
			a.Entitled = entitled
			a.UpdatedAt = at.UTC()
			n++
		}
	}
	return n, nil
}

func (s *Store) ListByUnit(_ context.Context, unit string) ([]types.CardAccount, error) {
	unit = strings.TrimSpace(unit)
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.CardAccount
	for _, a := range s.byIdentity {
		if unit == "" || a.Unit == unit {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Unit != out[j].Unit {
			return out[i].Unit < out[j].Unit
		}
		return out[i].Identity < out[j].Identity
	})
	return out, nil
}

func (s *Store) Units(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := make(map[string]struct{})
	for _, a := range s.byIdentity {
		if a.Unit != "" {
			set[a.Unit] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Stats(_ context.Context) ([]types.UnitStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byUnit := make(map[string]*types.UnitStats)
	for _, a := range s.byIdentity {
		st, ok := byUnit[a.Unit]
		if !ok {
			st = &types.UnitStats{Unit: a.Unit}
			byUnit[a.Unit] = st
		}
		st.Total++
		if a.Entitled {
			st.Entitled++
		}
	}
	out := make([]types.UnitStats, 0, len(byUnit))
	for _, st := range byUnit {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Unit < out[j].Unit })
	return out, nil
}
