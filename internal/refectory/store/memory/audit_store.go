package memory

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/refectory/internal/refectory/store"
)

func (s *Store) RecordFailure(ctx context.Context, rec store.FailureRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, rec)
	return nil
}

func (s *Store) Transactions(_ context.Context, from, to time.Time) ([]store.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.TransactionRecord
	for _, r := range s.transactions {
		if inRange(r.OccurredAt, from, to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) Failures(_ context.Context, from, to time.Time) ([]store.FailureRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.FailureRecord
	for _, r := range s.failures {
		if inRange(r.OccurredAt, from, to) {
			out = append(out, r)
		}
	}
	return out, nil
}

// [from, to)
func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}
