package memory

import (
	"context"
	"strings"
	"time"

	"github.com/BrandonDHaskell/refectory/internal/refectory/store"
)

func (s *Store) RecordHeartbeat(_ context.Context, deviceSN string, rec store.HeartbeatRecord) error {
	deviceSN = strings.TrimSpace(deviceSN)
	if deviceSN == "" {
		return nil
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats = append(s.heartbeats, heartbeatRow{deviceSN: deviceSN, rec: rec})
	return nil
}

func (s *Store) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.heartbeats[:0]
	var deleted int64
	for _, h := range s.heartbeats {
		if h.rec.ReceivedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, h)
	}
	s.heartbeats = kept
	return deleted, nil
}

// Heartbeats returns the number of stored heartbeat rows. Test-only helper.
func (s *Store) Heartbeats() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heartbeats)
}
