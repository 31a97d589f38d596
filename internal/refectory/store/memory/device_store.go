package memory

import (
	"context"
	"strings"
	"sync"
	"time"
)

type DeviceStore struct {
	mu      sync.RWMutex
	known   map[string]struct{}
	seen    map[string]time.Time
	machine map[string]string
}

func NewDeviceStore(knownDevices []string) *DeviceStore {
	k := make(map[string]struct{}, len(knownDevices))
	for _, d := range knownDevices {
		d = strings.TrimSpace(d)
		if d != "" {
			k[d] = struct{}{}
		}
	}
	return &DeviceStore{
		known:   k,
		seen:    make(map[string]time.Time),
		machine: make(map[string]string),
	}
}

func (s *DeviceStore) IsKnown(_ context.Context, deviceSN string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.known[deviceSN]
	return ok, nil
}

func (s *DeviceStore) MarkSeen(_ context.Context, deviceSN, machineNo string, t time.Time) error {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[deviceSN] = t
	if machineNo != "" {
		s.machine[deviceSN] = machineNo
	}
	return nil
}

// LastSeen is a test helper.
func (s *DeviceStore) LastSeen(deviceSN string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.seen[deviceSN]
	return t, ok
}
