package service

import (
	"context"
	"strings"
	"time"

	"github.com/BrandonDHaskell/refectory/internal/refectory/store"
)

type DeviceRegistry struct {
	store store.DeviceStore
}

func NewDeviceRegistry(st store.DeviceStore) *DeviceRegistry {
	return &DeviceRegistry{store: st}
}

func (r *DeviceRegistry) IsKnown(ctx context.Context, deviceSN string) (bool, error) {
	deviceSN = strings.TrimSpace(deviceSN)
	if deviceSN == "" {
		return false, nil
	}
	return r.store.IsKnown(ctx, deviceSN)
}

func (r *DeviceRegistry) NoteSeen(ctx context.Context, deviceSN, machineNo string) error {
	deviceSN = strings.TrimSpace(deviceSN)
	if deviceSN == "" {
		return nil
	}
	return r.store.MarkSeen(ctx, deviceSN, strings.TrimSpace(machineNo), time.Now().UTC())
}
