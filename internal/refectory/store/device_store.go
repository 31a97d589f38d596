package store

import (
	"context"
	"time"
)

type DeviceRecord struct {
	DeviceSN  string
	MachineNo string
	Known     bool
	LastSeen  time.Time
}

type DeviceStore interface {
	IsKnown(ctx context.Context, deviceSN string) (bool, error)
	MarkSeen(ctx context.Context, deviceSN, machineNo string, t time.Time) error
}
