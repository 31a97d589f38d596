package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BrandonDHaskell/refectory/internal/refectory/store"
	"github.com/BrandonDHaskell/refectory/internal/refectory/types"
)

var (
	ErrInvalidDeviceSN = errors.New("device serial (dn) is required")
)

type HeartbeatService struct {
	heartbeatStore store.HeartbeatStore
	registry       *DeviceRegistry
}

func NewHeartbeatService(hs store.HeartbeatStore, reg *DeviceRegistry) *HeartbeatService {
	return &HeartbeatService{heartbeatStore: hs, registry: reg}
}

// Record stores a reader keepalive. Unknown readers are recorded too; Known
// only reports whether an operator has enabled the device.
func (s *HeartbeatService) Record(ctx context.Context, req types.HeartbeatRequest) (types.HeartbeatResponse, error) {
	deviceSN := strings.TrimSpace(req.DeviceSN)
	if deviceSN == "" {
		return types.HeartbeatResponse{}, ErrInvalidDeviceSN
	}

	known, err := s.registry.IsKnown(ctx, deviceSN)
	if err != nil {
		return types.HeartbeatResponse{}, err
	}
	_ = s.registry.NoteSeen(ctx, deviceSN, req.MachineNo)

	rec := store.HeartbeatRecord{
		ReceivedAt: time.Now().UTC(),
		Request:    req,
	}

	if err := s.heartbeatStore.RecordHeartbeat(ctx, deviceSN, rec); err != nil {
		return types.HeartbeatResponse{}, err
	}

	return types.HeartbeatResponse{
		Known:      known,
		DeviceSN:   deviceSN,
		ServerTime: time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}
