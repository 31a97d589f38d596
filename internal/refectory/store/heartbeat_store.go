package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/refectory/internal/refectory/types"
)

type HeartbeatRecord struct {
	ReceivedAt time.Time
	Request    types.HeartbeatRequest
}

type HeartbeatStore interface {
	RecordHeartbeat(ctx context.Context, deviceSN string, rec HeartbeatRecord) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
