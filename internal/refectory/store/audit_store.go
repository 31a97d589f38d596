package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/refectory/internal/refectory/types"
)

// FailureKind values are persisted; do not renumber.
type FailureKind int

const (
	FailureNotEntitled   FailureKind = 1
	FailureCardNotFound  FailureKind = 2
	FailureOutsideWindow FailureKind = 3
	FailureInternalError FailureKind = 4
)

func (k FailureKind) String() string {
	switch k {
	case FailureNotEntitled:
		return string(types.OutcomeNotEntitled)
	case FailureCardNotFound:
		return string(types.OutcomeCardNotFound)
	case FailureOutsideWindow:
		return string(types.OutcomeOutsideWindow)
	case FailureInternalError:
		return string(types.OutcomeInternalError)
	}
	return "unknown"
}

// FailureRecord is an append-only audit row for a rejected swipe. Identity
// and Unit are empty when the card could not be resolved.
type FailureRecord struct {
	Identity   string
	Unit       string
	CardID     string
	DeviceSN   string
	Kind       FailureKind
	OccurredAt time.Time
}

// TransactionRecord is an append-only audit row for a consumed swipe.
type TransactionRecord struct {
	Identity   string
	Unit       string
	Bucket     string
	DeviceSN   string
	OccurredAt time.Time
}

type AuditStore interface {
	RecordFailure(ctx context.Context, rec FailureRecord) error
	Transactions(ctx context.Context, from, to time.Time) ([]TransactionRecord, error)
	Failures(ctx context.Context, from, to time.Time) ([]FailureRecord, error)
}
