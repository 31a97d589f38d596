package store

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/refectory/internal/refectory/types"
)

var (
	ErrCardNotFound = errors.New("card not found")
)

// CardStore owns the cards table: the single source of truth for whether a
// card may be consumed right now.
type CardStore interface {
	Lookup(ctx context.Context, cardID string) (types.CardAccount, error)

	// Consume performs the swipe state transition for one card in a single
	// write transaction: entitled → not entitled plus a TransactionRecord,
	// or a FailureRecord when the card is unknown or not entitled.
	Consume(ctx context.Context, req ConsumeRequest) (ConsumeResult, error)

	SetEntitlement(ctx context.Context, cardID string, entitled bool, at time.Time) (int64, error)
	SetEntitlementForIdentities(ctx context.Context, identities []string, entitled bool, at time.Time) (int64, error)

	ListByUnit(ctx context.Context, unit string) ([]types.CardAccount, error)
	Units(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) ([]types.UnitStats, error)
}

type ConsumeRequest struct {
	CardID   string
	Bucket   string
	DeviceSN string
	At       time.Time
}

type ConsumeResult struct {
	Kind    types.OutcomeKind
	Account *types.CardAccount
}
