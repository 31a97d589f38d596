package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/BrandonDHaskell/refectory/internal/refectory/store"
	"github.com/BrandonDHaskell/refectory/internal/refectory/types"
	"github.com/BrandonDHaskell/refectory/internal/refectory/window"
)

// OutcomeObserver receives every terminal swipe outcome (metrics).
type OutcomeObserver interface {
	ObserveSwipe(kind types.OutcomeKind, bucket string)
}

type SwipeConfig struct {
	Schedule window.Schedule

	// LockTimeout bounds how long a swipe waits for the write lock. Expiry
	// is reported as internal-error. Defaults to 5s.
	LockTimeout time.Duration

	// Location is the wall clock the schedule is evaluated in. Defaults to
	// time.Local.
	Location *time.Location
}

type SwipeService struct {
	cards    store.CardStore
	audit    store.AuditStore
	registry *DeviceRegistry
	cfg      SwipeConfig
	logger   *log.Logger
	observer OutcomeObserver

	now func() time.Time
}

func NewSwipeService(
	cards store.CardStore,
	audit store.AuditStore,
	reg *DeviceRegistry,
	cfg SwipeConfig,
	logger *log.Logger,
) *SwipeService {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 5 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &SwipeService{
		cards:    cards,
		audit:    audit,
		registry: reg,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *SwipeService) SetObserver(o OutcomeObserver) { s.observer = o }

// SetClock replaces the wall clock. Tests only.
func (s *SwipeService) SetClock(now func() time.Time) { s.now = now }

// Validate decides one swipe. It never returns an error: every failure,
// including storage failure, becomes a rejected outcome and an audit row.
func (s *SwipeService) Validate(ctx context.Context, req types.SwipeRequest) types.SwipeOutcome {
	now := s.now().In(s.cfg.Location)
	cardID := strings.TrimSpace(req.CardID)
	out := types.SwipeOutcome{
		Bucket:    BucketFor(req.MachineNo),
		DecidedAt: now.UTC(),
	}

	defer func() {
		if s.registry != nil {
			if err := s.registry.NoteSeen(ctx, req.DeviceSN, req.MachineNo); err != nil {
				s.logger.Printf("swipe: mark device %s seen: %v", req.DeviceSN, err)
			}
		}
		if s.observer != nil {
			s.observer.ObserveSwipe(out.Kind, out.Bucket)
		}
	}()

	if _, ok := s.cfg.Schedule.Allows(now); !ok {
		out.Kind = types.OutcomeOutsideWindow
		out.Account = s.lookup(ctx, cardID)
		s.recordFailure(ctx, req, out)
		s.logger.Printf("swipe: card %s on %s rejected: outside meal window at %s",
			cardID, req.DeviceSN, window.MinuteOf(now))
		return out
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockTimeout)
	defer cancel()

	res, err := s.cards.Consume(lockCtx, store.ConsumeRequest{
		CardID:   cardID,
		Bucket:   out.Bucket,
		DeviceSN: strings.TrimSpace(req.DeviceSN),
		At:       now,
	})
	if err != nil {
		out.Kind = types.OutcomeInternalError
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Printf("swipe: card %s on %s: write lock not acquired within %s", cardID, req.DeviceSN, s.cfg.LockTimeout)
		} else {
			s.logger.Printf("swipe: card %s on %s: storage error: %v", cardID, req.DeviceSN, err)
		}
		s.recordFailure(ctx, req, out)
		return out
	}

	out.Kind = res.Kind
	out.Account = res.Account
	switch out.Kind {
	case types.OutcomeConsumed:
		s.logger.Printf("swipe: card %s (%s/%s) consumed on %s bucket %s",
			cardID, out.Account.Unit, out.Account.Identity, req.DeviceSN, out.Bucket)
	case types.OutcomeCardNotFound:
		s.logger.Printf("swipe: card %s on %s rejected: card not found", cardID, req.DeviceSN)
	case types.OutcomeNotEntitled:
		s.logger.Printf("swipe: card %s (%s) on %s rejected: not entitled",
			cardID, out.Account.Identity, req.DeviceSN)
	}
	return out
}

// lookup is best effort: the outside-window audit row carries the identity
// when the card resolves, and stays anonymous otherwise.
func (s *SwipeService) lookup(ctx context.Context, cardID string) *types.CardAccount {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LockTimeout)
	defer cancel()

	a, err := s.cards.Lookup(ctx, cardID)
	if err != nil {
		if !errors.Is(err, store.ErrCardNotFound) {
			s.logger.Printf("swipe: lookup %s: %v", cardID, err)
		}
		return nil
	}
	return &a
}

// recordFailure appends the audit row for rejections decided outside
// Consume. A failure here is logged and otherwise ignored; the reader still
// gets its rejection.
func (s *SwipeService) recordFailure(ctx context.Context, req types.SwipeRequest, out types.SwipeOutcome) {
	rec := store.FailureRecord{
		CardID:     strings.TrimSpace(req.CardID),
		DeviceSN:   strings.TrimSpace(req.DeviceSN),
		OccurredAt: out.DecidedAt,
	}
	switch out.Kind {
	case types.OutcomeOutsideWindow:
		rec.Kind = store.FailureOutsideWindow
	default:
		rec.Kind = store.FailureInternalError
	}
	if out.Account != nil {
		rec.Identity = out.Account.Identity
		rec.Unit = out.Account.Unit
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.LockTimeout)
	defer cancel()
	if err := s.audit.RecordFailure(ctx, rec); err != nil {
		s.logger.Printf("swipe: record %s failure for %s: %v", out.Kind, rec.CardID, err)
	}
}
