package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/refectory/internal/db"
	"github.com/BrandonDHaskell/refectory/internal/refectory/store"
	"github.com/BrandonDHaskell/refectory/internal/refectory/types"
)

const selectCard = `
SELECT identity, card_id, unit, entitled, updated_at_ms
FROM cards`

type CardStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewCardStore(db *sql.DB, writer *dbpkg.Worker) *CardStore {
	return &CardStore{db: db, writer: writer}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(r rowScanner) (types.CardAccount, error) {
	var (
		a         types.CardAccount
		entitled  int
		updatedMs int64
	)
	if err := r.Scan(&a.Identity, &a.CardID, &a.Unit, &entitled, &updatedMs); err != nil {
		return types.CardAccount{}, err
	}
	a.Entitled = entitled == 1
	a.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return a, nil
}

func (s *CardStore) Lookup(ctx context.Context, cardID string) (types.CardAccount, error) {
	a, err := scanCard(s.db.QueryRowContext(ctx, selectCard+` WHERE card_id = ?;`, strings.TrimSpace(cardID)))
	if errors.Is(err, sql.ErrNoRows) {
		return types.CardAccount{}, store.ErrCardNotFound
	}
	if err != nil {
		return types.CardAccount{}, fmt.Errorf("Lookup: %w", err)
	}
	return a, nil
}

// Consume is the only path that clears an entitlement on behalf of a
// swipe. The read, the conditional update and the audit row share one
// immediate transaction on the single writer, so two swipes of the same card
// cannot both observe entitled=1.
func (s *CardStore) Consume(ctx context.Context, req store.ConsumeRequest) (store.ConsumeResult, error) {
	if req.At.IsZero() {
		req.At = time.Now().UTC()
	}
	atMs := req.At.UTC().UnixMilli()
	cardID := strings.TrimSpace(req.CardID)

	var res store.ConsumeResult
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res = store.ConsumeResult{}

		acct, err := scanCard(tx.QueryRowContext(ctx, selectCard+` WHERE card_id = ?;`, cardID))
		if errors.Is(err, sql.ErrNoRows) {
			res.Kind = types.OutcomeCardNotFound
			return insertFailure(ctx, tx, store.FailureRecord{
				CardID:     cardID,
				DeviceSN:   req.DeviceSN,
				Kind:       store.FailureCardNotFound,
				OccurredAt: req.At,
			})
		}
		if err != nil {
			return fmt.Errorf("Consume select: %w", err)
		}

		if !acct.Entitled {
			res.Kind = types.OutcomeNotEntitled
			res.Account = &acct
			return insertFailure(ctx, tx, store.FailureRecord{
				Identity:   acct.Identity,
				Unit:       acct.Unit,
				CardID:     cardID,
				DeviceSN:   req.DeviceSN,
				Kind:       store.FailureNotEntitled,
				OccurredAt: req.At,
			})
		}

		r, err := tx.ExecContext(ctx, `
UPDATE cards
SET entitled = 0,
    updated_at_ms = ?
WHERE card_id = ? AND entitled = 1;
`, atMs, cardID)
		if err != nil {
			return fmt.Errorf("Consume update: %w", err)
		}
		if n, err := r.RowsAffected(); err != nil {
			return fmt.Errorf("Consume rows affected: %w", err)
		} else if n != 1 {
			return fmt.Errorf("Consume update: %d rows changed for %s", n, cardID)
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO transactions(identity, unit, bucket, device_sn, occurred_at_ms)
VALUES (?, ?, ?, ?, ?);
`, acct.Identity, acct.Unit, req.Bucket, nullIfEmpty(req.DeviceSN), atMs); err != nil {
			return fmt.Errorf("Consume insert transaction: %w", err)
		}

		acct.Entitled = false
		acct.UpdatedAt = time.UnixMilli(atMs).UTC()
		res.Kind = types.OutcomeConsumed
		res.Account = &acct
		return nil
	})
	if err != nil {
		return store.ConsumeResult{}, err
	}
	return res, nil
}

func (s *CardStore) SetEntitlement(ctx context.Context, cardID string, entitled bool, at time.Time) (int64, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var affected int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		r, err := tx.ExecContext(ctx, `
UPDATE cards SET entitled = ?, updated_at_ms = ? WHERE card_id = ?;
`, boolInt(entitled), at.UTC().UnixMilli(), strings.TrimSpace(cardID))
		if err != nil {
			return fmt.Errorf("SetEntitlement: %w", err)
		}
		affected, _ = r.RowsAffected()
		return nil
	})
	return affected, err
}

func (s *CardStore) SetEntitlementForIdentities(ctx context.Context, identities []string, entitled bool, at time.Time) (int64, error) {
	ids := compact(identities)
	if len(ids) == 0 {
		return 0, nil
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	args := make([]any, 0, len(ids)+2)
	args = append(args, boolInt(entitled), at.UTC().UnixMilli())
	for _, id := range ids {
		args = append(args, id)
	}

	var affected int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		r, err := tx.ExecContext(ctx,
			`UPDATE cards SET entitled = ?, updated_at_ms = ? WHERE identity IN (`+placeholders(len(ids))+`);`,
			args...)
		if err != nil {
			return fmt.Errorf("SetEntitlementForIdentities: %w", err)
		}
		affected, _ = r.RowsAffected()
		return nil
	})
	return affected, err
}

func (s *CardStore) ListByUnit(ctx context.Context, unit string) ([]types.CardAccount, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if unit = strings.TrimSpace(unit); unit == "" {
		rows, err = s.db.QueryContext(ctx, selectCard+` ORDER BY unit, identity;`)
	} else {
		rows, err = s.db.QueryContext(ctx, selectCard+` WHERE unit = ? ORDER BY identity;`, unit)
	}
	if err != nil {
		return nil, fmt.Errorf("ListByUnit: %w", err)
	}
	defer rows.Close()

	var out []types.CardAccount
	for rows.Next() {
		a, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByUnit scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *CardStore) Units(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT unit FROM cards WHERE unit <> '' ORDER BY unit;`)
	if err != nil {
		return nil, fmt.Errorf("Units: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("Units scan: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *CardStore) Stats(ctx context.Context) ([]types.UnitStats, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT unit, COUNT(*), COALESCE(SUM(entitled), 0)
FROM cards
GROUP BY unit
ORDER BY unit;`)
	if err != nil {
		return nil, fmt.Errorf("Stats: %w", err)
	}
	defer rows.Close()

	var out []types.UnitStats
	for rows.Next() {
		var st types.UnitStats
		if err := rows.Scan(&st.Unit, &st.Total, &st.Entitled); err != nil {
			return nil, fmt.Errorf("Stats scan: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
