package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/refectory/internal/refectory/store"
)

// ApplyBatch reconciles one batch of roster rows in a single transaction.
//
// Pass 1 updates every identity already present (card, unit, entitlement and
// timestamp refreshed; an empty roster card keeps the stored one). Pass 2
// inserts the remaining identities unless they are update-only, carry no
// card, or carry a card already held by another row or by an earlier insert
// in this batch. Constraint violations on a single row are skipped, not
// fatal.
func (s *CardStore) ApplyBatch(ctx context.Context, rows []store.Desired, at time.Time) (store.BatchResult, error) {
	if len(rows) == 0 {
		return store.BatchResult{}, nil
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	atMs := at.UTC().UnixMilli()

	trimmed := make([]store.Desired, len(rows))
	for i, d := range rows {
		d.Identity = strings.TrimSpace(d.Identity)
		d.CardID = strings.TrimSpace(d.CardID)
		trimmed[i] = d
	}
	rows = trimmed

	var res store.BatchResult
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res = store.BatchResult{}
		handled := make(map[string]struct{}, len(rows))

		for _, d := range rows {
			if d.Identity == "" {
				continue
			}
			r, err := tx.ExecContext(ctx, `
UPDATE cards
SET card_id       = COALESCE(NULLIF(?, ''), card_id),
    unit          = ?,
    entitled      = ?,
    updated_at_ms = ?
WHERE identity = ?;
`, d.CardID, d.Unit, boolInt(d.Entitled), atMs, d.Identity)
			if err != nil {
				if isConstraint(err) {
					res.Skip(d, store.SkipCardConflict)
					handled[d.Identity] = struct{}{}
					continue
				}
				return fmt.Errorf("ApplyBatch update %s: %w", d.Identity, err)
			}
			if n, _ := r.RowsAffected(); n > 0 {
				res.Updated += int(n)
				handled[d.Identity] = struct{}{}
			}
		}

		var missing []store.Desired
		for _, d := range rows {
			if d.Identity == "" {
				continue
			}
			if _, ok := handled[d.Identity]; !ok {
				missing = append(missing, d)
			}
		}
		if len(missing) == 0 {
			return nil
		}

		taken, err := existingCards(ctx, tx, missing)
		if err != nil {
			return err
		}

		inserted := make(map[string]struct{})
		for _, d := range missing {
			switch {
			case d.UpdateOnly:
				res.Skip(d, store.SkipUpdateOnlyAbsent)
				continue
			case d.CardID == "":
				res.Skip(d, store.SkipNoCard)
				continue
			}
			if _, ok := taken[d.CardID]; ok {
				res.Skip(d, store.SkipCardConflict)
				continue
			}
			if _, ok := inserted[d.CardID]; ok {
				res.Skip(d, store.SkipCardConflict)
				continue
			}

			if _, err := tx.ExecContext(ctx, `
INSERT INTO cards(identity, card_id, unit, entitled, updated_at_ms)
VALUES (?, ?, ?, ?, ?);
`, d.Identity, d.CardID, d.Unit, boolInt(d.Entitled), atMs); err != nil {
				if isConstraint(err) {
					res.Skip(d, store.SkipCardConflict)
					continue
				}
				return fmt.Errorf("ApplyBatch insert %s: %w", d.Identity, err)
			}
			inserted[d.CardID] = struct{}{}
			res.Inserted++
		}
		return nil
	})
	if err != nil {
		return store.BatchResult{}, err
	}
	return res, nil
}

func existingCards(ctx context.Context, tx *sql.Tx, rows []store.Desired) (map[string]struct{}, error) {
	var cards []string
	for _, d := range rows {
		if d.CardID != "" {
			cards = append(cards, d.CardID)
		}
	}
	cards = compact(cards)
	out := make(map[string]struct{}, len(cards))
	if len(cards) == 0 {
		return out, nil
	}

	args := make([]any, len(cards))
	for i, c := range cards {
		args[i] = c
	}
	q, err := tx.QueryContext(ctx, `SELECT card_id FROM cards WHERE card_id IN (`+placeholders(len(cards))+`);`, args...)
	if err != nil {
		return nil, fmt.Errorf("ApplyBatch existing cards: %w", err)
	}
	defer q.Close()

	for q.Next() {
		var c string
		if err := q.Scan(&c); err != nil {
			return nil, fmt.Errorf("ApplyBatch existing cards scan: %w", err)
		}
		out[c] = struct{}{}
	}
	return out, q.Err()
}
