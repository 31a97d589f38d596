package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/refectory/internal/db"
	"github.com/BrandonDHaskell/refectory/internal/refectory/store"
)

type AuditStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAuditStore(db *sql.DB, writer *dbpkg.Worker) *AuditStore {
	return &AuditStore{db: db, writer: writer}
}

// RecordFailure appends a failure row in its own short transaction. Used for
// rejections decided outside Consume (outside-window, internal-error).
func (s *AuditStore) RecordFailure(ctx context.Context, rec store.FailureRecord) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return insertFailure(ctx, tx, rec)
	})
}

func insertFailure(ctx context.Context, tx *sql.Tx, rec store.FailureRecord) error {
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO failures(identity, unit, card_id, failure_kind, device_sn, occurred_at_ms)
VALUES (?, ?, ?, ?, ?, ?);
`,
		nullIfEmpty(rec.Identity), nullIfEmpty(rec.Unit), nullIfEmpty(rec.CardID),
		int(rec.Kind), nullIfEmpty(rec.DeviceSN), rec.OccurredAt.UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert failure: %w", err)
	}
	return nil
}

func (s *AuditStore) Transactions(ctx context.Context, from, to time.Time) ([]store.TransactionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT identity, unit, bucket, COALESCE(device_sn, ''), occurred_at_ms
FROM transactions
WHERE occurred_at_ms >= ? AND occurred_at_ms < ?
ORDER BY occurred_at_ms, id;
`, from.UTC().UnixMilli(), to.UTC().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("Transactions: %w", err)
	}
	defer rows.Close()

	var out []store.TransactionRecord
	for rows.Next() {
		var (
			r  store.TransactionRecord
			ms int64
		)
		if err := rows.Scan(&r.Identity, &r.Unit, &r.Bucket, &r.DeviceSN, &ms); err != nil {
			return nil, fmt.Errorf("Transactions scan: %w", err)
		}
		r.OccurredAt = time.UnixMilli(ms).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *AuditStore) Failures(ctx context.Context, from, to time.Time) ([]store.FailureRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT COALESCE(identity, ''), COALESCE(unit, ''), COALESCE(card_id, ''),
       failure_kind, COALESCE(device_sn, ''), occurred_at_ms
FROM failures
WHERE occurred_at_ms >= ? AND occurred_at_ms < ?
ORDER BY occurred_at_ms, id;
`, from.UTC().UnixMilli(), to.UTC().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("Failures: %w", err)
	}
	defer rows.Close()

	var out []store.FailureRecord
	for rows.Next() {
		var (
			r    store.FailureRecord
			kind int
			ms   int64
		)
		if err := rows.Scan(&r.Identity, &r.Unit, &r.CardID, &kind, &r.DeviceSN, &ms); err != nil {
			return nil, fmt.Errorf("Failures scan: %w", err)
		}
		r.Kind = store.FailureKind(kind)
		r.OccurredAt = time.UnixMilli(ms).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
