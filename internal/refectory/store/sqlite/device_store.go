package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/refectory/internal/db"
)

type DeviceStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewDeviceStore(db *sql.DB, writer *dbpkg.Worker) *DeviceStore {
	return &DeviceStore{db: db, writer: writer}
}

// IsKnown: a reader is known once an operator has enabled it.
func (s *DeviceStore) IsKnown(ctx context.Context, deviceSN string) (bool, error) {
	deviceSN = strings.TrimSpace(deviceSN)
	if deviceSN == "" {
		return false, nil
	}

	var enabled int
	err := s.db.QueryRowContext(ctx, `
SELECT enabled FROM devices WHERE device_sn = ?;
`, deviceSN).Scan(&enabled)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("IsKnown query: %w", err)
	}
	return enabled == 1, nil
}

// MarkSeen: ensure the device row exists and refresh last_seen and the
// machine number the reader reports.
func (s *DeviceStore) MarkSeen(ctx context.Context, deviceSN, machineNo string, t time.Time) error {
	deviceSN = strings.TrimSpace(deviceSN)
	if deviceSN == "" {
		return nil
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}
	ms := t.UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureDevice(ctx, tx, deviceSN, ms); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE devices
SET last_seen_at_ms = ?,
    machine_no      = CASE WHEN ? = '' THEN machine_no ELSE ? END
WHERE device_sn = ?;
`, ms, machineNo, machineNo, deviceSN); err != nil {
			return fmt.Errorf("MarkSeen update device: %w", err)
		}

		return nil
	})
}

// SetEnabled creates the device row if needed and sets whether the reader
// counts as known.
func (s *DeviceStore) SetEnabled(ctx context.Context, deviceSN string, enabled bool) error {
	deviceSN = strings.TrimSpace(deviceSN)
	if deviceSN == "" {
		return nil
	}
	flag := 0
	if enabled {
		flag = 1
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureDevice(ctx, tx, deviceSN, time.Now().UTC().UnixMilli()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE devices SET enabled = ? WHERE device_sn = ?;
`, flag, deviceSN); err != nil {
			return fmt.Errorf("SetEnabled update device: %w", err)
		}
		return nil
	})
}
