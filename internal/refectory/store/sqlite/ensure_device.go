package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// ensureDevice guarantees a devices row exists for deviceSN so that
// foreign keys from device_heartbeats are satisfied.
//
// New rows start disabled; only an admin action (or the dev seeder) marks a
// reader as known. Must be called inside an existing transaction.
func ensureDevice(ctx context.Context, tx *sql.Tx, deviceSN string, nowMs int64) error {
	if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO devices(
  device_sn, enabled, first_seen_at_ms
) VALUES (?, 0, ?);
`, deviceSN, nowMs); err != nil {
		return fmt.Errorf("ensureDevice %s: %w", deviceSN, err)
	}
	return nil
}
