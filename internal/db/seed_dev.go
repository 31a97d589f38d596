package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type SeedCard struct {
	Identity string
	CardID   string
	Unit     string
	Entitled bool
}

type SeedDevOptions struct {
	Cards   []SeedCard
	Devices []string
}

// DefaultDevSeed is a small fixture so a fresh dev database can answer swipes.
var DefaultDevSeed = SeedDevOptions{
	Cards: []SeedCard{
		{Identity: "dev-user-1", CardID: "A1B2C3D4", Unit: "dev", Entitled: true},
		{Identity: "dev-user-2", CardID: "0E1F2A3B", Unit: "dev", Entitled: false},
	},
}

func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	now := time.Now().UTC().UnixMilli()

	for _, c := range opt.Cards {
		entitled := 0
		if c.Entitled {
			entitled = 1
		}
		if _, err := db.ExecContext(ctx, `
INSERT INTO cards(identity, card_id, unit, entitled, updated_at_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(identity) DO NOTHING;`, c.Identity, c.CardID, c.Unit, entitled, now); err != nil {
			return fmt.Errorf("seed card %s: %w", c.Identity, err)
		}
	}

	for _, dn := range opt.Devices {
		if _, err := db.ExecContext(ctx, `
INSERT INTO devices(device_sn, enabled, first_seen_at_ms)
VALUES (?, 1, ?)
ON CONFLICT(device_sn) DO UPDATE SET enabled = 1;`, dn, now); err != nil {
			return fmt.Errorf("seed device %s: %w", dn, err)
		}
	}

	return nil
}
