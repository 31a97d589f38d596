package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/BrandonDHaskell/refectory/internal/config"
	dbpkg "github.com/BrandonDHaskell/refectory/internal/db"
	"github.com/BrandonDHaskell/refectory/internal/refectory/store"
	"github.com/BrandonDHaskell/refectory/internal/refectory/store/memory"
	"github.com/BrandonDHaskell/refectory/internal/refectory/store/sqlite"
	"github.com/BrandonDHaskell/refectory/internal/refectory/types"
)

type stores struct {
	cards      store.CardStore
	audit      store.AuditStore
	heartbeats store.HeartbeatStore
	devices    store.DeviceStore
	roster     store.RosterWriter
	close      func()
}

func openStores(ctx context.Context, cfg config.Config, logger *log.Logger) (*stores, error) {
	if cfg.Store == config.StoreMemory {
		logger.Printf("store: memory (data is lost on exit)")
		return openMemory(cfg), nil
	}

	conn, err := dbpkg.Open(ctx, dbpkg.Config{
		Path:        cfg.DBPath,
		Env:         cfg.Env,
		BusyTimeout: cfg.BusyTimeout(),
	})
	if err != nil {
		return nil, err
	}
	if cfg.Env == "dev" {
		if err := dbpkg.SeedDev(ctx, conn, dbpkg.DefaultDevSeed); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("seed dev: %w", err)
		}
	}
	logger.Printf("store: sqlite %s", cfg.DBPath)

	writer := dbpkg.NewWorker(conn)
	cards := sqlite.NewCardStore(conn, writer)
	devices := sqlite.NewDeviceStore(conn, writer)
	for _, dn := range cfg.KnownDevices {
		if err := devices.SetEnabled(ctx, dn, true); err != nil {
			logger.Printf("store: register device %s: %v", dn, err)
		}
	}

	return &stores{
		cards:      cards,
		audit:      sqlite.NewAuditStore(conn, writer),
		heartbeats: sqlite.NewHeartbeatStore(conn, writer),
		devices:    devices,
		roster:     cards,
		close: func() {
			writer.Close()
			_ = conn.Close()
		},
	}, nil
}

func openMemory(cfg config.Config) *stores {
	st := memory.New()
	if cfg.Env == "dev" {
		for _, c := range dbpkg.DefaultDevSeed.Cards {
			st.Put(types.CardAccount{
				Identity:  c.Identity,
				CardID:    c.CardID,
				Unit:      c.Unit,
				Entitled:  c.Entitled,
				UpdatedAt: time.Now().UTC(),
			})
		}
	}
	return &stores{
		cards:      st,
		audit:      st,
		heartbeats: st,
		devices:    memory.NewDeviceStore(cfg.KnownDevices),
		roster:     st,
		close:      func() {},
	}
}
