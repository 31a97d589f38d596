package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/BrandonDHaskell/refectory/internal/refectory/store"
	sqlitestore "github.com/BrandonDHaskell/refectory/internal/refectory/store/sqlite"
)

var rosterAt = time.Date(2026, 2, 16, 3, 25, 0, 0, time.UTC)

// ═══════════════════════════════════════════════════════════════════════════
// ApplyBatch: update pass
// ═══════════════════════════════════════════════════════════════════════════

func TestApplyBatch_UpdatesExistingIdentity(t *testing.T) {
	conn := openTestDB(t)
	cs := sqlitestore.NewCardStore(conn, newTestWriter(t, conn))
	seedCard(t, conn, "u1", "OLD1", "kitchen", false)

	res, err := cs.ApplyBatch(context.Background(), []store.Desired{
		{Identity: "u1", Unit: "bakery", CardID: "NEW1", Entitled: true},
	}, rosterAt)
	if err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	if res.Updated != 1 || res.Inserted != 0 {
		t.Errorf("expected 1 update 0 inserts, got %+v", res)
	}

	var (
		card, unit string
		entitled   int
		updatedMs  int64
	)
	if err := conn.QueryRow(`SELECT card_id, unit, entitled, updated_at_ms FROM cards WHERE identity = 'u1'`).
		Scan(&card, &unit, &entitled, &updatedMs); err != nil {
		t.Fatalf("query: %v", err)
	}
	if card != "NEW1" || unit != "bakery" || entitled != 1 || updatedMs != rosterAt.UnixMilli() {
		t.Errorf("row not refreshed: card=%s unit=%s entitled=%d updated=%d", card, unit, entitled, updatedMs)
	}
}

func TestApplyBatch_EmptyRosterCardKeepsStoredCard(t *testing.T) {
	conn := openTestDB(t)
	cs := sqlitestore.NewCardStore(conn, newTestWriter(t, conn))
	seedCard(t, conn, "u1", "KEEP1", "kitchen", false)

	if _, err := cs.ApplyBatch(context.Background(), []store.Desired{
		{Identity: "u1", Unit: "kitchen", Entitled: true},
	}, rosterAt); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	if !entitledOf(t, conn, "KEEP1") {
		t.Error("expected KEEP1 entitled with its card unchanged")
	}
}

func TestApplyBatch_UpdateOnlyClearsExisting(t *testing.T) {
	conn := openTestDB(t)
	cs := sqlitestore.NewCardStore(conn, newTestWriter(t, conn))
	seedCard(t, conn, "u1", "C1", "kitchen", true)

	res, err := cs.ApplyBatch(context.Background(), []store.Desired{
		{Identity: "u1", Unit: "kitchen", Entitled: false, UpdateOnly: true},
	}, rosterAt)
	if err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	if res.Updated != 1 {
		t.Errorf("expected 1 update, got %+v", res)
	}
	if entitledOf(t, conn, "C1") {
		t.Error("expected entitled=0")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// ApplyBatch: insert pass
// ═══════════════════════════════════════════════════════════════════════════

func TestApplyBatch_InsertsMissingIdentity(t *testing.T) {
	conn := openTestDB(t)
	cs := sqlitestore.NewCardStore(conn, newTestWriter(t, conn))

	res, err := cs.ApplyBatch(context.Background(), []store.Desired{
		{Identity: "u9", Unit: "kitchen", CardID: "C9", Entitled: true},
	}, rosterAt)
	if err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	if res.Inserted != 1 {
		t.Errorf("expected 1 insert, got %+v", res)
	}
	if !entitledOf(t, conn, "C9") {
		t.Error("expected inserted card to be entitled")
	}
}

func TestApplyBatch_UpdateOnlyAbsent_Skipped(t *testing.T) {
	conn := openTestDB(t)
	cs := sqlitestore.NewCardStore(conn, newTestWriter(t, conn))

	res, err := cs.ApplyBatch(context.Background(), []store.Desired{
		{Identity: "u1", Unit: "kitchen", CardID: "C1", Entitled: false, UpdateOnly: true},
	}, rosterAt)
	if err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	if res.Inserted != 0 || res.Count(store.SkipUpdateOnlyAbsent) != 1 {
		t.Errorf("expected update-only skip, got %+v", res)
	}
	if n := countRows(t, conn, `SELECT COUNT(*) FROM cards`); n != 0 {
		t.Errorf("expected no rows, got %d", n)
	}
}

func TestApplyBatch_CardConflicts_SkipAndContinue(t *testing.T) {
	conn := openTestDB(t)
	cs := sqlitestore.NewCardStore(conn, newTestWriter(t, conn))
	seedCard(t, conn, "holder", "TAKEN", "kitchen", false)

	res, err := cs.ApplyBatch(context.Background(), []store.Desired{
		{Identity: "a", Unit: "kitchen", CardID: "TAKEN", Entitled: true}, // held by another identity
		{Identity: "b", Unit: "kitchen", CardID: "DUP", Entitled: true},
		{Identity: "c", Unit: "kitchen", CardID: "DUP", Entitled: true}, // same card earlier in this batch
		{Identity: "d", Unit: "kitchen", Entitled: true},                 // nothing to insert with
		{Identity: "e", Unit: "kitchen", CardID: "FREE", Entitled: true},
	}, rosterAt)
	if err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}

	if res.Inserted != 2 {
		t.Errorf("expected 2 inserts (b, e), got %+v", res)
	}
	if res.Count(store.SkipCardConflict) != 2 {
		t.Errorf("expected 2 card conflicts, got %+v", res.Skipped)
	}
	if res.Count(store.SkipNoCard) != 1 {
		t.Errorf("expected 1 no-card skip, got %+v", res.Skipped)
	}
	if n := countRows(t, conn, `SELECT COUNT(*) FROM cards`); n != 3 {
		t.Errorf("expected 3 rows (holder, b, e), got %d", n)
	}
}

func TestApplyBatch_UpdateCollidingCard_SkipsRowKeepsBatch(t *testing.T) {
	conn := openTestDB(t)
	cs := sqlitestore.NewCardStore(conn, newTestWriter(t, conn))
	seedCard(t, conn, "u1", "C1", "kitchen", false)
	seedCard(t, conn, "u2", "C2", "kitchen", false)

	res, err := cs.ApplyBatch(context.Background(), []store.Desired{
		{Identity: "u1", Unit: "kitchen", CardID: "C2", Entitled: true}, // collides with u2
		{Identity: "u2", Unit: "kitchen", CardID: "C2", Entitled: true},
	}, rosterAt)
	if err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	if res.Count(store.SkipCardConflict) != 1 || res.Updated != 1 {
		t.Errorf("expected 1 conflict and 1 update, got %+v", res)
	}
	if entitledOf(t, conn, "C1") {
		t.Error("u1 should be untouched after its conflicting update was skipped")
	}
	if !entitledOf(t, conn, "C2") {
		t.Error("u2 should be entitled")
	}
}

func TestApplyBatch_RepeatIsStable(t *testing.T) {
	conn := openTestDB(t)
	cs := sqlitestore.NewCardStore(conn, newTestWriter(t, conn))
	rows := []store.Desired{
		{Identity: "u1", Unit: "kitchen", CardID: "C1", Entitled: true},
		{Identity: "u2", Unit: "kitchen", CardID: "C2", Entitled: true},
	}
	ctx := context.Background()

	if _, err := cs.ApplyBatch(ctx, rows, rosterAt); err != nil {
		t.Fatalf("first ApplyBatch: %v", err)
	}
	res, err := cs.ApplyBatch(ctx, rows, rosterAt)
	if err != nil {
		t.Fatalf("second ApplyBatch: %v", err)
	}
	if res.Inserted != 0 || res.Updated != 2 {
		t.Errorf("second pass should only update, got %+v", res)
	}
	if n := countRows(t, conn, `SELECT COUNT(*) FROM cards`); n != 2 {
		t.Errorf("expected 2 rows, got %d", n)
	}
}
