package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/refectory/internal/health"
	"github.com/BrandonDHaskell/refectory/internal/reconcile"
	"github.com/BrandonDHaskell/refectory/internal/refectory/store"
	"github.com/BrandonDHaskell/refectory/internal/refectory/store/memory"
	"github.com/BrandonDHaskell/refectory/internal/refectory/types"
	"github.com/BrandonDHaskell/refectory/internal/refectory/window"
	"github.com/BrandonDHaskell/refectory/internal/roster"
	"github.com/BrandonDHaskell/refectory/internal/roster/rostertest"
)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

var rule = window.NewShiftRule([]string{"ns", "lds"}, []string{"ds", "day"})

type staticDocs struct {
	doc roster.Document
	ok  bool
}

func (s staticDocs) Current() (roster.Document, bool) { return s.doc, s.ok }

// fakeSource serves rows from memory; a unit listed in fail errors out.
type fakeSource struct {
	mu    sync.Mutex
	units []string
	rows  map[string][]types.RosterRow
	fail  map[string]error
	calls int

	unitsErr error
}

func (f *fakeSource) Units(roster.Document) ([]string, error) { return f.units, f.unitsErr }

func (f *fakeSource) Rows(_ roster.Document, unit string) ([]types.RosterRow, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err := f.fail[unit]; err != nil {
		return nil, err
	}
	return f.rows[unit], nil
}

type fixture struct {
	store   *memory.Store
	monitor *health.Monitor
	metrics *reconcile.Metrics
	reg     *prometheus.Registry
}

func newFixture() *fixture {
	reg := prometheus.NewRegistry()
	return &fixture{
		store:   memory.New(),
		monitor: health.NewMonitor(10),
		metrics: reconcile.NewMetrics(reg),
		reg:     reg,
	}
}

func (f *fixture) engine(src roster.Source, docs reconcile.DocumentProvider, cfg reconcile.Config) *reconcile.Engine {
	cfg.Rule = rule
	return reconcile.NewEngine(cfg, reconcile.Dependencies{
		Logger:  quietLogger(),
		Docs:    docs,
		Source:  src,
		Writer:  f.store,
		Monitor: f.monitor,
		Metrics: f.metrics,
	})
}

var doc = staticDocs{doc: roster.Document{Name: "2026-02-15.xlsx", Hash: "h1"}, ok: true}

func TestRun_OffDutyAbsentIdentityIsSkipped(t *testing.T) {
	f := newFixture()
	src := &fakeSource{
		units: []string{"kitchen"},
		rows: map[string][]types.RosterRow{
			"kitchen": {{Identity: "u1", Unit: "kitchen", OnDuty: false, Shift: "ns", CardID: "C1"}},
		},
	}

	rep, err := f.engine(src, doc, reconcile.Config{}).Run(context.Background(), window.Middle)
	require.NoError(t, err)
	require.Len(t, rep.Units, 1)

	u := rep.Units[0]
	assert.NoError(t, u.Err)
	assert.Zero(t, u.Inserted)
	assert.Zero(t, u.Updated)
	require.Len(t, u.Skipped, 1)
	assert.Equal(t, store.SkipUpdateOnlyAbsent, u.Skipped[0].Reason)

	_, err = f.store.Lookup(context.Background(), "C1")
	assert.ErrorIs(t, err, store.ErrCardNotFound)
	assert.Equal(t, health.StatusHealthy, f.monitor.Status())
}

func TestRun_DayShiftIneligibleInMiddleWindow(t *testing.T) {
	row := types.RosterRow{Identity: "u1", Unit: "kitchen", OnDuty: true, Shift: "day", CardID: "C1"}

	cases := []struct {
		id       window.ID
		entitled bool
		present  bool
	}{
		{window.First, true, true},
		{window.Middle, false, false},
		{window.Last, true, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.id), func(t *testing.T) {
			f := newFixture()
			src := &fakeSource{units: []string{"kitchen"}, rows: map[string][]types.RosterRow{"kitchen": {row}}}

			_, err := f.engine(src, doc, reconcile.Config{}).Run(context.Background(), tc.id)
			require.NoError(t, err)

			a, err := f.store.Lookup(context.Background(), "C1")
			if !tc.present {
				assert.ErrorIs(t, err, store.ErrCardNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.entitled, a.Entitled)
		})
	}
}

func TestRun_MiddleWindowLeavesDayShiftEntitlementUntouched(t *testing.T) {
	f := newFixture()
	f.store.Put(types.CardAccount{Identity: "u1", CardID: "C1", Unit: "kitchen", Entitled: false})
	src := &fakeSource{units: []string{"kitchen"}, rows: map[string][]types.RosterRow{
		"kitchen": {{Identity: "u1", Unit: "kitchen", OnDuty: true, Shift: "ds", CardID: "C1"}},
	}}

	rep, err := f.engine(src, doc, reconcile.Config{}).Run(context.Background(), window.Middle)
	require.NoError(t, err)
	assert.Zero(t, rep.Units[0].Desired)

	a, err := f.store.Lookup(context.Background(), "C1")
	require.NoError(t, err)
	assert.False(t, a.Entitled)
}

func TestRun_BatchesAndRevokes(t *testing.T) {
	f := newFixture()
	var rows []types.RosterRow
	for i := range 250 {
		id := fmt.Sprintf("u%03d", i)
		rows = append(rows, types.RosterRow{Identity: id, Unit: "kitchen", OnDuty: true, Shift: "ns", CardID: "C-" + id})
	}
	f.store.Put(types.CardAccount{Identity: "gone", CardID: "G1", Unit: "kitchen", Entitled: true})
	rows = append(rows, types.RosterRow{Identity: "gone", Unit: "kitchen", OnDuty: false, CardID: "G1"})

	src := &fakeSource{units: []string{"kitchen"}, rows: map[string][]types.RosterRow{"kitchen": rows}}
	rep, err := f.engine(src, doc, reconcile.Config{BatchSize: 100}).Run(context.Background(), window.Middle)
	require.NoError(t, err)

	updated, inserted, skipped, failed := rep.Totals()
	assert.Equal(t, 1, updated)
	assert.Equal(t, 250, inserted)
	assert.Zero(t, skipped)
	assert.Zero(t, failed)

	g, err := f.store.Lookup(context.Background(), "G1")
	require.NoError(t, err)
	assert.False(t, g.Entitled)

	assert.Equal(t, float64(251), testutil.ToFloat64(f.metrics.RecordsFor("kitchen")))
}

func TestRun_UnitFailureDoesNotAbortSiblings(t *testing.T) {
	f := newFixture()
	src := &fakeSource{
		units: []string{"broken", "kitchen", "laundry"},
		rows: map[string][]types.RosterRow{
			"kitchen": {{Identity: "u1", Unit: "kitchen", OnDuty: true, Shift: "ns", CardID: "C1"}},
			"laundry": {{Identity: "u2", Unit: "laundry", OnDuty: true, Shift: "ns", CardID: "C2"}},
		},
		fail: map[string]error{"broken": errors.New("sheet unreadable")},
	}

	rep, err := f.engine(src, doc, reconcile.Config{MaxWorkers: 2}).Run(context.Background(), window.Last)
	require.NoError(t, err)

	_, _, _, failed := rep.Totals()
	assert.Equal(t, 1, failed)
	for _, id := range []string{"C1", "C2"} {
		a, err := f.store.Lookup(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, a.Entitled)
	}

	snap := f.monitor.Snapshot()
	assert.Equal(t, health.StatusWarning, snap.Status)
	require.NotEmpty(t, snap.RecentErrors)
	assert.Equal(t, "department_process", snap.RecentErrors[0].Type)
}

func TestRun_NoDocument(t *testing.T) {
	f := newFixture()
	_, err := f.engine(&fakeSource{}, staticDocs{}, reconcile.Config{}).Run(context.Background(), window.First)
	assert.ErrorIs(t, err, reconcile.ErrNoDocument)
}

func TestRun_EngineInstancesAreIndependent(t *testing.T) {
	a, b := newFixture(), newFixture()
	src := &fakeSource{units: []string{"kitchen"}, rows: map[string][]types.RosterRow{
		"kitchen": {{Identity: "u1", Unit: "kitchen", OnDuty: true, Shift: "ns", CardID: "C1"}},
	}}

	_, err := a.engine(src, doc, reconcile.Config{}).Run(context.Background(), window.First)
	require.NoError(t, err)

	_, err = b.store.Lookup(context.Background(), "C1")
	assert.ErrorIs(t, err, store.ErrCardNotFound)
	assert.Equal(t, health.StatusHealthy, a.monitor.Status())
	assert.Nil(t, b.monitor.Snapshot().LastUpdate)
}

// Exercises the real workbook path: watcher selects the document, the
// cached source parses it, and an unchanged document does not re-trigger.
func TestRun_FromWorkbook(t *testing.T) {
	f := newFixture()
	dir := t.TempDir()
	rostertest.WriteWorkbook(t, filepath.Join(dir, "2026-02-15.xlsx"),
		rostertest.Sheet{Unit: "kitchen", Rows: rostertest.WithHeader(
			[]any{"u1", 1, "day", "C1"},
			[]any{"u2", 1, "ns", "C2"},
			[]any{"u3", 0, "ns", "C3"},
		)},
		rostertest.Sheet{Unit: "laundry", Rows: rostertest.WithHeader(
			[]any{"u4", 1, "lds", "C4"},
		)},
	)

	cache, err := roster.NewCachedSource(roster.XLSXSource{}, 10)
	require.NoError(t, err)
	var changes int
	w := roster.NewWatcher(roster.WatcherConfig{Dir: dir}, cache, f.monitor, quietLogger(),
		func(roster.Document) { changes++ })

	changed, err := w.Check()
	require.NoError(t, err)
	require.True(t, changed)

	e := f.engine(cache, w, reconcile.Config{})
	rep, err := e.Run(context.Background(), window.Middle)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-15.xlsx", rep.Document)

	_, inserted, skipped, failed := rep.Totals()
	assert.Equal(t, 2, inserted) // u2, u4
	assert.Equal(t, 1, skipped)  // u3 off duty and absent
	assert.Zero(t, failed)

	_, err = f.store.Lookup(context.Background(), "C1")
	assert.ErrorIs(t, err, store.ErrCardNotFound)

	changed, err = w.Check()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, changes)
}

func TestRun_UnreadableDocumentWarns(t *testing.T) {
	f := newFixture()
	src := &fakeSource{unitsErr: errors.New("zip: not a valid zip file")}

	_, err := f.engine(src, doc, reconcile.Config{}).Run(context.Background(), window.First)
	require.Error(t, err)

	snap := f.monitor.Snapshot()
	assert.Equal(t, health.StatusWarning, snap.Status)
	require.NotEmpty(t, snap.RecentErrors)
	assert.Equal(t, "update_process", snap.RecentErrors[0].Type)
}

func TestRun_CorruptNewerWorkbookKeepsPreviousDocument(t *testing.T) {
	f := newFixture()
	dir := t.TempDir()
	rostertest.WriteWorkbook(t, filepath.Join(dir, "2026-02-15.xlsx"),
		rostertest.Sheet{Unit: "kitchen", Rows: rostertest.WithHeader([]any{"u1", 1, "ns", "C1"})})

	cache, err := roster.NewCachedSource(roster.XLSXSource{}, 10)
	require.NoError(t, err)
	w := roster.NewWatcher(roster.WatcherConfig{Dir: dir}, cache, f.monitor, quietLogger(), nil)
	_, err = w.Check()
	require.NoError(t, err)

	e := f.engine(cache, w, reconcile.Config{})
	_, err = e.Run(context.Background(), window.First)
	require.NoError(t, err)
	require.Equal(t, health.StatusHealthy, f.monitor.Status())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "2026-02-16.xlsx"), []byte("not a workbook"), 0o644))
	changed, err := w.Check()
	require.Error(t, err)
	assert.False(t, changed)

	snap := f.monitor.Snapshot()
	assert.Equal(t, health.StatusWarning, snap.Status)
	assert.Equal(t, "2026-02-15.xlsx", snap.LastDocument)

	// Scheduled runs keep using the last good document.
	rep, err := e.Run(context.Background(), window.Middle)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-15.xlsx", rep.Document)
	_, _, _, failed := rep.Totals()
	assert.Zero(t, failed)
}
