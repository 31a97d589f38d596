package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/BrandonDHaskell/refectory/internal/health"
	"github.com/BrandonDHaskell/refectory/internal/refectory/store"
	"github.com/BrandonDHaskell/refectory/internal/refectory/window"
	"github.com/BrandonDHaskell/refectory/internal/roster"
)

var ErrNoDocument = errors.New("reconcile: no current roster document")

// DocumentProvider yields the roster document currently in effect.
type DocumentProvider interface {
	Current() (roster.Document, bool)
}

type Config struct {
	BatchSize  int // rows per write transaction, default 100
	MaxWorkers int // units processed concurrently, default 4
	Rule       window.ShiftRule
}

type Dependencies struct {
	Logger  *log.Logger
	Docs    DocumentProvider
	Source  roster.Source
	Writer  store.RosterWriter
	Monitor *health.Monitor
	Metrics *Metrics
}

type UnitReport struct {
	Unit     string
	Rows     int
	Desired  int
	Updated  int
	Inserted int
	Skipped  []store.SkippedRow
	Err      error
}

type RunReport struct {
	ID       string
	Window   window.ID
	Document string
	Started  time.Time
	Duration time.Duration
	Units    []UnitReport
}

func (r RunReport) Totals() (updated, inserted, skipped, failed int) {
	for _, u := range r.Units {
		updated += u.Updated
		inserted += u.Inserted
		skipped += len(u.Skipped)
		if u.Err != nil {
			failed++
		}
	}
	return
}

// Engine owns one reconciliation pipeline. Its state lives on the instance
// so several engines can coexist in one process.
type Engine struct {
	cfg     Config
	logger  *log.Logger
	docs    DocumentProvider
	src     roster.Source
	writer  store.RosterWriter
	monitor *health.Monitor
	metrics *Metrics
	now     func() time.Time
}

func NewEngine(cfg Config, d Dependencies) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	return &Engine{
		cfg:     cfg,
		logger:  d.Logger,
		docs:    d.Docs,
		src:     d.Source,
		writer:  d.Writer,
		monitor: d.Monitor,
		metrics: d.Metrics,
		now:     time.Now,
	}
}

// Run reconciles every unit of the current document for window id. Unit
// failures are reported per unit and never abort siblings; the returned
// error covers only failures that stopped the whole run.
func (e *Engine) Run(ctx context.Context, id window.ID) (RunReport, error) {
	rep := RunReport{ID: uuid.NewString(), Window: id, Started: e.now()}
	e.metrics.Requested(string(id))

	doc, ok := e.docs.Current()
	if !ok {
		e.logger.Printf("reconcile %s: no roster document; skipping window %s", rep.ID, id)
		return rep, ErrNoDocument
	}
	rep.Document = doc.Name

	units, err := e.src.Units(doc)
	if err != nil {
		err = fmt.Errorf("list units of %s: %w", doc.Name, err)
		e.logger.Printf("reconcile %s: %v", rep.ID, err)
		e.metrics.Error("update_process")
		e.monitor.Warn("update_process", err)
		return rep, err
	}

	rep.Units = make([]UnitReport, len(units))
	var g errgroup.Group
	g.SetLimit(e.cfg.MaxWorkers)
	for i, unit := range units {
		g.Go(func() error {
			rep.Units[i] = e.runUnit(ctx, doc, unit, id)
			return nil
		})
	}
	_ = g.Wait()

	rep.Duration = e.now().Sub(rep.Started)
	e.metrics.Duration(rep.Duration.Seconds())

	updated, inserted, skipped, failed := rep.Totals()
	for _, u := range rep.Units {
		if u.Err != nil {
			e.monitor.Warn("department_process", fmt.Errorf("unit %s: %w", u.Unit, u.Err))
		}
	}
	if failed == 0 {
		e.monitor.RecordSuccess()
	}

	e.logger.Printf("reconcile %s: window %s on %s: %d updated, %d inserted, %d skipped, %d/%d units failed in %s",
		rep.ID, id, doc.Name, updated, inserted, skipped, failed, len(units), rep.Duration.Round(time.Millisecond))
	return rep, nil
}

func (e *Engine) runUnit(ctx context.Context, doc roster.Document, unit string, id window.ID) (rep UnitReport) {
	rep.Unit = unit
	defer func() {
		if r := recover(); r != nil {
			rep.Err = fmt.Errorf("panic: %v", r)
		}
		if rep.Err != nil {
			e.metrics.Error("department_process")
			e.logger.Printf("reconcile: unit %s: %v", unit, rep.Err)
		}
	}()

	rows, err := e.src.Rows(doc, unit)
	if err != nil {
		rep.Err = err
		return rep
	}
	rep.Rows = len(rows)

	desired := Classify(rows, id, e.cfg.Rule)
	rep.Desired = len(desired)
	if len(desired) == 0 {
		return rep
	}

	at := e.now()
	for _, batch := range chunk(desired, e.cfg.BatchSize) {
		if err := ctx.Err(); err != nil {
			rep.Err = err
			return rep
		}
		res, err := e.writer.ApplyBatch(ctx, batch, at)
		if err != nil {
			rep.Err = fmt.Errorf("apply batch: %w", err)
			return rep
		}
		rep.Updated += res.Updated
		rep.Inserted += res.Inserted
		rep.Skipped = append(rep.Skipped, res.Skipped...)
		for _, s := range res.Skipped {
			e.logger.Printf("reconcile: unit %s: skipped %s (card %q): %s", unit, s.Identity, s.CardID, s.Reason)
		}
	}

	e.metrics.Records(unit, rep.Updated+rep.Inserted)
	e.logger.Printf("reconcile: unit %s window %s: %d updated, %d inserted, %d skipped",
		unit, id, rep.Updated, rep.Inserted, len(rep.Skipped))
	return rep
}
