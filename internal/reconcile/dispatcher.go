package reconcile

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/BrandonDHaskell/refectory/internal/refectory/window"
)

var ErrQueueFull = errors.New("reconcile: job queue full")

// Runner is satisfied by *Engine.
type Runner interface {
	Run(ctx context.Context, id window.ID) (RunReport, error)
}

// Next tells a trigger whether it should fire again.
type Next int

const (
	Continue  Next = iota // periodic job, keep scheduling
	CancelJob             // one-shot job, do not reschedule
)

type Job struct {
	Window   window.ID
	Reason   string
	Periodic bool
}

// Dispatcher runs reconciliation jobs on a bounded pool of workers.
type Dispatcher struct {
	runner  Runner
	points  window.TimePoints
	loc     *time.Location
	logger  *log.Logger
	jobs    chan Job
	workers int
	now     func() time.Time

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	reports chan RunReport
}

// NewDispatcher evaluates time points in loc, the same wall clock the swipe
// gate uses. A nil loc means time.Local.
func NewDispatcher(r Runner, points window.TimePoints, loc *time.Location, workers, queue int, logger *log.Logger) *Dispatcher {
	if loc == nil {
		loc = time.Local
	}
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = 8
	}
	return &Dispatcher{
		runner:  r,
		points:  points,
		loc:     loc,
		logger:  logger,
		jobs:    make(chan Job, queue),
		workers: workers,
		now:     time.Now,
	}
}

// Reports delivers every finished run when set before Start. Tests only.
func (d *Dispatcher) Reports(ch chan RunReport) { d.reports = ch }

func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(ctx)
	}
}

// Stop cancels running jobs and waits for the workers.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
}

// Submit enqueues j without blocking. It returns CancelJob for one-shot
// jobs and Continue for periodic ones, even when the queue was full.
func (d *Dispatcher) Submit(j Job) (Next, error) {
	next := CancelJob
	if j.Periodic {
		next = Continue
	}
	select {
	case d.jobs <- j:
		d.logger.Printf("reconcile: queued window %s (%s)", j.Window, j.Reason)
		return next, nil
	default:
		d.logger.Printf("reconcile: queue full, dropped window %s (%s)", j.Window, j.Reason)
		return next, ErrQueueFull
	}
}

// TriggerNow queues a one-shot run for the window the wall clock is in.
func (d *Dispatcher) TriggerNow(reason string) (Next, error) {
	return d.Submit(Job{Window: d.points.At(d.now().In(d.loc)), Reason: reason})
}

func (d *Dispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-d.jobs:
			d.run(ctx, j)
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, j Job) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Printf("reconcile: window %s: panic: %v", j.Window, r)
		}
	}()
	rep, err := d.runner.Run(ctx, j.Window)
	if err != nil {
		d.logger.Printf("reconcile: window %s (%s): %v", j.Window, j.Reason, err)
	}
	if d.reports != nil {
		select {
		case d.reports <- rep:
		case <-ctx.Done():
		}
	}
}
