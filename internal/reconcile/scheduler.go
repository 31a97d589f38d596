package reconcile

import (
	"context"
	"log"
	"time"

	"github.com/BrandonDHaskell/refectory/internal/refectory/window"
)

// Submitter is satisfied by *Dispatcher.
type Submitter interface {
	Submit(j Job) (Next, error)
}

// Scheduler fires a periodic job at each daily time point, for the window
// that point names.
type Scheduler struct {
	points window.TimePoints
	loc    *time.Location
	sink   Submitter
	logger *log.Logger
	now    func() time.Time
	after  func(time.Duration) <-chan time.Time
	done   chan struct{}
}

// NewScheduler fires at the time points of loc's wall clock. A nil loc
// means time.Local.
func NewScheduler(points window.TimePoints, loc *time.Location, sink Submitter, logger *log.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		points: points,
		loc:    loc,
		sink:   sink,
		logger: logger,
		now:    time.Now,
		after:  time.After,
		done:   make(chan struct{}),
	}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)
	for {
		now := s.now()
		at, id := s.points.Next(now.In(s.loc))
		s.logger.Printf("reconcile scheduler: next run %s for window %s", at.Format(time.RFC3339), id)

		select {
		case <-ctx.Done():
			return
		case <-s.after(at.Sub(now)):
		}

		if next, err := s.sink.Submit(Job{Window: id, Reason: "scheduled", Periodic: true}); err != nil {
			s.logger.Printf("reconcile scheduler: window %s: %v", id, err)
		} else if next == CancelJob {
			return
		}
	}
}

// Done is closed when Run returns.
func (s *Scheduler) Done() <-chan struct{} { return s.done }
