package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BrandonDHaskell/refectory/internal/refectory/window"
)

type jobSink struct {
	mu   sync.Mutex
	jobs []Job
	stop int
}

func (s *jobSink) Submit(j Job) (Next, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, j)
	if len(s.jobs) >= s.stop {
		return CancelJob, nil
	}
	return Continue, nil
}

func TestScheduler_FiresEachTimePointInOrder(t *testing.T) {
	sink := &jobSink{stop: 4}
	s := NewScheduler(testPoints(t), time.Local, sink, discardLogger())

	clock := time.Date(2026, 2, 15, 1, 0, 0, 0, time.Local)
	var waits []time.Time
	s.now = func() time.Time { return clock }
	s.after = func(time.Duration) <-chan time.Time {
		at, _ := s.points.Next(clock)
		clock = at
		waits = append(waits, at)
		ch := make(chan time.Time, 1)
		ch <- at
		return ch
	}

	s.Run(context.Background())
	<-s.Done()

	var ids []window.ID
	for _, j := range sink.jobs {
		assert.True(t, j.Periodic)
		ids = append(ids, j.Window)
	}
	assert.Equal(t, []window.ID{window.First, window.Middle, window.Last, window.First}, ids)
	assert.Equal(t, 16, waits[3].Day())
	assert.Equal(t, 3, waits[3].Hour())
	assert.Equal(t, 25, waits[3].Minute())
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	s := NewScheduler(testPoints(t), time.Local, &jobSink{stop: 100}, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	cancel()

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_FiresOnConfiguredLocationClock(t *testing.T) {
	shanghai := time.FixedZone("CST", 8*60*60)
	sink := &jobSink{stop: 1}
	s := NewScheduler(testPoints(t), shanghai, sink, discardLogger())

	// 20:00 UTC is 04:00 the next day in UTC+8, so the next point is b.
	s.now = func() time.Time { return time.Date(2026, 2, 15, 20, 0, 0, 0, time.UTC) }
	var waited time.Duration
	s.after = func(d time.Duration) <-chan time.Time {
		waited = d
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}

	s.Run(context.Background())

	assert.Equal(t, []Job{{Window: window.Middle, Reason: "scheduled", Periodic: true}}, sink.jobs)
	// 09:25 UTC+8 on the 16th is 01:25 UTC.
	assert.Equal(t, 5*time.Hour+25*time.Minute, waited)
}
