package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/BrandonDHaskell/refectory/internal/refectory/store"
)

// HeartbeatPruner trims the append-only reader heartbeat log. A retention
// of 0 disables it.
type HeartbeatPruner struct {
	store     store.HeartbeatStore
	retention time.Duration
	interval  time.Duration
	logger    *log.Logger

	now      func() time.Time
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

type PrunerConfig struct {
	// Retention is how much heartbeat history to keep; 0 keeps everything.
	Retention time.Duration

	// Interval between runs. Defaults to 6h.
	Interval time.Duration
}

func NewHeartbeatPruner(s store.HeartbeatStore, cfg PrunerConfig, logger *log.Logger) *HeartbeatPruner {
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	return &HeartbeatPruner{
		store:     s,
		retention: cfg.Retention,
		interval:  cfg.Interval,
		logger:    logger,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Start runs one prune immediately, then repeats every interval until ctx
// is cancelled or Stop is called.
func (p *HeartbeatPruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		p.logger.Printf("heartbeat pruner: disabled (retention=0)")
		p.stopOnce.Do(func() { close(p.done) })
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)

	p.logger.Printf("heartbeat pruner: started (retention=%s, interval=%s)", p.retention, p.interval)
}

// Stop is safe to call more than once.
func (p *HeartbeatPruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *HeartbeatPruner) loop(ctx context.Context) {
	defer p.stopOnce.Do(func() { close(p.done) })

	_, _ = p.RunOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = p.RunOnce(ctx)
		}
	}
}

// RunOnce deletes heartbeats older than the retention and reports how many
// rows went.
func (p *HeartbeatPruner) RunOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().UTC().Add(-p.retention)
	deleted, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Printf("heartbeat pruner: %v", err)
		return 0, err
	}
	if deleted > 0 {
		p.logger.Printf("heartbeat pruner: deleted %d rows older than %s",
			deleted, cutoff.Format(time.RFC3339))
	}
	return deleted, nil
}
