package roster

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/BrandonDHaskell/refectory/internal/health"
)

// ChangeFunc is called once per detected document change, after the sheet
// cache has been purged.
type ChangeFunc func(doc Document)

type WatcherConfig struct {
	Dir      string
	Debounce time.Duration // default 500ms
}

// Watcher keeps the newest dated roster in Dir as the current document.
// A document counts as changed only when the selected name or its content
// hash differs from the last recorded one.
type Watcher struct {
	dir      string
	debounce time.Duration
	cache    *CachedSource
	monitor  *health.Monitor
	logger   *log.Logger
	onChange ChangeFunc

	mu      sync.RWMutex
	current *Document

	checkMu sync.Mutex
}

func NewWatcher(cfg WatcherConfig, cache *CachedSource, monitor *health.Monitor, logger *log.Logger, onChange ChangeFunc) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	return &Watcher{
		dir:      cfg.Dir,
		debounce: cfg.Debounce,
		cache:    cache,
		monitor:  monitor,
		logger:   logger,
		onChange: onChange,
	}
}

// Current returns the last known-good document.
func (w *Watcher) Current() (Document, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.current == nil {
		return Document{}, false
	}
	return *w.current, true
}

// Check rescans the directory. When the newest document cannot be read or
// opened the previous document stays current and the error goes to the
// health monitor as a warning.
func (w *Watcher) Check() (bool, error) {
	w.checkMu.Lock()
	defer w.checkMu.Unlock()

	doc, err := w.newest()
	if err != nil {
		if !errors.Is(err, ErrNoDocument) {
			w.logger.Printf("roster watcher: %v", err)
			w.monitor.Warn("file_check", err)
		}
		return false, err
	}

	prev, ok := w.Current()
	if ok && prev.Name == doc.Name && prev.Hash == doc.Hash {
		return false, nil
	}

	// A document that cannot be opened never becomes current, so the last
	// good roster stays in effect and a fixed re-upload is still a change.
	if _, err := w.cache.Units(doc); err != nil {
		err = fmt.Errorf("open %s: %w", doc.Name, err)
		w.logger.Printf("roster watcher: rejected %v", err)
		w.monitor.Warn("file_check", err)
		return false, err
	}

	w.logger.Printf("roster watcher: new or modified roster %s (hash %.12s)", doc.Name, doc.Hash)
	w.cache.Purge()

	w.mu.Lock()
	w.current = &doc
	w.mu.Unlock()
	w.monitor.SetDocument(doc.Name)

	if w.onChange != nil {
		w.onChange(doc)
	}
	return true, nil
}

func (w *Watcher) newest() (Document, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return Document{}, fmt.Errorf("list %s: %w", w.dir, err)
	}

	var (
		best     string
		bestDate time.Time
	)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		d, ok := ParseName(e.Name())
		if !ok {
			continue
		}
		if best == "" || d.After(bestDate) {
			best, bestDate = e.Name(), d
		}
	}
	if best == "" {
		return Document{}, ErrNoDocument
	}

	path := filepath.Join(w.dir, best)
	hash, err := HashFile(path)
	if err != nil {
		return Document{}, err
	}
	return Document{Name: best, Path: path, Date: bestDate, Hash: hash}, nil
}

// Run checks once, then rechecks after each burst of roster file events
// until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("roster watcher: %w", err)
	}
	defer fw.Close()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("roster watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("roster watcher: watch %s: %w", w.dir, err)
	}
	w.logger.Printf("roster watcher: watching %s", w.dir)

	_, _ = w.Check()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			if _, dated := ParseName(ev.Name); !dated {
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			w.safeCheck()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("roster watcher: fsnotify: %v", err)
			w.monitor.Warn("file_watch", err)
		}
	}
}

func (w *Watcher) safeCheck() {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			w.logger.Printf("roster watcher: %v", err)
			w.monitor.Warn("file_check", err)
		}
	}()
	_, _ = w.Check()
}
