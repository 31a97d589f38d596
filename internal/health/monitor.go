// Package health tracks the roster pipeline's state for operators: overall
// status, the last successful reconciliation, the current roster document
// and a bounded list of recent errors.
package health

import (
	"slices"
	"sync"
	"time"
)

type Status string

const (
	StatusHealthy Status = "healthy"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Serving reports whether dependants should keep routing to this process.
// Warnings still serve; the previous good roster stays in effect.
func (s Status) Serving() bool { return s != StatusError }

type ErrorEntry struct {
	Time    time.Time `json:"time"`
	Type    string    `json:"type"`
	Message string    `json:"message"`
}

type Snapshot struct {
	Status       Status       `json:"status"`
	LastUpdate   *time.Time   `json:"last_update"`
	LastDocument string       `json:"latest_document"`
	RecentErrors []ErrorEntry `json:"errors"`
}

// Monitor is safe for concurrent use. The zero value is not usable; call
// NewMonitor.
type Monitor struct {
	mu        sync.Mutex
	status    Status
	lastRun   time.Time
	document  string
	errs      []ErrorEntry
	capacity  int
	now       func() time.Time
	listeners []func(Status)
}

func NewMonitor(capacity int) *Monitor {
	if capacity <= 0 {
		capacity = 50
	}
	return &Monitor{
		status:   StatusHealthy,
		capacity: capacity,
		now:      time.Now,
	}
}

// OnChange registers fn to be called with the new status whenever it
// changes. fn runs on the caller's goroutine and must not block.
func (m *Monitor) OnChange(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Monitor) SetDocument(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.document = name
}

// RecordSuccess marks a completed reconciliation.
func (m *Monitor) RecordSuccess() {
	m.mu.Lock()
	m.lastRun = m.now()
	fire := m.setLocked(StatusHealthy)
	m.mu.Unlock()
	fire()
}

// Warn records a recoverable fault, such as an unreadable roster file.
// An error status is not downgraded.
func (m *Monitor) Warn(kind string, err error) {
	m.mu.Lock()
	m.appendLocked(kind, err)
	next := StatusWarning
	if m.status == StatusError {
		next = StatusError
	}
	fire := m.setLocked(next)
	m.mu.Unlock()
	fire()
}

// Fail records a fault that stopped a reconciliation run.
func (m *Monitor) Fail(kind string, err error) {
	m.mu.Lock()
	m.appendLocked(kind, err)
	fire := m.setLocked(StatusError)
	m.mu.Unlock()
	fire()
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Status:       m.status,
		LastDocument: m.document,
		RecentErrors: make([]ErrorEntry, len(m.errs)),
	}
	copy(s.RecentErrors, m.errs)
	if !m.lastRun.IsZero() {
		t := m.lastRun.UTC()
		s.LastUpdate = &t
	}
	return s
}

func (m *Monitor) appendLocked(kind string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	m.errs = append(m.errs, ErrorEntry{Time: m.now().UTC(), Type: kind, Message: msg})
	if over := len(m.errs) - m.capacity; over > 0 {
		m.errs = append(m.errs[:0:0], m.errs[over:]...)
	}
}

// setLocked returns a function that notifies listeners outside the lock.
func (m *Monitor) setLocked(s Status) func() {
	if m.status == s {
		return func() {}
	}
	m.status = s
	ls := slices.Clone(m.listeners)
	return func() {
		for _, fn := range ls {
			fn(s)
		}
	}
}
