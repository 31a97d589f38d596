package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrWorkerClosed = errors.New("db worker closed")

type TxFn func(ctx context.Context, tx *sql.Tx) error

type job struct {
	ctx     context.Context
	fn      TxFn
	ch      chan error
	started chan struct{}
}

// Worker serialises every write transaction onto one goroutine. Together
// with BEGIN IMMEDIATE this gives each TxFn exclusive write access for its
// lifetime, which is what makes read-check-update sequences inside a TxFn
// linearizable.
type Worker struct {
	db     *sql.DB
	jobs   chan job
	done   chan struct{}
	closed chan struct{}
}

func NewWorker(db *sql.DB) *Worker {
	return NewWorkerSize(db, 256)
}

func NewWorkerSize(db *sql.DB, queue int) *Worker {
	if queue <= 0 {
		queue = 1
	}
	w := &Worker{
		db:     db,
		jobs:   make(chan job, queue),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) Close() {
	select {
	case <-w.closed:
		return
	default:
	}
	close(w.closed)
	close(w.jobs)
	<-w.done
}

// Do runs fn in its own transaction. fn's error rolls the transaction back.
// If ctx expires while the job is queued the transaction is never begun and
// ctx.Err() is returned; callers treat that as a lock-wait timeout. Once the
// worker has picked the job up, Do returns the transaction's own result so a
// commit is never reported as a failure.
func (w *Worker) Do(ctx context.Context, fn TxFn) (err error) {
	defer func() {
		// Enqueue after Close panics on the closed channel.
		if r := recover(); r != nil {
			err = ErrWorkerClosed
		}
	}()

	select {
	case <-w.closed:
		return ErrWorkerClosed
	default:
	}

	ch := make(chan error, 1)
	j := job{ctx: ctx, fn: fn, ch: ch, started: make(chan struct{})}

	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	}

	// A job still queued when ctx expires is skipped by the worker; its
	// result lands in the buffered ch and is discarded.
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		select {
		case <-j.started:
			return <-ch
		default:
			return ctx.Err()
		}
	}
}

func (w *Worker) loop() {
	defer close(w.done)

	for j := range w.jobs {
		j.ch <- w.run(j)
	}
}

func (w *Worker) run(j job) (err error) {
	close(j.started)
	if err := j.ctx.Err(); err != nil {
		return err
	}

	tx, err := w.db.BeginTx(j.ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("tx panic: %v", r)
		}
	}()

	if err := j.fn(j.ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}
