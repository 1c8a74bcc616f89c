package store

import (
	"context"
	"database/sql"
	"sync"
)

// writer serializes transactional writes onto a single goroutine, the way
// internal/project.Manager serializes indexer access per project and
// index.Watcher runs its debounce loop on a dedicated goroutine.
type writer struct {
	jobs      chan writeJob
	done      chan struct{}
	startOnce sync.Once
}

type writeJob struct {
	ctx    context.Context
	fn     func(*sql.Tx) error
	result chan error
}

func newWriter() *writer {
	w := &writer{
		jobs: make(chan writeJob, 64),
		done: make(chan struct{}),
	}
	return w
}

// do is lazily-started: the first call spins up the goroutine so that a
// project with no writes yet never owns an idle goroutine.
func (w *writer) do(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	w.ensureRunning(db)

	result := make(chan error, 1)
	job := writeJob{ctx: ctx, fn: fn, result: result}

	select {
	case w.jobs <- job:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *writer) ensureRunning(db *sql.DB) {
	w.startOnce.Do(func() {
		go w.loop(db)
	})
}

func (w *writer) loop(db *sql.DB) {
	for {
		select {
		case job := <-w.jobs:
			job.result <- w.runJob(db, job)
		case <-w.done:
			return
		}
	}
}

func (w *writer) runJob(db *sql.DB, job writeJob) error {
	tx, err := db.BeginTx(job.ctx, nil)
	if err != nil {
		return err
	}
	if err := job.fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (w *writer) stop() {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
}
