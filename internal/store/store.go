// Package store provides typed access to the embedded relational store
// (component A). All writes for a given project are funneled through a
// single serialized writer goroutine; reads run concurrently against the
// shared *sql.DB.
package store

import (
	"context"
	_ "embed"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps the embedded SQLite database and the per-project writer
// queues that sequence mutating operations (§4.A, §5 "writer task").
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	writers map[string]*writer
}

// Open opens (creating if necessary) the SQLite database at path and
// applies the schema. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(8)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{
		db:      db,
		writers: make(map[string]*writer),
	}, nil
}

// Close shuts down all per-project writers and the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	for _, w := range s.writers {
		w.stop()
	}
	s.writers = make(map[string]*writer)
	s.mu.Unlock()

	return s.db.Close()
}

// DB exposes the underlying *sql.DB for read-only queries issued by
// components that need their own prepared statements (index search,
// memory recall). Mutations should go through Write instead.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Write sequences fn onto the named project's single writer goroutine,
// guaranteeing that writes for one project never interleave. projectID
// may be "" for project-independent writes (sessions, global facts),
// which share a single writer keyed by the empty string.
func (s *Store) Write(ctx context.Context, projectID string, fn func(*sql.Tx) error) error {
	w := s.writerFor(projectID)
	return w.do(ctx, s.db, fn)
}

func (s *Store) writerFor(projectID string) *writer {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.writers[projectID]
	if !ok {
		w = newWriter()
		s.writers[projectID] = w
	}
	return w
}
