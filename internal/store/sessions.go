package store

import (
	"context"
	"database/sql"
	"time"
)

// SessionType mirrors §3's Session.type.
type SessionType string

const (
	SessionTypeChat  SessionType = "chat"
	SessionTypeCodex SessionType = "codex"
)

// SessionStatus mirrors §3's Session.status.
type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
	SessionStatusFailed    SessionStatus = "failed"
)

// Session mirrors §3's Session entity.
type Session struct {
	ID               string
	Type             SessionType
	ProjectID        string
	Status           SessionStatus
	StartedAt        time.Time
	LastActive       time.Time
	CompletedAt      *time.Time
	CompletionReason string
}

// CreateSession inserts a new running session.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	return s.Write(ctx, "", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, type, project_id, status, started_at, last_active)
			VALUES (?, ?, ?, ?, ?, ?)
		`, sess.ID, string(sess.Type), nullableString(sess.ProjectID), string(sess.Status),
			sess.StartedAt.Unix(), sess.LastActive.Unix())
		return err
	})
}

// TouchSession sets a session's last_active to at.
func (s *Store) TouchSession(ctx context.Context, id string, at time.Time) error {
	return s.Write(ctx, "", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE sessions SET last_active = ? WHERE id = ?`, at.Unix(), id)
		return err
	})
}

// FinalizeSession transitions a session to a terminal status. Per §3's
// monotonicity invariant the caller (pkg/completion, pkg/engine) is
// responsible for only calling this once per session.
func (s *Store) FinalizeSession(ctx context.Context, id string, status SessionStatus, reason string, at time.Time) error {
	return s.Write(ctx, "", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE sessions SET status = ?, completed_at = ?, completion_reason = ? WHERE id = ?
		`, string(status), at.Unix(), reason, id)
		return err
	})
}

// GetSession fetches a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, project_id, status, started_at, last_active, completed_at, completion_reason
		FROM sessions WHERE id = ?
	`, id)
	return scanSession(row)
}

// ListActiveCodexSessions returns running codex-type sessions, the set
// the completion detector (§4.H) watches.
func (s *Store) ListActiveCodexSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, project_id, status, started_at, last_active, completed_at, completion_reason
		FROM sessions WHERE type = ? AND status = ?
	`, string(SessionTypeCodex), string(SessionStatusRunning))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

func scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	var projectID sql.NullString
	var startedAt, lastActive int64
	var completedAt sql.NullInt64
	var reason sql.NullString

	if err := row.Scan(&sess.ID, &sess.Type, &projectID, &sess.Status, &startedAt, &lastActive, &completedAt, &reason); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	fillSession(&sess, projectID, startedAt, lastActive, completedAt, reason)
	return &sess, nil
}

func scanSessionRows(rows *sql.Rows) (*Session, error) {
	var sess Session
	var projectID sql.NullString
	var startedAt, lastActive int64
	var completedAt sql.NullInt64
	var reason sql.NullString

	if err := rows.Scan(&sess.ID, &sess.Type, &projectID, &sess.Status, &startedAt, &lastActive, &completedAt, &reason); err != nil {
		return nil, err
	}
	fillSession(&sess, projectID, startedAt, lastActive, completedAt, reason)
	return &sess, nil
}

func fillSession(sess *Session, projectID sql.NullString, startedAt, lastActive int64, completedAt sql.NullInt64, reason sql.NullString) {
	if projectID.Valid {
		sess.ProjectID = projectID.String
	}
	sess.StartedAt = time.Unix(startedAt, 0)
	sess.LastActive = time.Unix(lastActive, 0)
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		sess.CompletedAt = &t
	}
	if reason.Valid {
		sess.CompletionReason = reason.String
	}
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
