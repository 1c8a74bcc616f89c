package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// BuildRun mirrors §3's BuildRun entity.
type BuildRun struct {
	ID           string
	ProjectID    string
	OperationID  string
	BuildType    string
	Command      string
	ExitCode     int
	StartedAt    time.Time
	CompletedAt  time.Time
	ErrorCount   int
	WarningCount int
	Stdout       string
	Stderr       string
}

// InsertBuildRun persists a completed build invocation.
func (s *Store) InsertBuildRun(ctx context.Context, r BuildRun) error {
	return s.Write(ctx, r.ProjectID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO build_runs (id, project_id, operation_id, build_type, command, exit_code, started_at, completed_at, error_count, warning_count, stdout, stderr)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, r.ID, r.ProjectID, nullableString(r.OperationID), r.BuildType, r.Command, r.ExitCode,
			r.StartedAt.Unix(), r.CompletedAt.Unix(), r.ErrorCount, r.WarningCount,
			nullableString(r.Stdout), nullableString(r.Stderr))
		return err
	})
}

// BuildError mirrors §3's BuildError entity.
type BuildError struct {
	ID              string
	BuildRunID      string
	ErrorHash       string
	Severity        string
	ErrorCode       string
	Message         string
	FilePath        string
	LineNumber      int
	Suggestion      string
	CodeSnippet     string
	Category        string
	FirstSeenAt     time.Time
	LastSeenAt      time.Time
	OccurrenceCount int
	ResolvedAt      *time.Time
}

// UpsertBuildError implements §4.E's ingest rule: bump occurrence_count
// and last_seen_at on an existing error_hash, else insert a fresh row
// with first_seen_at = last_seen_at = now (Invariant 7).
func (s *Store) UpsertBuildError(ctx context.Context, projectID string, be BuildError) error {
	return s.Write(ctx, projectID, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE build_errors SET occurrence_count = occurrence_count + 1, last_seen_at = ?, build_run_id = ?
			WHERE error_hash = ?
		`, be.LastSeenAt.Unix(), be.BuildRunID, be.ErrorHash)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO build_errors (id, build_run_id, error_hash, severity, error_code, message, file_path, line_number, suggestion, code_snippet, category, first_seen_at, last_seen_at, occurrence_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		`, be.ID, be.BuildRunID, be.ErrorHash, be.Severity, nullableString(be.ErrorCode), be.Message,
			nullableString(be.FilePath), nullableInt(be.LineNumber), nullableString(be.Suggestion),
			nullableString(be.CodeSnippet), be.Category, be.FirstSeenAt.Unix(), be.LastSeenAt.Unix())
		return err
	})
}

// UnresolvedBuildErrors returns build errors for a project's most
// recent build run that have not been marked resolved, feeding §4.G's
// context-assembly step 3 ("last build's unresolved errors").
func (s *Store) UnresolvedBuildErrors(ctx context.Context, projectID string, limit int) ([]BuildError, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT be.id, be.build_run_id, be.error_hash, be.severity, be.error_code, be.message, be.file_path,
		       be.line_number, be.suggestion, be.code_snippet, be.category, be.first_seen_at, be.last_seen_at,
		       be.occurrence_count, be.resolved_at
		FROM build_errors be
		JOIN build_runs br ON br.id = be.build_run_id
		WHERE br.project_id = ? AND be.resolved_at IS NULL
		  AND be.build_run_id = (
		      SELECT id FROM build_runs WHERE project_id = ? ORDER BY completed_at DESC LIMIT 1
		  )
		ORDER BY be.last_seen_at DESC
		LIMIT ?
	`, projectID, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BuildError
	for rows.Next() {
		be, err := scanBuildError(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, be)
	}
	return out, rows.Err()
}

func scanBuildError(rows *sql.Rows) (BuildError, error) {
	var be BuildError
	var errorCode, filePath, suggestion, snippet sql.NullString
	var lineNumber, resolvedAt sql.NullInt64
	var firstSeen, lastSeen int64

	err := rows.Scan(&be.ID, &be.BuildRunID, &be.ErrorHash, &be.Severity, &errorCode, &be.Message,
		&filePath, &lineNumber, &suggestion, &snippet, &be.Category, &firstSeen, &lastSeen,
		&be.OccurrenceCount, &resolvedAt)
	if err != nil {
		return be, err
	}
	be.ErrorCode = errorCode.String
	be.FilePath = filePath.String
	be.Suggestion = suggestion.String
	be.CodeSnippet = snippet.String
	if lineNumber.Valid {
		be.LineNumber = int(lineNumber.Int64)
	}
	be.FirstSeenAt = time.Unix(firstSeen, 0)
	be.LastSeenAt = time.Unix(lastSeen, 0)
	if resolvedAt.Valid {
		t := time.Unix(resolvedAt.Int64, 0)
		be.ResolvedAt = &t
	}
	return be, nil
}

// ErrorResolution mirrors §3's ErrorResolution entity.
type ErrorResolution struct {
	ErrorHash        string
	ResolutionType   string
	FilesChanged     string
	CommitHash       string
	ResolutionTimeMs int64
	ResolvedAt       time.Time
	Notes            string
}

// ErrNoMatchingError is returned by ResolveBuildError when error_hash
// names no row, so callers can distinguish a no-op from a real write.
var ErrNoMatchingError = errors.New("store: no build error with that hash")

// ResolveBuildError writes an ErrorResolution and marks every build_errors
// row sharing error_hash as resolved (§4.E "Resolution is a separate
// write ... marks all matching errors resolved_at = now").
func (s *Store) ResolveBuildError(ctx context.Context, projectID string, res ErrorResolution) error {
	return s.Write(ctx, projectID, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE build_errors SET resolved_at = ? WHERE error_hash = ?
		`, res.ResolvedAt.Unix(), res.ErrorHash)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrNoMatchingError
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO error_resolutions (error_hash, resolution_type, files_changed, commit_hash, resolution_time_ms, resolved_at, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(error_hash) DO UPDATE SET
				resolution_type = excluded.resolution_type, files_changed = excluded.files_changed,
				commit_hash = excluded.commit_hash, resolution_time_ms = excluded.resolution_time_ms,
				resolved_at = excluded.resolved_at, notes = excluded.notes
		`, res.ErrorHash, res.ResolutionType, nullableString(res.FilesChanged), nullableString(res.CommitHash),
			res.ResolutionTimeMs, res.ResolvedAt.Unix(), nullableString(res.Notes))
		return err
	})
}

// InjectBuildContext records which deduped errors from a failing build
// were attached to a subsequent operation (§4.E BuildContextInjection).
func (s *Store) InjectBuildContext(ctx context.Context, projectID, id, operationID, buildRunID string, errorIDs []string) error {
	return s.Write(ctx, projectID, func(tx *sql.Tx) error {
		joined := ""
		for i, e := range errorIDs {
			if i > 0 {
				joined += ","
			}
			joined += e
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO build_context_injections (id, operation_id, build_run_id, error_ids) VALUES (?, ?, ?, ?)
		`, id, operationID, buildRunID, joined)
		return err
	})
}

func nullableInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}
