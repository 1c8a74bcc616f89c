package store

import (
	"context"
	"database/sql"
	"time"
)

// ArtifactKind mirrors §3's Artifact.kind.
type ArtifactKind string

const (
	ArtifactKindCode ArtifactKind = "code"
	ArtifactKindDiff ArtifactKind = "diff"
	ArtifactKindDoc  ArtifactKind = "doc"
)

// Artifact mirrors §3's Artifact entity. ContentHash is always computed
// centrally by pkg/artifact before reaching this layer (DESIGN.md Open
// Question #3) — the store never recomputes or trusts a caller-supplied
// hash beyond storing it.
type Artifact struct {
	ID               string
	OperationID      string
	Kind             ArtifactKind
	FilePath         string
	Content          []byte
	ContentHash      string
	Language         string
	DiffFromPrevious string
	CreatedAt        time.Time
	Seq              int
}

// InsertArtifact appends an artifact row. Artifacts are insert-only
// (§4.E): there is no UpdateArtifact.
func (s *Store) InsertArtifact(ctx context.Context, a Artifact) error {
	return s.Write(ctx, "", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO artifacts (id, operation_id, kind, file_path, content, content_hash, language, diff_from_previous, created_at, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, a.ID, a.OperationID, string(a.Kind), nullableString(a.FilePath), a.Content, a.ContentHash,
			nullableString(a.Language), nullableString(a.DiffFromPrevious), a.CreatedAt.Unix(), a.Seq)
		return err
	})
}

// GetArtifactsForOperation returns artifacts scoped strictly to
// operationID, in insertion order (Invariant 3).
func (s *Store) GetArtifactsForOperation(ctx context.Context, operationID string) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation_id, kind, file_path, content, content_hash, language, diff_from_previous, created_at, seq
		FROM artifacts WHERE operation_id = ? ORDER BY seq ASC
	`, operationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var a Artifact
		var filePath, language, diff sql.NullString
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.OperationID, &a.Kind, &filePath, &a.Content, &a.ContentHash,
			&language, &diff, &createdAt, &a.Seq); err != nil {
			return nil, err
		}
		a.FilePath = filePath.String
		a.Language = language.String
		a.DiffFromPrevious = diff.String
		a.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetArtifact fetches a single artifact by ID, used by fetch(id) in the
// artifact round-trip law (§8).
func (s *Store) GetArtifact(ctx context.Context, id string) (*Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, operation_id, kind, file_path, content, content_hash, language, diff_from_previous, created_at, seq
		FROM artifacts WHERE id = ?
	`, id)

	var a Artifact
	var filePath, language, diff sql.NullString
	var createdAt int64
	if err := row.Scan(&a.ID, &a.OperationID, &a.Kind, &filePath, &a.Content, &a.ContentHash,
		&language, &diff, &createdAt, &a.Seq); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.FilePath = filePath.String
	a.Language = language.String
	a.DiffFromPrevious = diff.String
	a.CreatedAt = time.Unix(createdAt, 0)
	return &a, nil
}
