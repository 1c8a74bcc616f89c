package store

import (
	"context"
	"database/sql"
	"time"
)

// FactType mirrors §3's MemoryFact.fact_type.
type FactType string

const (
	FactGeneral    FactType = "general"
	FactCapability FactType = "capability"
	FactCorrection FactType = "correction"
	FactPreference FactType = "preference"
	FactSystem     FactType = "system"
)

// FactScope mirrors §3's MemoryFact.scope.
type FactScope string

const (
	ScopeGlobal  FactScope = "global"
	ScopeProject FactScope = "project"
	ScopeSession FactScope = "session"
)

// MemoryFact mirrors §3's MemoryFact entity (the embedding itself lives
// in the vector sidecar, keyed by ID, not in this row).
type MemoryFact struct {
	ID           string
	ProjectID    string
	SessionID    string
	Key          string
	Content      string
	FactType     FactType
	Category     string
	Confidence   float64
	CreatedAt    time.Time
	LastAccessed time.Time
	AccessCount  int
	Scope        FactScope
}

// Entity mirrors §3's RawEntity set members after canonicalization.
type Entity struct {
	CanonicalName string
	EntityType    string
}

// InsertFact persists a fact row together with its entity set,
// deduplicating entities by (canonical_name, entity_type) into the
// shared memory_entities table (§4.C).
func (s *Store) InsertFact(ctx context.Context, f MemoryFact, entities []Entity, rawNames map[string]string) error {
	return s.Write(ctx, f.ProjectID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO memory_facts (id, project_id, session_id, key, content, fact_type, category, confidence, created_at, last_accessed, access_count, scope)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, f.ID, nullableString(f.ProjectID), nullableString(f.SessionID), nullableString(f.Key), f.Content,
			string(f.FactType), nullableString(f.Category), f.Confidence, f.CreatedAt.Unix(), f.LastAccessed.Unix(),
			f.AccessCount, string(f.Scope))
		if err != nil {
			return err
		}

		for _, e := range entities {
			entityID, err := upsertEntity(ctx, tx, e)
			if err != nil {
				return err
			}
			raw := rawNames[e.CanonicalName+"|"+e.EntityType]
			if raw == "" {
				raw = e.CanonicalName
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO fact_entities (fact_id, entity_id, raw_name) VALUES (?, ?, ?)
			`, f.ID, entityID, raw); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertEntity(ctx context.Context, tx *sql.Tx, e Entity) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM memory_entities WHERE canonical_name = ? AND entity_type = ?`,
		e.CanonicalName, e.EntityType).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	id = e.CanonicalName + ":" + e.EntityType
	_, err = tx.ExecContext(ctx, `
		INSERT INTO memory_entities (id, canonical_name, entity_type) VALUES (?, ?, ?)
		ON CONFLICT(canonical_name, entity_type) DO NOTHING
	`, id, e.CanonicalName, e.EntityType)
	if err != nil {
		return "", err
	}
	return id, nil
}

// UpdateFactConfidence rewrites a fact's confidence, used by §4.C's
// contradiction-downweighting and repeated-storage trend-toward-mean
// rules.
func (s *Store) UpdateFactConfidence(ctx context.Context, factID string, confidence float64) error {
	return s.Write(ctx, "", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE memory_facts SET confidence = ? WHERE id = ?`, confidence, factID)
		return err
	})
}

// TouchFact bumps access_count and last_accessed on recall.
func (s *Store) TouchFact(ctx context.Context, factID string, at time.Time) error {
	return s.Write(ctx, "", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE memory_facts SET access_count = access_count + 1, last_accessed = ? WHERE id = ?
		`, at.Unix(), factID)
		return err
	})
}

// FactByKey finds an existing fact by its natural key, scoped to the
// same project/session, supporting the "repeated storage of the same
// key" confidence-trend rule.
func (s *Store) FactByKey(ctx context.Context, projectID, sessionID, key string) (*MemoryFact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, session_id, key, content, fact_type, category, confidence, created_at, last_accessed, access_count, scope
		FROM memory_facts WHERE key = ? AND COALESCE(project_id,'') = COALESCE(?,'') AND COALESCE(session_id,'') = COALESCE(?,'')
		ORDER BY created_at DESC LIMIT 1
	`, key, nullableString(projectID), nullableString(sessionID))
	return scanFact(row)
}

// CandidateFacts returns facts within the given scope filters, the
// pre-ranking candidate set for recall (§4.C).
func (s *Store) CandidateFacts(ctx context.Context, projectID, sessionID string, includeGlobal bool) ([]MemoryFact, error) {
	query := `
		SELECT id, project_id, session_id, key, content, fact_type, category, confidence, created_at, last_accessed, access_count, scope
		FROM memory_facts WHERE 1=0`
	args := []any{}

	if includeGlobal {
		query += ` OR scope = ?`
		args = append(args, string(ScopeGlobal))
	}
	if projectID != "" {
		query += ` OR (scope = ? AND project_id = ?)`
		args = append(args, string(ScopeProject), projectID)
	}
	if sessionID != "" {
		query += ` OR (scope = ? AND session_id = ?)`
		args = append(args, string(ScopeSession), sessionID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MemoryFact
	for rows.Next() {
		f, err := scanFactRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// EntitiesForFact returns the (canonical_name, entity_type) pairs
// attached to a fact at insert time.
func (s *Store) EntitiesForFact(ctx context.Context, factID string) ([]Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT me.canonical_name, me.entity_type
		FROM fact_entities fe JOIN memory_entities me ON me.id = fe.entity_id
		WHERE fe.fact_id = ?
	`, factID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.CanonicalName, &e.EntityType); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanFact(row *sql.Row) (*MemoryFact, error) {
	var f MemoryFact
	var projectID, sessionID, key, category sql.NullString
	var createdAt, lastAccessed int64

	if err := row.Scan(&f.ID, &projectID, &sessionID, &key, &f.Content, &f.FactType, &category,
		&f.Confidence, &createdAt, &lastAccessed, &f.AccessCount, &f.Scope); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	fillFact(&f, projectID, sessionID, key, category, createdAt, lastAccessed)
	return &f, nil
}

func scanFactRows(rows *sql.Rows) (*MemoryFact, error) {
	var f MemoryFact
	var projectID, sessionID, key, category sql.NullString
	var createdAt, lastAccessed int64

	if err := rows.Scan(&f.ID, &projectID, &sessionID, &key, &f.Content, &f.FactType, &category,
		&f.Confidence, &createdAt, &lastAccessed, &f.AccessCount, &f.Scope); err != nil {
		return nil, err
	}
	fillFact(&f, projectID, sessionID, key, category, createdAt, lastAccessed)
	return &f, nil
}

func fillFact(f *MemoryFact, projectID, sessionID, key, category sql.NullString, createdAt, lastAccessed int64) {
	f.ProjectID = projectID.String
	f.SessionID = sessionID.String
	f.Key = key.String
	f.Category = category.String
	f.CreatedAt = time.Unix(createdAt, 0)
	f.LastAccessed = time.Unix(lastAccessed, 0)
}
