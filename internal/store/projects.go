package store

import (
	"context"
	"database/sql"
	"time"
)

// Project mirrors §3's Project entity.
type Project struct {
	ID              string
	Name            string
	RootPath        string
	LanguageProfile string
	CreatedAt       time.Time
}

// UpsertProject creates a project row if absent. Per §3, "created on
// first attachment; never deleted implicitly" — there is no DeleteProject.
func (s *Store) UpsertProject(ctx context.Context, p Project) error {
	return s.Write(ctx, "", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projects (id, name, root_path, language_profile, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name=excluded.name, language_profile=excluded.language_profile
		`, p.ID, p.Name, p.RootPath, p.LanguageProfile, p.CreatedAt.Unix())
		return err
	})
}

// GetProject fetches a project by ID.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, root_path, language_profile, created_at FROM projects WHERE id = ?
	`, id)
	return scanProject(row)
}

// GetProjectByPath fetches a project by its root path.
func (s *Store) GetProjectByPath(ctx context.Context, rootPath string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, root_path, language_profile, created_at FROM projects WHERE root_path = ?
	`, rootPath)
	return scanProject(row)
}

func scanProject(row *sql.Row) (*Project, error) {
	var p Project
	var createdAt int64
	if err := row.Scan(&p.ID, &p.Name, &p.RootPath, &p.LanguageProfile, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = time.Unix(createdAt, 0)
	return &p, nil
}
