package store

import (
	"context"
	"database/sql"
)

// CodebaseModule mirrors §3's CodebaseModule entity.
type CodebaseModule struct {
	ProjectID        string
	ModuleID         string
	Path             string
	Purpose          string
	Exports          string // JSON array
	DependsOn        string // JSON array
	SymbolCount      int
	LineCount        int
	DetectedPatterns string // JSON
}

// ModuleDependency mirrors §3's ModuleDependency relationship.
type ModuleDependency struct {
	ProjectID   string
	Source      string
	Target      string
	DepType     string
	CallCount   int
	ImportCount int
	IsCircular  bool
}

// ReplaceModuleInventory atomically replaces a project's module
// inventory and dependency edges, matching the idempotent
// re-computation the detector performs on every index refresh.
func (s *Store) ReplaceModuleInventory(ctx context.Context, projectID string, modules []CodebaseModule, deps []ModuleDependency) error {
	return s.Write(ctx, projectID, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM codebase_modules WHERE project_id = ?`, projectID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM module_dependencies WHERE project_id = ?`, projectID); err != nil {
			return err
		}
		for _, m := range modules {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO codebase_modules (project_id, module_id, path, purpose, exports, depends_on, symbol_count, line_count, detected_patterns)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, projectID, m.ModuleID, m.Path, nullableString(m.Purpose), nullableString(m.Exports),
				nullableString(m.DependsOn), m.SymbolCount, m.LineCount, nullableString(m.DetectedPatterns)); err != nil {
				return err
			}
		}
		for _, d := range deps {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO module_dependencies (project_id, source, target, dep_type, call_count, import_count, is_circular)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, projectID, d.Source, d.Target, d.DepType, d.CallCount, d.ImportCount, boolToInt(d.IsCircular)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListModules returns a project's module inventory, capped by limit
// (§4.G context assembly caps it at 30).
func (s *Store) ListModules(ctx context.Context, projectID string, limit int) ([]CodebaseModule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, module_id, path, purpose, exports, depends_on, symbol_count, line_count, detected_patterns
		FROM codebase_modules WHERE project_id = ? ORDER BY line_count DESC LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CodebaseModule
	for rows.Next() {
		var m CodebaseModule
		var purpose, exports, depends, patterns sql.NullString
		if err := rows.Scan(&m.ProjectID, &m.ModuleID, &m.Path, &purpose, &exports, &depends, &m.SymbolCount, &m.LineCount, &patterns); err != nil {
			return nil, err
		}
		m.Purpose = purpose.String
		m.Exports = exports.String
		m.DependsOn = depends.String
		m.DetectedPatterns = patterns.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListModuleDependencies returns every dependency edge for a project,
// the input to Tarjan SCC circular-dependency detection.
func (s *Store) ListModuleDependencies(ctx context.Context, projectID string) ([]ModuleDependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, source, target, dep_type, call_count, import_count, is_circular
		FROM module_dependencies WHERE project_id = ?
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModuleDependency
	for rows.Next() {
		var d ModuleDependency
		var isCircular int
		if err := rows.Scan(&d.ProjectID, &d.Source, &d.Target, &d.DepType, &d.CallCount, &d.ImportCount, &isCircular); err != nil {
			return nil, err
		}
		d.IsCircular = isCircular != 0
		out = append(out, d)
	}
	return out, rows.Err()
}

// MarkCircularDependencies flips is_circular on the given (source,
// target) edges, called after Tarjan SCC detection recomputes findings.
func (s *Store) MarkCircularDependencies(ctx context.Context, projectID string, edges [][2]string) error {
	return s.Write(ctx, projectID, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE module_dependencies SET is_circular = 0 WHERE project_id = ?`, projectID); err != nil {
			return err
		}
		for _, e := range edges {
			if _, err := tx.ExecContext(ctx, `
				UPDATE module_dependencies SET is_circular = 1 WHERE project_id = ? AND source = ? AND target = ?
			`, projectID, e[0], e[1]); err != nil {
				return err
			}
		}
		return nil
	})
}
