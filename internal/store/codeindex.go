package store

import (
	"context"
	"database/sql"
	"time"
)

// CodeSymbol mirrors §3's CodeSymbol entity.
type CodeSymbol struct {
	ID         string
	ProjectID  string
	FilePath   string
	Name       string
	SymbolType string
	StartLine  int
	EndLine    int
	Signature  string
	IsTest     bool
	IsAsync    bool
	Visibility string
}

// Import mirrors §3's Import relationship.
type Import struct {
	ProjectID  string
	FilePath   string
	ImportPath string
	IsExternal bool
}

// Call mirrors §3's Call relationship, resolved lazily by name.
type Call struct {
	ProjectID  string
	CallerID   string
	CalleeID   string
	CalleeName string
	CallCount  int
}

// CodeChunk mirrors §4.B's chunk table row.
type CodeChunk struct {
	ID           string
	ProjectID    string
	FilePath     string
	ChunkContent string
	StartLine    int
	EndLine      int
	Hash         string
}

// ReplaceFileIndex atomically replaces all symbols, imports, calls, and
// chunks for (projectID, filePath), implementing §4.B's "re-indexing
// the same file replaces its prior symbols/chunks" idempotency rule.
func (s *Store) ReplaceFileIndex(ctx context.Context, projectID, filePath string, symbols []CodeSymbol, imports []Import, calls []Call, chunks []CodeChunk) error {
	return s.Write(ctx, projectID, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM call_graph WHERE project_id = ? AND caller_id IN (
			SELECT id FROM code_symbols WHERE project_id = ? AND file_path = ?
		)`, projectID, projectID, filePath); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM code_symbols WHERE project_id = ? AND file_path = ?`, projectID, filePath); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM imports WHERE project_id = ? AND file_path = ?`, projectID, filePath); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM code_chunks WHERE project_id = ? AND file_path = ?`, projectID, filePath); err != nil {
			return err
		}

		for _, sym := range symbols {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO code_symbols (id, project_id, file_path, name, symbol_type, start_line, end_line, signature, is_test, is_async, visibility)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, sym.ID, projectID, filePath, sym.Name, sym.SymbolType, sym.StartLine, sym.EndLine,
				nullableString(sym.Signature), boolToInt(sym.IsTest), boolToInt(sym.IsAsync), nullableString(sym.Visibility)); err != nil {
				return err
			}
		}
		for _, imp := range imports {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO imports (project_id, file_path, import_path, is_external) VALUES (?, ?, ?, ?)
			`, projectID, filePath, imp.ImportPath, boolToInt(imp.IsExternal)); err != nil {
				return err
			}
		}
		for _, call := range calls {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO call_graph (project_id, caller_id, callee_id, callee_name, call_count) VALUES (?, ?, ?, ?, ?)
			`, projectID, nullableString(call.CallerID), nullableString(call.CalleeID), call.CalleeName, call.CallCount); err != nil {
				return err
			}
		}
		for _, c := range chunks {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO code_chunks (id, project_id, file_path, chunk_content, start_line, end_line, hash)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, c.ID, projectID, filePath, c.ChunkContent, c.StartLine, c.EndLine, c.Hash); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveFileIndex deletes all index rows for a file without replacing
// them, used when a watched file is deleted from disk.
func (s *Store) RemoveFileIndex(ctx context.Context, projectID, filePath string) error {
	return s.ReplaceFileIndex(ctx, projectID, filePath, nil, nil, nil, nil)
}

// SymbolsByName looks up symbols by exact name across a project,
// backing the find-symbol tool handler.
func (s *Store) SymbolsByName(ctx context.Context, projectID, name string) ([]CodeSymbol, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, file_path, name, symbol_type, start_line, end_line, signature, is_test, is_async, visibility
		FROM code_symbols WHERE project_id = ? AND name = ?
	`, projectID, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSymbols(rows)
}

// CallersOf returns call_graph rows whose callee_name matches name,
// backing the find-callers tool handler.
func (s *Store) CallersOf(ctx context.Context, projectID, calleeName string) ([]Call, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, caller_id, callee_id, callee_name, call_count
		FROM call_graph WHERE project_id = ? AND callee_name = ?
	`, projectID, calleeName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		var c Call
		var callerID, calleeID sql.NullString
		if err := rows.Scan(&c.ProjectID, &callerID, &calleeID, &c.CalleeName, &c.CallCount); err != nil {
			return nil, err
		}
		c.CallerID = callerID.String
		c.CalleeID = calleeID.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// AllCalls returns every call_graph row for a project, used by the
// module dependency resolver (§4.B).
func (s *Store) AllCalls(ctx context.Context, projectID string) ([]Call, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, caller_id, callee_id, callee_name, call_count FROM call_graph WHERE project_id = ?
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		var c Call
		var callerID, calleeID sql.NullString
		if err := rows.Scan(&c.ProjectID, &callerID, &calleeID, &c.CalleeName, &c.CallCount); err != nil {
			return nil, err
		}
		c.CallerID = callerID.String
		c.CalleeID = calleeID.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// AllImports returns every import row for a project.
func (s *Store) AllImports(ctx context.Context, projectID string) ([]Import, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, file_path, import_path, is_external FROM imports WHERE project_id = ?
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Import
	for rows.Next() {
		var imp Import
		var isExternal int
		if err := rows.Scan(&imp.ProjectID, &imp.FilePath, &imp.ImportPath, &isExternal); err != nil {
			return nil, err
		}
		imp.IsExternal = isExternal != 0
		out = append(out, imp)
	}
	return out, rows.Err()
}

// AllSymbols returns every symbol row for a project, used by the
// module inventory detector.
func (s *Store) AllSymbols(ctx context.Context, projectID string) ([]CodeSymbol, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, file_path, name, symbol_type, start_line, end_line, signature, is_test, is_async, visibility
		FROM code_symbols WHERE project_id = ?
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSymbols(rows)
}

func scanSymbols(rows *sql.Rows) ([]CodeSymbol, error) {
	var out []CodeSymbol
	for rows.Next() {
		var sym CodeSymbol
		var signature, visibility sql.NullString
		var isTest, isAsync int
		if err := rows.Scan(&sym.ID, &sym.ProjectID, &sym.FilePath, &sym.Name, &sym.SymbolType,
			&sym.StartLine, &sym.EndLine, &signature, &isTest, &isAsync, &visibility); err != nil {
			return nil, err
		}
		sym.Signature = signature.String
		sym.Visibility = visibility.String
		sym.IsTest = isTest != 0
		sym.IsAsync = isAsync != 0
		out = append(out, sym)
	}
	return out, rows.Err()
}

// ChunksByFile returns chunks for a single file, in start_line order.
func (s *Store) ChunksByFile(ctx context.Context, projectID, filePath string) ([]CodeChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, file_path, chunk_content, start_line, end_line, hash
		FROM code_chunks WHERE project_id = ? AND file_path = ? ORDER BY start_line ASC
	`, projectID, filePath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CodeChunk
	for rows.Next() {
		var c CodeChunk
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.FilePath, &c.ChunkContent, &c.StartLine, &c.EndLine, &c.Hash); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SearchChunksFTS runs the FTS5 half of the hybrid search (§4.B),
// returning chunks ranked by bm25 (ascending = more relevant).
func (s *Store) SearchChunksFTS(ctx context.Context, projectID, query string, limit int) ([]CodeChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.project_id, c.file_path, c.chunk_content, c.start_line, c.end_line, c.hash
		FROM code_chunks_fts f
		JOIN code_chunks c ON c.rowid = f.rowid
		WHERE f.chunk_content MATCH ? AND c.project_id = ?
		ORDER BY bm25(f) ASC
		LIMIT ?
	`, query, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CodeChunk
	for rows.Next() {
		var c CodeChunk
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.FilePath, &c.ChunkContent, &c.StartLine, &c.EndLine, &c.Hash); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CodeIndexStats reports chunk/file counts for a project, backing
// §4.B's index status view. LastUpdated is zero when the project has
// no indexed chunks yet.
func (s *Store) CodeIndexStats(ctx context.Context, projectID string) (documentCount, fileCount int, lastUpdated time.Time, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT file_path) FROM code_chunks WHERE project_id = ?
	`, projectID)
	if err := row.Scan(&documentCount, &fileCount); err != nil {
		return 0, 0, time.Time{}, err
	}
	if documentCount == 0 {
		return 0, fileCount, time.Time{}, nil
	}
	return documentCount, fileCount, time.Now(), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
