// Package index provides real-time local code indexing for iter-service.
package index

import "time"

// Config configures the Indexer.
type Config struct {
	ProjectID    string   // Unique project identifier (SHA256 hash of path)
	ProjectPath  string   // Absolute path to project root
	RepoRoot     string   // Repository root path (same as ProjectPath for now)
	IndexPath    string   // Path to index storage (in service data dir)
	ExcludeGlobs []string // Default vendor/**, *_test.go, .git/**
	DebounceMs   int      // Default 500
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(repoRoot string) Config {
	return Config{
		ProjectPath: repoRoot,
		RepoRoot:    repoRoot,
		IndexPath:   ".iter/index",
		ExcludeGlobs: []string{
			"vendor/**",
			"*_test.go",
			".git/**",
			"node_modules/**",
		},
		DebounceMs: 500,
	}
}

// DefaultSearchOptions returns sensible defaults for Searcher.Search.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{Limit: 10}
}

// SearchOptions parameterizes Searcher.Search (§4.B hybrid query).
type SearchOptions struct {
	Query      string
	Branch     string
	SymbolKind string
	FilePath   string
	Limit      int
}

// ChunkResult is the REST/MCP-facing view of one matched chunk,
// enriched with the symbol it falls inside (if any). Distinct from
// the chunker's internal Chunk (chunk.go), which only tracks
// line-range content during indexing.
type ChunkResult struct {
	ID         string
	FilePath   string
	SymbolName string
	SymbolKind string
	Content    string
	Signature  string
	StartLine  int
	EndLine    int
}

// SearchResult is one ranked hit from Searcher.Search.
type SearchResult struct {
	Chunk      ChunkResult
	Score      float32
	Rank       int
	MatchCount int
}

// IndexStats reports a project's index size and freshness, backing
// the /projects/{id}/index-stats and dashboard views.
type IndexStats struct {
	DocumentCount  int
	FileCount      int
	CurrentBranch  string
	LastUpdated    time.Time
	WatcherRunning bool
}
