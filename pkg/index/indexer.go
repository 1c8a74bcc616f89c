package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ternarybob/forge/internal/store"
	"github.com/ternarybob/forge/pkg/embedder"
)

// Indexer is the per-project handle that internal/project.Manager and
// pkg/index/watcher.go hold: it binds one project's Config to the
// shared store-backed CodeIntel (parsing/chunking/hybrid search), the
// AST dependency graph used by the deps/dependents/impact routes, and
// the commit lineage log, so callers never touch those pieces
// directly.
type Indexer struct {
	cfg       Config
	projectID string
	store     *store.Store
	ci        *CodeIntel
	walker    *Walker
	dagParser *DAGParser
	lineage   *ContextLineage

	mu  sync.RWMutex
	dag *DependencyGraph
}

// NewIndexer constructs the per-project facade. st and emb are the
// service's shared store and embedder (a single SQLite file and vector
// sidecar serve every registered project, scoped by Config.ProjectID);
// emb may be nil, in which case hybrid search degrades to FTS-only.
func NewIndexer(cfg Config, st *store.Store, emb embedder.Embedder) (*Indexer, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("index: Config.ProjectID is required")
	}
	if st == nil {
		return nil, fmt.Errorf("index: store is required")
	}

	dag := NewDependencyGraph(filepath.Join(cfg.IndexPath, "dag.json"))
	if err := dag.Load(); err != nil {
		return nil, fmt.Errorf("load dependency graph: %w", err)
	}

	lineage := NewContextLineage(cfg.RepoRoot, cfg.IndexPath, NewLLMClient(DefaultLLMConfig()))
	if err := lineage.Load(); err != nil {
		return nil, fmt.Errorf("load lineage: %w", err)
	}

	return &Indexer{
		cfg:       cfg,
		projectID: cfg.ProjectID,
		store:     st,
		ci:        New(st, emb),
		walker:    NewWalker(DefaultIndexOptions()),
		dagParser: NewDAGParser(cfg.RepoRoot),
		lineage:   lineage,
		dag:       dag,
	}, nil
}

// GetConfig returns the project's index configuration.
func (idx *Indexer) GetConfig() Config {
	return idx.cfg
}

// IndexFile re-parses one file's content from disk, replacing its
// prior chunks/symbols and refreshing its dependency-graph edges.
func (idx *Indexer) IndexFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	ctx := context.Background()
	if err := idx.ci.IndexFile(ctx, idx.projectID, path, content); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.dagParser.UpdateDAGForFile(idx.dag, path)
}

// IndexAll walks the project's repository root and (re)indexes every
// included file, then rebuilds the dependency graph from scratch
// (§4.B "rebuild" semantics: a full rebuild replaces the prior index).
func (idx *Indexer) IndexAll() error {
	ctx := context.Background()
	err := idx.walker.Walk(ctx, idx.cfg.RepoRoot, func(path string, content []byte) error {
		return idx.ci.IndexFile(ctx, idx.projectID, path, content)
	})
	if err != nil {
		return fmt.Errorf("walk repo: %w", err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.dag.Clear()
	if err := idx.dagParser.BuildDAGForRepo(idx.dag, idx.cfg.ExcludeGlobs); err != nil {
		return fmt.Errorf("build dependency graph: %w", err)
	}
	return idx.dag.Save()
}

// Stats reports index size for the project's dashboard/status views.
func (idx *Indexer) Stats() IndexStats {
	documentCount, fileCount, lastUpdated, err := idx.store.CodeIndexStats(context.Background(), idx.projectID)
	if err != nil {
		return IndexStats{}
	}
	return IndexStats{
		DocumentCount: documentCount,
		FileCount:     fileCount,
		LastUpdated:   lastUpdated,
		CurrentBranch: currentGitBranch(idx.cfg.RepoRoot),
	}
}

// currentGitBranch reads .git/HEAD directly, mirroring the watcher's
// own commit-hash read rather than shelling out to git.
func currentGitBranch(repoRoot string) string {
	data, err := os.ReadFile(filepath.Join(repoRoot, ".git", "HEAD"))
	if err != nil {
		return ""
	}
	content := strings.TrimSpace(string(data))
	const refPrefix = "ref: refs/heads/"
	if strings.HasPrefix(content, refPrefix) {
		return strings.TrimPrefix(content, refPrefix)
	}
	return content
}

// GetLineage returns the commit-lineage log for the project's history
// route. Never nil: summarization itself degrades gracefully when no
// LLM key is configured (LLMClient.IsConfigured()).
func (idx *Indexer) GetLineage() *ContextLineage {
	return idx.lineage
}

// SaveDAG persists the dependency graph, called after the watcher
// observes a new commit.
func (idx *Indexer) SaveDAG() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dag.Save()
}

// Search runs the hybrid FTS+vector query (§4.B) over this project's
// chunks.
func (idx *Indexer) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	return idx.ci.Search(ctx, idx.projectID, query, k)
}

// DAG exposes the dependency graph for the Searcher facade.
func (idx *Indexer) DAG() *DependencyGraph {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dag
}

// ProjectID returns the project this indexer is scoped to.
func (idx *Indexer) ProjectID() string {
	return idx.projectID
}
