package index

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Searcher adapts an Indexer's hybrid chunk search (search.go) and AST
// dependency graph (dag.go, dag_parser.go) to the REST/MCP surface
// (internal/api/handlers.go, internal/mcp/handler.go).
type Searcher struct {
	idx *Indexer
}

// NewSearcher wraps a project's Indexer.
func NewSearcher(idx *Indexer) *Searcher {
	return &Searcher{idx: idx}
}

// Search runs the hybrid FTS+vector query and adapts each Hit into the
// REST/MCP layer's SearchResult shape, enriching each hit with the
// symbol whose range contains it (if any) via the AST dependency
// graph's per-file node index.
func (s *Searcher) Search(ctx context.Context, opts SearchOptions) ([]SearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchOptions().Limit
	}
	hits, err := s.idx.Search(ctx, opts.Query, limit)
	if err != nil {
		return nil, err
	}

	dag := s.idx.DAG()
	out := make([]SearchResult, 0, len(hits))
	for i, h := range hits {
		if opts.FilePath != "" && h.FilePath != opts.FilePath {
			continue
		}

		chunk := ChunkResult{
			ID:        h.FilePath + ":" + strconv.Itoa(h.StartLine),
			FilePath:  h.FilePath,
			Content:   h.Content,
			StartLine: h.StartLine,
		}
		if n := enclosingSymbol(dag, h.FilePath, h.StartLine); n != nil {
			chunk.SymbolName = n.Name
			chunk.SymbolKind = n.Kind
			chunk.Signature = n.Signature
			chunk.EndLine = n.EndLine
		}
		if opts.SymbolKind != "" && chunk.SymbolKind != opts.SymbolKind {
			continue
		}

		out = append(out, SearchResult{
			Chunk: chunk,
			Score: float32(h.Score),
			Rank:  i + 1,
		})
	}
	return out, nil
}

// enclosingSymbol returns the narrowest node in filePath whose range
// contains line, or nil if the chunk falls outside any parsed symbol
// (e.g. imports, package-level comments).
func enclosingSymbol(dag *DependencyGraph, filePath string, line int) *Node {
	var best *Node
	for _, n := range dag.GetNodesByFile(filePath) {
		if line < n.StartLine || (n.EndLine > 0 && line > n.EndLine) {
			continue
		}
		if best == nil || (n.EndLine-n.StartLine) < (best.EndLine-best.StartLine) {
			best = n
		}
	}
	return best
}

// DependencyList is the result of a GetDependencies/GetDependents
// query: the nodes reachable from symbol's matches, one hop in the
// requested direction.
type DependencyList struct {
	Symbol string
	Nodes  []*Node
}

// FormatDependencies renders the list for the MCP tool surface,
// mirroring dag.go's ImpactResult.FormatImpact.
func (d *DependencyList) FormatDependencies(label string) string {
	if d == nil || len(d.Nodes) == 0 {
		return fmt.Sprintf("No %s found for %q.\n", strings.ToLower(label), d.symbolOrUnknown())
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s of %s (%d):\n\n", label, d.Symbol, len(d.Nodes))
	for _, n := range d.Nodes {
		fmt.Fprintf(&sb, "- %s (%s) %s:%d\n", n.Name, n.Kind, n.FilePath, n.StartLine)
	}
	return sb.String()
}

func (d *DependencyList) symbolOrUnknown() string {
	if d == nil {
		return ""
	}
	return d.Symbol
}

// GetDependencies returns the nodes a symbol's matching nodes depend on
// (outgoing edges in the AST dependency graph).
func (s *Searcher) GetDependencies(symbol string) (*DependencyList, error) {
	dag := s.idx.DAG()
	return s.resolveEdges(dag, symbol, func(nodeID string) []Edge { return dag.GetDependencies(nodeID) },
		func(e Edge) string { return e.Target })
}

// GetDependents returns the nodes that depend on a symbol (incoming
// edges).
func (s *Searcher) GetDependents(symbol string) (*DependencyList, error) {
	dag := s.idx.DAG()
	return s.resolveEdges(dag, symbol, func(nodeID string) []Edge { return dag.GetDependents(nodeID) },
		func(e Edge) string { return e.Source })
}

func (s *Searcher) resolveEdges(dag *DependencyGraph, symbol string, edgesFor func(nodeID string) []Edge, otherEnd func(Edge) string) (*DependencyList, error) {
	matches := dag.FindNodeByName(symbol)
	if len(matches) == 0 {
		return nil, fmt.Errorf("symbol not found: %s", symbol)
	}

	seen := make(map[string]bool)
	out := &DependencyList{Symbol: symbol}
	for _, m := range matches {
		for _, e := range edgesFor(m.ID) {
			id := otherEnd(e)
			if seen[id] {
				continue
			}
			if n, ok := dag.GetNode(id); ok {
				seen[id] = true
				out.Nodes = append(out.Nodes, n)
			}
		}
	}
	return out, nil
}

// GetImpact returns the files/nodes impacted by a change to filePath.
func (s *Searcher) GetImpact(filePath string) (*ImpactResult, error) {
	return s.idx.DAG().GetImpact(filePath), nil
}
