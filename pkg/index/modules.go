package index

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/forge/internal/store"
)

// modulePurposeByName is the fixed heuristic keyed on module (top-level
// directory) name, per §4.B "Module inventory": db -> "Database
// operations", auth -> "Authentication", etc. Unmatched names fall
// back to an export-scan heuristic in purposeForModule.
var modulePurposeByName = map[string]string{
	"db":         "Database operations",
	"database":   "Database operations",
	"auth":       "Authentication",
	"api":        "HTTP API surface",
	"handlers":   "HTTP API surface",
	"cache":      "Caching layer",
	"config":     "Configuration",
	"models":     "Data models",
	"middleware": "Request middleware",
	"utils":      "Shared utilities",
	"util":       "Shared utilities",
	"tests":      "Test suite",
	"test":       "Test suite",
	"cmd":        "Entry points",
	"internal":   "Internal implementation",
	"pkg":        "Public library surface",
	"ui":         "User interface",
	"web":        "Web frontend",
	"docs":       "Documentation",
	"scripts":    "Build and maintenance scripts",
	"migrations": "Schema migrations",
	"workers":    "Background workers",
	"queue":      "Job queue",
	"logging":    "Logging",
	"metrics":    "Metrics and observability",
}

// DetectedPattern is one architectural pattern finding with a
// confidence score, serialized into CodebaseModule.DetectedPatterns.
type DetectedPattern struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// moduleIDForPath returns the top-level directory a file belongs to,
// the unit §4.B's module detector classifies.
func moduleIDForPath(path string) string {
	path = filepath.ToSlash(path)
	path = strings.TrimPrefix(path, "/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) < 2 {
		return "."
	}
	return parts[0]
}

// purposeForModule applies the fixed name heuristic, falling back to a
// scan of exported symbol names for a handful of telltale words.
func purposeForModule(moduleID string, symbols []store.CodeSymbol) string {
	if p, ok := modulePurposeByName[strings.ToLower(moduleID)]; ok {
		return p
	}
	counts := map[string]int{}
	for _, s := range symbols {
		lname := strings.ToLower(s.Name)
		switch {
		case strings.Contains(lname, "handler") || strings.Contains(lname, "route"):
			counts["HTTP API surface"]++
		case strings.Contains(lname, "query") || strings.Contains(lname, "store") || strings.Contains(lname, "repository"):
			counts["Database operations"]++
		case strings.Contains(lname, "auth") || strings.Contains(lname, "token") || strings.Contains(lname, "login"):
			counts["Authentication"]++
		case strings.Contains(lname, "cache"):
			counts["Caching layer"]++
		case strings.Contains(lname, "test"):
			counts["Test suite"]++
		}
	}
	best, bestN := "General purpose", 0
	for name, n := range counts {
		if n > bestN {
			best, bestN = name, n
		}
	}
	return best
}

// detectPatterns looks for a handful of structural signals within a
// module's own symbol set, each scored by how many symbols exhibit it
// relative to the module's total symbol count.
func detectPatterns(symbols []store.CodeSymbol) []DetectedPattern {
	if len(symbols) == 0 {
		return nil
	}
	var interfaces, structs, tests int
	for _, s := range symbols {
		switch s.SymbolType {
		case "interface":
			interfaces++
		case "struct", "class":
			structs++
		}
		if s.IsTest {
			tests++
		}
	}
	total := float64(len(symbols))
	var out []DetectedPattern
	if interfaces > 0 && structs > 0 {
		out = append(out, DetectedPattern{Name: "interface-implementation", Confidence: min1(float64(interfaces+structs) / total)})
	}
	if tests > 0 {
		out = append(out, DetectedPattern{Name: "test-covered", Confidence: min1(float64(tests) / total)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func min1(f float64) float64 {
	if f > 1 {
		return 1
	}
	return f
}

// RefreshModuleInventory recomputes §3's CodebaseModule and
// ModuleDependency rows for a project from its current symbol/import/
// call tables, resolves depends_on via longest-prefix import-to-module
// matching, runs Tarjan SCC over the merged import+call edge set, and
// replaces the stored inventory atomically. Safe to call repeatedly
// (idempotent, matching §4.B's indexing idempotency).
func (ci *CodeIntel) RefreshModuleInventory(ctx context.Context, projectID string) error {
	symbols, err := ci.store.AllSymbols(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list symbols: %w", err)
	}
	imports, err := ci.store.AllImports(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list imports: %w", err)
	}
	calls, err := ci.store.AllCalls(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list calls: %w", err)
	}

	symbolsByModule := map[string][]store.CodeSymbol{}
	lineCount := map[string]int{}
	moduleOfFile := map[string]string{}
	for _, s := range symbols {
		mod := moduleIDForPath(s.FilePath)
		moduleOfFile[s.FilePath] = mod
		symbolsByModule[mod] = append(symbolsByModule[mod], s)
		if s.EndLine > lineCount[mod] {
			lineCount[mod] = s.EndLine
		}
	}

	// depends_on: longest-prefix match of each internal import path
	// against known module IDs.
	moduleIDs := make([]string, 0, len(symbolsByModule))
	for id := range symbolsByModule {
		moduleIDs = append(moduleIDs, id)
	}
	sort.Strings(moduleIDs)

	type edgeKey struct{ src, dst string }
	importEdges := map[edgeKey]int{}
	for _, imp := range imports {
		if imp.IsExternal {
			continue
		}
		srcMod := moduleOfFile[imp.FilePath]
		if srcMod == "" {
			srcMod = moduleIDForPath(imp.FilePath)
		}
		dstMod := longestPrefixModule(imp.ImportPath, moduleIDs)
		if dstMod == "" || dstMod == srcMod {
			continue
		}
		importEdges[edgeKey{srcMod, dstMod}]++
	}

	callEdges := map[edgeKey]int{}
	idToFile := map[string]string{}
	for _, s := range symbols {
		idToFile[s.ID] = s.FilePath
	}
	for _, c := range calls {
		callerFile, ok := idToFile[c.CallerID]
		if !ok {
			continue
		}
		srcMod := moduleOfFile[callerFile]
		// calleeName carries no file in this lazily-resolved model;
		// edges are only recorded when a symbol of the same name
		// exists in a different module, matched by name.
		for _, s := range symbols {
			if s.Name != c.CalleeName {
				continue
			}
			dstMod := moduleOfFile[s.FilePath]
			if dstMod == "" || dstMod == srcMod {
				continue
			}
			callEdges[edgeKey{srcMod, dstMod}] += c.CallCount
		}
	}

	depsByModule := map[string]map[string]bool{}
	allEdgeKeys := map[edgeKey]bool{}
	for k := range importEdges {
		allEdgeKeys[k] = true
	}
	for k := range callEdges {
		allEdgeKeys[k] = true
	}

	var deps []store.ModuleDependency
	adjacency := map[string][]string{}
	for k := range allEdgeKeys {
		ic, hasImport := importEdges[k]
		cc, hasCall := callEdges[k]
		depType := "import"
		switch {
		case hasImport && hasCall:
			depType = "both"
		case hasCall && !hasImport:
			depType = "call"
		}
		deps = append(deps, store.ModuleDependency{
			ProjectID:   projectID,
			Source:      k.src,
			Target:      k.dst,
			DepType:     depType,
			CallCount:   cc,
			ImportCount: ic,
		})
		if depsByModule[k.src] == nil {
			depsByModule[k.src] = map[string]bool{}
		}
		depsByModule[k.src][k.dst] = true
		adjacency[k.src] = append(adjacency[k.src], k.dst)
	}

	circularEdges := tarjanCircularEdges(moduleIDs, adjacency)
	for i := range deps {
		if circularEdges[edgeKey{deps[i].Source, deps[i].Target}] {
			deps[i].IsCircular = true
		}
	}

	var modules []store.CodebaseModule
	for _, id := range moduleIDs {
		syms := symbolsByModule[id]
		exports := make([]string, 0, len(syms))
		for _, s := range syms {
			if s.Visibility != "private" {
				exports = append(exports, s.Name)
			}
		}
		sort.Strings(exports)
		dependsOn := make([]string, 0, len(depsByModule[id]))
		for d := range depsByModule[id] {
			dependsOn = append(dependsOn, d)
		}
		sort.Strings(dependsOn)

		exportsJSON, _ := json.Marshal(exports)
		dependsJSON, _ := json.Marshal(dependsOn)
		patternsJSON, _ := json.Marshal(detectPatterns(syms))

		modules = append(modules, store.CodebaseModule{
			ProjectID:        projectID,
			ModuleID:         id,
			Path:             id,
			Purpose:          purposeForModule(id, syms),
			Exports:          string(exportsJSON),
			DependsOn:        string(dependsJSON),
			SymbolCount:      len(syms),
			LineCount:        lineCount[id],
			DetectedPatterns: string(patternsJSON),
		})
	}

	return ci.store.ReplaceModuleInventory(ctx, projectID, modules, deps)
}

// longestPrefixModule returns the module ID that is the longest path
// prefix of importPath, or "" if none matches.
func longestPrefixModule(importPath string, moduleIDs []string) string {
	best := ""
	for _, id := range moduleIDs {
		if id == "." {
			continue
		}
		if importPath == id || strings.HasPrefix(importPath, id+"/") || strings.Contains(importPath, "/"+id+"/") || strings.HasSuffix(importPath, "/"+id) {
			if len(id) > len(best) {
				best = id
			}
		}
	}
	return best
}

// tarjanCircularEdges runs Tarjan's strongly-connected-components
// algorithm over the module dependency graph and returns the set of
// edges whose endpoints both belong to a nontrivial SCC (size > 1),
// i.e. the edges that participate in a cycle (§4.B "circular-
// dependency detection").
func tarjanCircularEdges(nodes []string, adjacency map[string][]string) map[struct{ src, dst string }]bool {
	type edgeKey = struct{ src, dst string }

	index := 0
	indices := map[string]int{}
	lowlink := map[string]int{}
	onStack := map[string]bool{}
	var stack []string
	var sccs [][]string

	var strongconnect func(v string)
	strongconnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adjacency[v] {
			if _, seen := indices[w]; !seen {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	sorted := append([]string(nil), nodes...)
	sort.Strings(sorted)
	for _, v := range sorted {
		if _, seen := indices[v]; !seen {
			strongconnect(v)
		}
	}

	inSCC := map[string]bool{}
	for _, scc := range sccs {
		if len(scc) > 1 {
			for _, v := range scc {
				inSCC[v] = true
			}
		}
	}
	// A self-loop (single-node SCC with an edge to itself) is also a
	// cycle even though Tarjan reports it as a size-1 component.
	for v, targets := range adjacency {
		for _, w := range targets {
			if w == v {
				inSCC[v] = true
			}
		}
	}

	result := map[edgeKey]bool{}
	for src, targets := range adjacency {
		for _, dst := range targets {
			if inSCC[src] && inSCC[dst] {
				result[edgeKey{src, dst}] = true
			}
		}
	}
	return result
}

// CircularDependencyKey builds the stable finding key from §4.B:
// "circular:{first}:{second}" after sorting members.
func CircularDependencyKey(members []string) string {
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)
	if len(sorted) == 0 {
		return "circular:"
	}
	if len(sorted) == 1 {
		return "circular:" + sorted[0]
	}
	return "circular:" + sorted[0] + ":" + sorted[1]
}
