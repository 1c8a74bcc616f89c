package tools

import (
	"context"

	"github.com/ternarybob/forge/internal/store"
	"github.com/ternarybob/forge/pkg/index"
)

// CodeSearcher is the subset of *index.CodeIntel the search_code
// handler depends on, kept as an interface so tests can stub it.
type CodeSearcher interface {
	Search(ctx context.Context, projectID, query string, k int) ([]index.Hit, error)
}

// SymbolStore is the subset of *store.Store the symbol-lookup handlers
// depend on.
type SymbolStore interface {
	SymbolsByName(ctx context.Context, projectID, name string) ([]store.CodeSymbol, error)
	CallersOf(ctx context.Context, projectID, calleeName string) ([]store.Call, error)
}

func newSearchCodeHandler(ci CodeSearcher) Handler {
	return func(ctx context.Context, callCtx CallContext, args map[string]any) Result {
		if ci == nil {
			return Result{Success: false, Error: "code index is not configured"}
		}
		query := argString(args, "query")
		if query == "" {
			return Result{Success: false, Error: "query is required"}
		}
		k := argInt(args, "limit", 10)
		hits, err := ci.Search(ctx, callCtx.ProjectID, query, k)
		if err != nil {
			return Result{Success: false, Error: err.Error()}
		}
		return Result{Success: true, Output: map[string]any{"hits": hits}}
	}
}

func newFindSymbolHandler(st SymbolStore) Handler {
	return func(ctx context.Context, callCtx CallContext, args map[string]any) Result {
		if st == nil {
			return Result{Success: false, Error: "code index is not configured"}
		}
		name := argString(args, "name")
		if name == "" {
			return Result{Success: false, Error: "name is required"}
		}
		symbols, err := st.SymbolsByName(ctx, callCtx.ProjectID, name)
		if err != nil {
			return Result{Success: false, Error: err.Error()}
		}
		return Result{Success: true, Output: map[string]any{"symbols": symbols}}
	}
}

// newFindDefinitionHandler answers the same query as find_symbol but
// narrows to the first match, the shape a model expects when it wants
// one canonical definition rather than every overload/redeclaration.
func newFindDefinitionHandler(st SymbolStore) Handler {
	return func(ctx context.Context, callCtx CallContext, args map[string]any) Result {
		if st == nil {
			return Result{Success: false, Error: "code index is not configured"}
		}
		name := argString(args, "name")
		if name == "" {
			return Result{Success: false, Error: "name is required"}
		}
		symbols, err := st.SymbolsByName(ctx, callCtx.ProjectID, name)
		if err != nil {
			return Result{Success: false, Error: err.Error()}
		}
		if len(symbols) == 0 {
			return Result{Success: true, Output: map[string]any{"found": false}}
		}
		return Result{Success: true, Output: map[string]any{"found": true, "symbol": symbols[0]}}
	}
}

func newFindCallersHandler(st SymbolStore) Handler {
	return func(ctx context.Context, callCtx CallContext, args map[string]any) Result {
		if st == nil {
			return Result{Success: false, Error: "code index is not configured"}
		}
		name := argString(args, "name")
		if name == "" {
			return Result{Success: false, Error: "name is required"}
		}
		calls, err := st.CallersOf(ctx, callCtx.ProjectID, name)
		if err != nil {
			return Result{Success: false, Error: err.Error()}
		}
		return Result{Success: true, Output: map[string]any{"callers": calls}}
	}
}
