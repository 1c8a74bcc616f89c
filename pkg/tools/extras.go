package tools

// ProjectExtras builds the Definitions that need project-specific
// wiring (code search, symbol lookup, web search) so a caller can pass
// them straight into NewRouter without repeating their schemas. ci,
// st, or searcher may each be nil; the resulting handlers then return
// a "not configured" error instead of failing registration.
func ProjectExtras(ci CodeSearcher, st SymbolStore, searcher WebSearcher) []Definition {
	return []Definition{
		{
			Name:        "search_code",
			Description: "Hybrid keyword and semantic search over the project's indexed code chunks.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "description": "Natural-language or keyword query."},
					"limit": map[string]any{"type": "integer", "description": "Maximum number of hits to return, default 10."},
				},
			},
			Required: []string{"query"},
			Handler:  newSearchCodeHandler(ci),
		},
		{
			Name:        "find_symbol",
			Description: "Finds every declaration of a symbol by name across the indexed project.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{"type": "string", "description": "Exact symbol name."},
				},
			},
			Required: []string{"name"},
			Handler:  newFindSymbolHandler(st),
		},
		{
			Name:        "find_definition",
			Description: "Finds the canonical definition of a symbol by name.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{"type": "string", "description": "Exact symbol name."},
				},
			},
			Required: []string{"name"},
			Handler:  newFindDefinitionHandler(st),
		},
		{
			Name:        "find_callers",
			Description: "Finds every call site that invokes the named symbol.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{"type": "string", "description": "Exact callee name."},
				},
			},
			Required: []string{"name"},
			Handler:  newFindCallersHandler(st),
		},
		{
			Name:        "web_search",
			Description: "Searches the web for a query and returns a list of results.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "description": "Search query."},
					"limit": map[string]any{"type": "integer", "description": "Maximum number of results, default 5."},
				},
			},
			Required: []string{"query"},
			Handler:  newWebSearchHandler(searcher),
		},
	}
}
