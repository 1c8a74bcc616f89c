package tools

// builtins returns the fixed name -> (schema, fn) registry for the
// handlers that need no project-specific wiring (§4.F, §9 "keep a
// static registry"). Handlers that close over project state (code
// search, symbol lookup, web search) are registered by the caller via
// NewRouter's extra argument; ProjectExtras (extras.go) builds them.
func builtins() []Definition {
	return []Definition{
		{
			Name:        "read_file",
			Description: "Reads the contents of a file under the active project root.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{"type": "string", "description": "Path relative to the project root."},
				},
			},
			Required: []string{"path"},
			Handler:  readFileHandler,
		},
		{
			Name:        "write_file",
			Description: "Writes content to a file under the active project root, creating parent directories as needed.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":    map[string]any{"type": "string", "description": "Path relative to the project root."},
					"content": map[string]any{"type": "string", "description": "Full file content to write."},
				},
			},
			Required: []string{"path", "content"},
			Handler:  writeFileHandler,
		},
		{
			Name:        "list_directory",
			Description: "Lists the entries of a directory under the active project root.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{"type": "string", "description": "Path relative to the project root."},
				},
			},
			Required: []string{"path"},
			Handler:  listDirectoryHandler,
		},
		{
			Name:        "execute_command",
			Description: "Runs a shell command under the active project root with a bounded timeout.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"command":         map[string]any{"type": "string", "description": "The shell command to run."},
					"timeout_seconds": map[string]any{"type": "integer", "description": "Timeout in seconds, default 30, max 300."},
				},
			},
			Required: []string{"command"},
			Handler:  executeCommandHandler,
		},
		{
			Name:        "fetch_url",
			Description: "Fetches the body of an http(s) URL.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{"type": "string", "description": "The http(s) URL to fetch."},
				},
			},
			Required: []string{"url"},
			Handler:  fetchURLHandler,
		},
	}
}
