package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/forge/internal/fileutil"
)

// resolveUnderRoot joins root and rel, rejecting any result that
// escapes root (§4.F "writes must resolve under the active project
// root (path traversal is rejected)"). Applied to both reads and
// writes: a read handler has no business escaping the project either.
func resolveUnderRoot(root, rel string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("no active project")
	}
	joined := filepath.Join(root, rel)
	cleanRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	cleanJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", err
	}
	if cleanJoined != cleanRoot && !strings.HasPrefix(cleanJoined, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes project root", rel)
	}
	return cleanJoined, nil
}

func readFileHandler(_ context.Context, callCtx CallContext, args map[string]any) Result {
	path := argString(args, "path")
	if path == "" {
		return Result{Success: false, Error: "path is required"}
	}
	abs, err := resolveUnderRoot(callCtx.ProjectRoot, path)
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	content, err := fileutil.ReadFile(abs)
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	return Result{Success: true, Output: string(content)}
}

func writeFileHandler(_ context.Context, callCtx CallContext, args map[string]any) Result {
	path := argString(args, "path")
	content := argString(args, "content")
	if path == "" {
		return Result{Success: false, Error: "path is required"}
	}
	abs, err := resolveUnderRoot(callCtx.ProjectRoot, path)
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	if err := fileutil.WriteFile(abs, []byte(content)); err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	return Result{Success: true, Output: map[string]any{"ok": true, "path": path, "bytes": len(content)}}
}

func listDirectoryHandler(_ context.Context, callCtx CallContext, args map[string]any) Result {
	path := argString(args, "path")
	abs, err := resolveUnderRoot(callCtx.ProjectRoot, path)
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return Result{Success: true, Output: map[string]any{"entries": names}}
}
