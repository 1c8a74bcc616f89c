package index

import (
	"path"
	"regexp"
	"strings"
)

// Import mirrors §3's Import relationship: one entry per import
// statement found in a file. IsExternal is true when the path does not
// start with "." or "/" (§4.B).
type Import struct {
	FilePath   string
	ImportPath string
	IsExternal bool
}

// CallType mirrors §4.B's Call.call_type.
type CallType string

const (
	CallDirect CallType = "direct"
	CallMethod CallType = "method"
)

// Call mirrors §3's Call relationship, keyed by name rather than ID —
// resolution to a callee symbol ID happens lazily in the store layer
// (DESIGN.md's "avoid in-memory back-pointers" note), matching
// pkg/index/dag.go's own ID-by-name convention.
type Call struct {
	CallerQualifiedName string
	CalleeName          string
	Line                int
	CallType            CallType
}

// builtinCallNames are filtered out of extracted calls per §4.B
// ("console, log, print, JSON, etc. are filtered").
var builtinCallNames = map[string]bool{
	"console": true, "log": true, "print": true, "println": true,
	"printf": true, "sprintf": true, "fmt": true, "JSON": true,
	"len": true, "append": true, "make": true, "new": true,
	"panic": true, "recover": true, "range": true, "cap": true,
	"copy": true, "delete": true, "require": true, "assert": true,
}

var importPatterns = map[string][]*regexp.Regexp{
	"go": {
		regexp.MustCompile(`(?m)^\s*"([^"]+)"\s*$`),
		regexp.MustCompile(`(?m)^\s*import\s+"([^"]+)"`),
	},
	"python": {
		regexp.MustCompile(`(?m)^\s*import\s+([\w.]+)`),
		regexp.MustCompile(`(?m)^\s*from\s+([\w.]+)\s+import`),
	},
	"javascript": {
		regexp.MustCompile(`(?m)^\s*import\s+.*?\s+from\s+['"]([^'"]+)['"]`),
		regexp.MustCompile(`(?m)require\(\s*['"]([^'"]+)['"]\s*\)`),
	},
	"typescript": {
		regexp.MustCompile(`(?m)^\s*import\s+.*?\s+from\s+['"]([^'"]+)['"]`),
		regexp.MustCompile(`(?m)require\(\s*['"]([^'"]+)['"]\s*\)`),
	},
	"rust": {
		regexp.MustCompile(`(?m)^\s*use\s+([\w:]+)`),
	},
}

func init() {
	importPatterns["javascriptreact"] = importPatterns["javascript"]
	importPatterns["typescriptreact"] = importPatterns["typescript"]
}

// ExtractImports finds import statements for the given language. Path
// classification follows §4.B: external iff it does not start with "."
// or "/".
func ExtractImports(filePath, content, language string) []Import {
	patterns := importPatterns[language]
	if len(patterns) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var out []Import
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			if len(m) < 2 {
				continue
			}
			importPath := strings.TrimSpace(m[1])
			if importPath == "" || seen[importPath] {
				continue
			}
			seen[importPath] = true
			out = append(out, Import{
				FilePath:   filePath,
				ImportPath: importPath,
				IsExternal: !strings.HasPrefix(importPath, ".") && !strings.HasPrefix(importPath, "/"),
			})
		}
	}
	return out
}

var callRe = regexp.MustCompile(`(?:(\w+)\.)?(\w+)\s*\(`)

// ExtractCalls scans content for call-like expressions and attributes
// each to the nearest enclosing symbol by line range, matching the
// "caller_qualified_name" contract in §4.B. Built-ins are filtered via
// builtinCallNames.
func ExtractCalls(content string, symbols []Symbol) []Call {
	lines := strings.Split(content, "\n")
	var calls []Call

	for i, line := range lines {
		lineNum := i + 1
		caller := enclosingSymbol(symbols, lineNum)
		if caller == "" {
			continue
		}
		for _, m := range callRe.FindAllStringSubmatch(line, -1) {
			receiver, name := m[1], m[2]
			if builtinCallNames[name] || builtinCallNames[receiver] {
				continue
			}
			if name == caller {
				continue // skip self-recursive false positives from definitions
			}
			callType := CallDirect
			if receiver != "" {
				callType = CallMethod
			}
			calls = append(calls, Call{
				CallerQualifiedName: caller,
				CalleeName:          name,
				Line:                lineNum,
				CallType:            callType,
			})
		}
	}
	return calls
}

// enclosingSymbol returns the qualified name of the innermost symbol
// whose [Line, EndLine] range contains lineNum, or "" outside any symbol.
func enclosingSymbol(symbols []Symbol, lineNum int) string {
	best := ""
	bestSpan := -1
	for _, sym := range symbols {
		if sym.Line <= lineNum && lineNum <= sym.EndLine {
			span := sym.EndLine - sym.Line
			if bestSpan == -1 || span < bestSpan {
				best = QualifiedName(sym)
				bestSpan = span
			}
		}
	}
	return best
}

// QualifiedName builds a dotted qualified name for a symbol, nesting
// under Parent when set (§4.B "qualified name (dotted path if
// nested)").
func QualifiedName(sym Symbol) string {
	if sym.Parent == "" {
		return sym.Name
	}
	return sym.Parent + "." + sym.Name
}

// IsTestSymbol applies the §4.B "heuristic on name or decorator" test
// detection rule.
func IsTestSymbol(sym Symbol, filePath string) bool {
	base := path.Base(filePath)
	if strings.HasSuffix(base, "_test.go") || strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") {
		return true
	}
	name := strings.ToLower(sym.Name)
	return strings.HasPrefix(name, "test") || strings.HasPrefix(name, "should_") || strings.Contains(sym.Signature, "@test")
}

// IsAsyncSymbol applies a signature-based async heuristic across languages.
func IsAsyncSymbol(sym Symbol) bool {
	sig := strings.ToLower(sym.Signature)
	return strings.Contains(sig, "async") || strings.Contains(sig, "goroutine") || strings.HasPrefix(sig, "go ")
}
