// Package index provides codebase indexing and search capabilities.
// It uses SQLite FTS5 for full-text search (internal/store) alongside
// a chromem-go vector sidecar for the embedding half of hybrid search.
package index

// IndexOptions configures a directory walk (pkg/index/walker.go).
type IndexOptions struct {
	// IncludePatterns are glob patterns for files to include.
	IncludePatterns []string

	// ExcludePatterns are glob patterns for files to exclude.
	ExcludePatterns []string

	// MaxFileSize limits individual file size.
	MaxFileSize int64

	// ChunkSize is the target chunk size in lines.
	ChunkSize int

	// ChunkOverlap is lines of overlap between chunks.
	ChunkOverlap int

	// ParseSymbols enables symbol extraction.
	ParseSymbols bool
}

// SymbolKind categorizes code symbols.
type SymbolKind string

const (
	SymbolFunction   SymbolKind = "function"
	SymbolMethod     SymbolKind = "method"
	SymbolClass      SymbolKind = "class"
	SymbolInterface  SymbolKind = "interface"
	SymbolStruct     SymbolKind = "struct"
	SymbolVariable   SymbolKind = "variable"
	SymbolConstant   SymbolKind = "constant"
	SymbolType       SymbolKind = "type"
	SymbolPackage    SymbolKind = "package"
	SymbolModule     SymbolKind = "module"
	SymbolField      SymbolKind = "field"
	SymbolProperty   SymbolKind = "property"
	SymbolEnum       SymbolKind = "enum"
	SymbolEnumMember SymbolKind = "enum_member"
)

// Symbol represents a code symbol extracted by pkg/index/parser.go.
type Symbol struct {
	// Name is the symbol name.
	Name string

	// Kind is the symbol type.
	Kind SymbolKind

	// Path is the file path.
	Path string

	// Line is the line number.
	Line int

	// Column is the column number.
	Column int

	// EndLine is the ending line (for multi-line symbols).
	EndLine int

	// Signature is the full signature.
	Signature string

	// Documentation is the doc comment.
	Documentation string

	// Parent is the containing symbol name.
	Parent string

	// Children are nested symbols.
	Children []Symbol
}

// Reference represents a symbol reference.
type Reference struct {
	// Path is the file path.
	Path string

	// Line is the line number.
	Line int

	// Column is the column number.
	Column int

	// Content is the line content.
	Content string

	// IsDefinition indicates this is the definition.
	IsDefinition bool
}

// DefaultIndexOptions returns sensible defaults.
func DefaultIndexOptions() IndexOptions {
	return IndexOptions{
		IncludePatterns: []string{"*"},
		ExcludePatterns: []string{
			"vendor/*",
			"node_modules/*",
			".git/*",
			"*.min.js",
			"*.min.css",
		},
		MaxFileSize:  1 << 20, // 1MB
		ChunkSize:    50,
		ChunkOverlap: 10,
		ParseSymbols: true,
	}
}
