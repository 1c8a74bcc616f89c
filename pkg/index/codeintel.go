package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"github.com/ternarybob/forge/internal/store"
	"github.com/ternarybob/forge/pkg/embedder"
)

// languageByExt is the closed enumeration of languages dispatched by
// extension (§4.B "the set of languages supported is a closed
// enumeration"), mapping directly onto pkg/index/parser.go's pattern
// table keys.
var languageByExt = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascriptreact",
	".ts":    "typescript",
	".tsx":   "typescriptreact",
	".java":  "java",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".rb":    "ruby",
	".php":   "php",
}

// LanguageForPath returns the language key dispatched for a file
// extension, or "" if unsupported.
func LanguageForPath(path string) string {
	return languageByExt[strings.ToLower(filepath.Ext(path))]
}

// symbolTypeFromKind collapses the teacher's broader SymbolKind
// enumeration onto §3's closed CodeSymbol.symbol_type set.
func symbolTypeFromKind(k SymbolKind) string {
	switch k {
	case SymbolFunction:
		return "function"
	case SymbolMethod:
		return "method"
	case SymbolClass:
		return "class"
	case SymbolStruct:
		return "struct"
	case SymbolEnum:
		return "enum"
	case SymbolInterface:
		return "interface"
	default:
		return "type"
	}
}

// CodeIntel is component B: it parses source files, extracts
// symbols/imports/calls/chunks, stores them (internal/store) and their
// embeddings (a project-scoped chromem-go collection), and answers
// hybrid FTS+vector queries.
//
// Grounded on index/parser.go (Go AST extraction, for the separate
// single-language tool), pkg/index/chunk.go (overlapping + symbol-aware
// chunker, reused directly), and index/search.go (chromem-go KNN +
// keyword fallback, extended here to true RRF fusion against an FTS5
// query via internal/store.SearchChunksFTS).
type CodeIntel struct {
	store    *store.Store
	embedder embedder.Embedder
	vectors  *chromem.DB
	parser   *Parser
	chunker  *Chunker

	collections map[string]*chromem.Collection
}

// New creates a CodeIntel instance. embedder may be nil; hybrid search
// then degrades to FTS-only per §4.B.
func New(st *store.Store, emb embedder.Embedder) *CodeIntel {
	return &CodeIntel{
		store:       st,
		embedder:    emb,
		vectors:     chromem.NewDB(),
		parser:      NewParser(),
		chunker:     NewChunker(40, 10),
		collections: make(map[string]*chromem.Collection),
	}
}

func (ci *CodeIntel) collectionFor(projectID string) (*chromem.Collection, error) {
	if c, ok := ci.collections[projectID]; ok {
		return c, nil
	}
	c, err := ci.vectors.GetOrCreateCollection("chunks:"+projectID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create chunk collection: %w", err)
	}
	ci.collections[projectID] = c
	return c, nil
}

// IndexFile parses one file's content and replaces its prior index
// rows. Per §4.B's failure semantics, a parse error on this single
// file does not fail the call: the file is indexed with whatever
// symbols parsed cleanly plus empty imports/calls.
func (ci *CodeIntel) IndexFile(ctx context.Context, projectID, path string, content []byte) error {
	language := LanguageForPath(path)
	text := string(content)

	var symbols []Symbol
	var imports []Import
	var calls []Call
	if language != "" {
		symbols = ci.parser.Parse(path, text, language)
		imports = ExtractImports(path, text, language)
		calls = ExtractCalls(text, symbols)
	}

	chunks := ci.chunker.ChunkWithSymbols(path, text, language, symbols)

	storeSymbols := make([]store.CodeSymbol, len(symbols))
	idByQualifiedName := make(map[string]string, len(symbols))
	for i, sym := range symbols {
		id := uuid.NewString()
		idByQualifiedName[QualifiedName(sym)] = id
		storeSymbols[i] = store.CodeSymbol{
			ID:         id,
			FilePath:   path,
			Name:       sym.Name,
			SymbolType: symbolTypeFromKind(sym.Kind),
			StartLine:  sym.Line,
			EndLine:    sym.EndLine,
			Signature:  sym.Signature,
			IsTest:     IsTestSymbol(sym, path),
			IsAsync:    IsAsyncSymbol(sym),
		}
	}

	storeImports := make([]store.Import, len(imports))
	for i, imp := range imports {
		storeImports[i] = store.Import{FilePath: path, ImportPath: imp.ImportPath, IsExternal: imp.IsExternal}
	}

	storeCalls := make([]store.Call, 0, len(calls))
	for _, c := range calls {
		storeCalls = append(storeCalls, store.Call{
			CallerID:   idByQualifiedName[c.CallerQualifiedName],
			CalleeName: c.CalleeName,
			CallCount:  1,
		})
	}

	storeChunks := make([]store.CodeChunk, len(chunks))
	for i, c := range chunks {
		storeChunks[i] = store.CodeChunk{
			ID:           c.ID,
			FilePath:     path,
			ChunkContent: c.Content,
			StartLine:    c.StartLine,
			EndLine:      c.EndLine,
			Hash:         hashFull(c.Content),
		}
		_ = i
	}

	if err := ci.store.ReplaceFileIndex(ctx, projectID, path, storeSymbols, storeImports, storeCalls, storeChunks); err != nil {
		return fmt.Errorf("replace file index: %w", err)
	}

	ci.embedChunks(ctx, projectID, storeChunks)
	return nil
}

// embedChunks computes and stores vector embeddings for each chunk.
// Failure is non-fatal: the chunk table and FTS index already have the
// content, so a missing embedder only narrows hybrid search to its FTS
// half (§4.B, §5 "vector index treated as eventually consistent").
func (ci *CodeIntel) embedChunks(ctx context.Context, projectID string, chunks []store.CodeChunk) {
	if ci.embedder == nil || len(chunks) == 0 {
		return
	}
	col, err := ci.collectionFor(projectID)
	if err != nil {
		return
	}
	for _, c := range chunks {
		vec, err := ci.embedder.EmbedForStorage(ctx, c.ChunkContent)
		if err != nil {
			continue
		}
		_ = col.AddDocument(ctx, chromem.Document{
			ID:        c.ID,
			Content:   c.ChunkContent,
			Embedding: vec,
			Metadata: map[string]string{
				"file_path":  c.FilePath,
				"start_line": itoa(c.StartLine),
			},
		})
	}
}

// RemoveFile clears a deleted file's index rows and its chunk
// embeddings.
func (ci *CodeIntel) RemoveFile(ctx context.Context, projectID, path string) error {
	chunks, err := ci.store.ChunksByFile(ctx, projectID, path)
	if err == nil {
		if col, err := ci.collectionFor(projectID); err == nil {
			for _, c := range chunks {
				_ = col.Delete(ctx, nil, nil, c.ID)
			}
		}
	}
	return ci.store.RemoveFileIndex(ctx, projectID, path)
}

func hashFull(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
