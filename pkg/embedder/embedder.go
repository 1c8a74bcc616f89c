// Package embedder implements the Embedder external collaborator
// (§6): embed_for_storage / embed_for_query over a fixed-dimension
// vector space. Grounded on pkg/index/llm.go's genai.Client wiring,
// split into the storage/query pair using genai's TaskType parameter,
// which the teacher's original single-purpose client leaves unset.
package embedder

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"
)

// Embedder is the capability the Engine, Code Intelligence Index, and
// Memory Recall depend on. Dimension is fixed per instance.
type Embedder interface {
	EmbedForStorage(ctx context.Context, text string) ([]float32, error)
	EmbedForQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Config configures the genai-backed embedder.
type Config struct {
	APIKey string
	Model  string
}

// DefaultConfig reads GOOGLE_GEMINI_API_KEY, matching
// pkg/index/llm.go's DefaultLLMConfig convention.
func DefaultConfig() Config {
	return Config{
		APIKey: os.Getenv("GOOGLE_GEMINI_API_KEY"),
		Model:  "gemini-embedding-001",
	}
}

const dimension = 768

// GenAI embeds text via the Gemini embeddings API. A nil *GenAI (no
// API key configured) is a valid value: callers check IsConfigured and
// component B's hybrid search (§4.B) falls back to FTS-only without
// failing when it is unavailable.
type GenAI struct {
	client *genai.Client
	model  string
}

// New creates a GenAI embedder, or nil if cfg.APIKey is empty.
func New(cfg Config) (*GenAI, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-embedding-001"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GenAI{client: client, model: cfg.Model}, nil
}

// IsConfigured reports whether embedding calls will succeed.
func (e *GenAI) IsConfigured() bool {
	return e != nil && e.client != nil
}

// Dimension returns the embedder's native dimension.
func (e *GenAI) Dimension() int {
	return dimension
}

// EmbedForStorage embeds text intended to be written into the index,
// using genai's RETRIEVAL_DOCUMENT task type.
func (e *GenAI) EmbedForStorage(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text, "RETRIEVAL_DOCUMENT")
}

// EmbedForQuery embeds a search query, using genai's RETRIEVAL_QUERY
// task type so the two embedding spaces line up for cosine similarity.
func (e *GenAI) EmbedForQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text, "RETRIEVAL_QUERY")
}

func (e *GenAI) embed(ctx context.Context, text, taskType string) ([]float32, error) {
	if !e.IsConfigured() {
		return nil, fmt.Errorf("embedder: not configured")
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, &genai.EmbedContentConfig{
		TaskType:             taskType,
		OutputDimensionality: genai.Ptr(int32(dimension)),
	})
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if result == nil || len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("embedder: empty response")
	}

	values := result.Embeddings[0].Values
	out := make([]float32, len(values))
	copy(out, values)
	return out, nil
}
