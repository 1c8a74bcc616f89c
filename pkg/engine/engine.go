// Package engine implements component G, the Operation Engine: the
// state machine that drives a single task to completion by calling an
// LLM provider, dispatching its tool calls, and persisting everything
// it does along the way.
//
// Grounded on the teacher's pkg/agent/loop.go (iteration loop shape,
// cooldown-on-error) and pkg/agent/state.go (phase transitions), with
// context assembly and the cache-then-provider call pattern adapted
// from original_source/backend/src/operations/engine/mod.rs.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/forge/internal/store"
	"github.com/ternarybob/forge/pkg/cache"
	"github.com/ternarybob/forge/pkg/completion"
	"github.com/ternarybob/forge/pkg/llm"
	"github.com/ternarybob/forge/pkg/memory"
	"github.com/ternarybob/forge/pkg/session"
	"github.com/ternarybob/forge/pkg/tools"
)

// Config tunes the loop; New replaces zero-value fields with
// DefaultConfig's values.
type Config struct {
	MaxIterations         int
	ToolTimeout           time.Duration
	CacheTTL              time.Duration
	Model                 string
	MaxContextMessages    int
	RecallFacts           int
	ModuleInventoryLimit  int
	UnresolvedErrorsLimit int
	Persona               string
}

// DefaultConfig matches §4.G's stated defaults and the "cap ~= last
// 20" / "top 5-10 facts" / "<= 30 modules" figures from context
// assembly.
func DefaultConfig() Config {
	return Config{
		MaxIterations:         50,
		ToolTimeout:           30 * time.Second,
		CacheTTL:              24 * time.Hour,
		Model:                 "gpt-4o",
		MaxContextMessages:    20,
		RecallFacts:           8,
		ModuleInventoryLimit:  30,
		UnresolvedErrorsLimit: 10,
		Persona:               "You are a careful, autonomous coding agent working inside a real codebase.",
	}
}

// Engine drives many concurrent operations, one task each, per §4.G
// ("one instance handles many concurrent operations").
type Engine struct {
	store      *store.Store
	cache      *cache.Cache
	recall     *memory.Recall
	sessions   *session.Store
	provider   llm.Provider
	router     *tools.Router
	completion *completion.Detector
	cfg        Config
}

// New wires an Engine from its dependencies. recall, cache, and
// sessions may all be nil; the engine degrades the corresponding
// context-assembly step rather than failing (consistent with
// §4.B/§4.C's own "unavailable embedder" fallbacks). Code search and
// symbol lookups reach the code index indirectly, through handlers
// already registered on router via tools.ProjectExtras.
func New(st *store.Store, ch *cache.Cache, rec *memory.Recall, sess *session.Store, provider llm.Provider, router *tools.Router, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = def.ToolTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxContextMessages <= 0 {
		cfg.MaxContextMessages = def.MaxContextMessages
	}
	if cfg.RecallFacts <= 0 {
		cfg.RecallFacts = def.RecallFacts
	}
	if cfg.ModuleInventoryLimit <= 0 {
		cfg.ModuleInventoryLimit = def.ModuleInventoryLimit
	}
	if cfg.UnresolvedErrorsLimit <= 0 {
		cfg.UnresolvedErrorsLimit = def.UnresolvedErrorsLimit
	}
	if cfg.Persona == "" {
		cfg.Persona = def.Persona
	}

	return &Engine{
		store:    st,
		cache:    ch,
		recall:   rec,
		sessions: sess,
		provider: provider,
		router:   router,
		cfg:      cfg,
	}
}

// CreateOperation persists a pending operation row (§4.G
// create_operation).
func (e *Engine) CreateOperation(ctx context.Context, sessionID, opType, task string) (store.Operation, error) {
	op := store.Operation{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      opType,
		Task:      task,
		Status:    store.OperationStatusPending,
	}
	if err := e.store.CreateOperation(ctx, op); err != nil {
		return store.Operation{}, fmt.Errorf("create operation: %w", err)
	}
	return op, nil
}

// GetOperation is a read accessor over the persisted operation row.
func (e *Engine) GetOperation(ctx context.Context, operationID string) (*store.Operation, error) {
	return e.store.GetOperation(ctx, operationID)
}

// GetOperationEvents is a read accessor over the operation's event log.
func (e *Engine) GetOperationEvents(ctx context.Context, operationID string) ([]store.OperationEvent, error) {
	return e.store.GetOperationEvents(ctx, operationID)
}

// GetArtifactsForOperation is a read accessor over the operation's
// produced artifacts, in insertion order (Invariant 3).
func (e *Engine) GetArtifactsForOperation(ctx context.Context, operationID string) ([]store.Artifact, error) {
	return e.store.GetArtifactsForOperation(ctx, operationID)
}

// SetCompletionDetector wires the session completion detector (§4.H)
// into the engine so that an operation's own terminal transitions --
// natural tool-loop termination, cancellation, failure -- also record
// against its session, in addition to the detector's own background
// polling for inactivity and git commits. Optional; a nil detector
// (the default) leaves session finalization entirely to the poller.
func (e *Engine) SetCompletionDetector(d *completion.Detector) {
	e.completion = d
}

// policyForType picks the tool_access predicate for an agent
// definition (§4.F). "review" operations are read-only; everything
// else gets the full catalog. A richer agent-definition registry is
// future work; this is the minimal mapping the spec's vocabulary
// supports today.
func policyForType(opType string) tools.AccessPolicy {
	if opType == "review" {
		return tools.ReadOnlyPolicy()
	}
	return tools.AllowAll{}
}
