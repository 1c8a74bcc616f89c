package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/forge/internal/store"
	"github.com/ternarybob/forge/pkg/artifact"
	"github.com/ternarybob/forge/pkg/cache"
	"github.com/ternarybob/forge/pkg/llm"
	"github.com/ternarybob/forge/pkg/memory"
	"github.com/ternarybob/forge/pkg/tools"
)

// runState threads per-operation bookkeeping through the loop: the
// event sequence counter, the artifact sequence counter, and the
// accumulated assistant text used for fact extraction on completion.
type runState struct {
	operationID string
	sessionID   string
	projectID   string
	projectRoot string
	policy      tools.AccessPolicy
	seq         int
	artifactSeq int
	toolCallSeq int
	accumulated strings.Builder
	task        string
}

// RunOperation drives operationID's state machine to completion
// (§4.G). ctx's cancellation is the cancel token: it is checked before
// each iteration's LLM call and before each tool dispatch. eventTx may
// be nil or may stop being drained; emission is always best-effort and
// never blocks the loop (§4.G "no back-pressure from an unlucky
// subscriber should break an operation").
func (e *Engine) RunOperation(ctx context.Context, operationID, sessionID, task, projectID string, opType string, eventTx chan<- Event) error {
	rs := &runState{
		operationID: operationID,
		sessionID:   sessionID,
		projectID:   projectID,
		policy:      policyForType(opType),
		task:        task,
	}

	// Preparing
	e.emit(ctx, rs, eventTx, KindStarted, nil)
	now := time.Now()
	if err := e.store.SetOperationRunning(ctx, operationID, now); err != nil {
		return fmt.Errorf("mark operation running: %w", err)
	}
	e.emit(ctx, rs, eventTx, KindStatusChanged, StatusChangedPayload{Status: string(store.OperationStatusRunning)})

	assembled, err := e.assemble(ctx, sessionID, projectID, task)
	if err != nil {
		return e.fail(ctx, rs, eventTx, fmt.Errorf("assemble context: %w", err))
	}
	rs.projectRoot = assembled.projectRoot
	messages := assembled.messages

	toolDefs := e.allowedTools(rs.policy)

	for iteration := 1; ; iteration++ {
		if iteration > e.cfg.MaxIterations {
			return e.fail(ctx, rs, eventTx, fmt.Errorf("max iterations (%d) reached", e.cfg.MaxIterations))
		}
		if ctx.Err() != nil {
			return e.fail(ctx, rs, eventTx, fmt.Errorf("operation cancelled: %w", ctx.Err()))
		}

		resp, cached, err := e.callModel(ctx, assembled.systemPrompt, messages, toolDefs)
		if err != nil {
			return e.fail(ctx, rs, eventTx, fmt.Errorf("llm call: %w", err))
		}
		e.emit(ctx, rs, eventTx, KindLlmCall, LlmCallPayload{
			TokensIn:  resp.Usage.PromptTokens,
			TokensOut: resp.Usage.CompletionTokens,
			Cached:    cached,
		})

		if resp.Content != "" {
			rs.accumulated.WriteString(resp.Content)
			e.emit(ctx, rs, eventTx, KindTextDelta, TextDeltaPayload{Content: resp.Content})
		}

		if len(resp.ToolCalls) == 0 {
			return e.complete(ctx, rs, eventTx, rs.accumulated.String())
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		messages, err = e.executeTools(ctx, rs, eventTx, messages, resp.ToolCalls)
		if err != nil {
			return e.fail(ctx, rs, eventTx, err)
		}
	}
}

// callModel implements the cache-then-provider call from §4.G's
// Calling state: compute the fingerprint, try the cache, fall through
// to the provider on a miss, and populate the cache only for fresh
// calls.
func (e *Engine) callModel(ctx context.Context, system string, messages []llm.Message, toolDefs []llm.Tool) (*llm.CompletionResponse, bool, error) {
	req := &llm.CompletionRequest{
		Model:    e.cfg.Model,
		Messages: messages,
		System:   system,
		Tools:    toolDefs,
	}

	var fingerprint string
	if e.cache != nil && e.cache.Enabled() {
		fp, err := cache.Fingerprint(cache.Request{
			Messages: messages,
			Tools:    toolDefs,
			System:   system,
			Model:    e.cfg.Model,
		})
		if err == nil {
			fingerprint = fp
			if hit, ok, err := e.cache.Get(ctx, fingerprint); err == nil && ok {
				var resp llm.CompletionResponse
				if err := json.Unmarshal([]byte(hit.Response), &resp); err == nil {
					return &resp, true, nil
				}
			}
		}
	}

	resp, err := e.provider.Complete(ctx, req)
	if err != nil {
		return nil, false, err
	}

	if fingerprint != "" {
		if encoded, err := json.Marshal(resp); err == nil {
			_ = e.cache.Put(ctx, fingerprint, string(encoded),
				int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens), 0, e.cfg.CacheTTL)
		}
	}

	return resp, false, nil
}

// executeTools runs §4.G's ExecutingTools state: each call dispatched
// sequentially, policy-checked, timed, persisted, and appended back
// into messages as a ToolResult before the loop returns to Calling.
func (e *Engine) executeTools(ctx context.Context, rs *runState, eventTx chan<- Event, messages []llm.Message, calls []llm.ToolCall) ([]llm.Message, error) {
	for _, call := range calls {
		if ctx.Err() != nil {
			return messages, fmt.Errorf("operation cancelled: %w", ctx.Err())
		}

		if !rs.policy.IsAllowed(call.Name) {
			e.emit(ctx, rs, eventTx, KindToolCallStart, ToolCallStartPayload{CallID: call.ID, Name: call.Name, Denied: true})
			e.emit(ctx, rs, eventTx, KindToolCallEnd, ToolCallEndPayload{CallID: call.ID, Success: false})
			messages = append(messages, llm.ToolResultMessage(call.ID, "not allowed for this agent", true))
			e.persistToolCall(ctx, rs, call, false, true, false, 0, "not allowed for this agent")
			continue
		}

		e.emit(ctx, rs, eventTx, KindToolCallStart, ToolCallStartPayload{CallID: call.ID, Name: call.Name})

		toolCtx, cancel := context.WithTimeout(ctx, e.cfg.ToolTimeout)
		started := time.Now()
		result := e.router.RouteWithContext(toolCtx, call.Name, call.Arguments, tools.CallContext{
			ProjectID:   rs.projectID,
			ProjectRoot: rs.projectRoot,
			SessionID:   rs.sessionID,
			OperationID: rs.operationID,
		})
		duration := time.Since(started)
		cancel()

		e.emit(ctx, rs, eventTx, KindToolCallEnd, ToolCallEndPayload{
			CallID: call.ID, Success: result.Success, DurationMS: duration.Milliseconds(), Truncated: result.Truncated,
		})
		e.persistToolCall(ctx, rs, call, result.Success, false, result.Truncated, duration.Milliseconds(), result.Error)

		encoded, _ := json.Marshal(result)
		messages = append(messages, llm.ToolResultMessage(call.ID, string(encoded), !result.Success))

		e.detectArtifact(ctx, rs, eventTx, call, result)
		e.detectBuildRun(ctx, rs, call, result, started, time.Now())
	}
	return messages, nil
}

func (e *Engine) persistToolCall(ctx context.Context, rs *runState, call llm.ToolCall, success, denied, truncated bool, durationMS int64, errMsg string) {
	_ = e.store.InsertAgentToolCall(ctx, store.AgentToolCall{
		ID:          uuid.NewString(),
		OperationID: rs.operationID,
		Seq:         rs.nextToolCallSeq(),
		ToolName:    call.Name,
		Arguments:   call.Arguments,
		Success:     success,
		Denied:      denied,
		Truncated:   truncated,
		DurationMS:  durationMS,
		Error:       errMsg,
		CreatedAt:   time.Now(),
	})
}

// detectArtifact implements §4.G's "Artifact detection: if the tool
// mutated/produced a file, persist Artifact(content_hash=SHA-256(
// content)) and emit ArtifactCreated." write_file is currently the
// only handler that mutates project files.
func (e *Engine) detectArtifact(ctx context.Context, rs *runState, eventTx chan<- Event, call llm.ToolCall, result tools.Result) {
	if call.Name != "write_file" || !result.Success {
		return
	}
	var args struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return
	}
	content := []byte(args.Content)
	hash := artifact.ContentHash(content)
	a := store.Artifact{
		ID:          uuid.NewString(),
		OperationID: rs.operationID,
		Kind:        store.ArtifactKindCode,
		FilePath:    args.Path,
		Content:     content,
		ContentHash: hash,
		CreatedAt:   time.Now(),
		Seq:         rs.nextArtifactSeq(),
	}
	if err := e.store.InsertArtifact(ctx, a); err != nil {
		return
	}
	e.emit(ctx, rs, eventTx, KindArtifactCreated, ArtifactCreatedPayload{
		ArtifactID: a.ID, FilePath: a.FilePath, ContentHash: a.ContentHash,
	})
}

// detectBuildRun ingests execute_command results that look like a
// known build invocation, enriching the build-error tracker (§4.E)
// without the model needing a separate tool for it.
func (e *Engine) detectBuildRun(ctx context.Context, rs *runState, call llm.ToolCall, result tools.Result, started, completed time.Time) {
	if call.Name != "execute_command" || rs.projectID == "" {
		return
	}
	var args struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil || args.Command == "" {
		return
	}
	if artifact.DetectBuildType(args.Command) == artifact.BuildTypeGeneric {
		return
	}
	out, ok := result.Output.(map[string]any)
	if !ok {
		return
	}
	exitCode, _ := out["exit_code"].(int)
	stdout, _ := out["stdout"].(string)
	stderr, _ := out["stderr"].(string)
	_, _, _ = artifact.IngestBuildRun(ctx, e.store, rs.projectID, rs.operationID, args.Command, exitCode, started, completed, stdout, stderr)
}

func (rs *runState) nextArtifactSeq() int {
	rs.artifactSeq++
	return rs.artifactSeq
}

func (rs *runState) nextToolCallSeq() int {
	rs.toolCallSeq++
	return rs.toolCallSeq
}

func (e *Engine) allowedTools(policy tools.AccessPolicy) []llm.Tool {
	all := e.router.Tools()
	out := make([]llm.Tool, 0, len(all))
	for _, t := range all {
		if policy.IsAllowed(t.Name) {
			out = append(out, t)
		}
	}
	return out
}

// complete implements §4.G's Completed state: persist the accumulated
// response, emit Completed, and fire-and-forget fact extraction.
func (e *Engine) complete(_ context.Context, rs *runState, eventTx chan<- Event, summary string) error {
	finalizeCtx, cancel := finalizationContext()
	defer cancel()

	now := time.Now()
	if err := e.store.CompleteOperation(finalizeCtx, rs.operationID, now); err != nil {
		return fmt.Errorf("complete operation: %w", err)
	}
	e.emit(finalizeCtx, rs, eventTx, KindStatusChanged, StatusChangedPayload{Status: string(store.OperationStatusCompleted)})
	e.emit(finalizeCtx, rs, eventTx, KindCompleted, CompletedPayload{Summary: summary})

	go e.extractFacts(rs.projectID, rs.sessionID, rs.task, summary)

	if e.completion != nil {
		if sig, err := e.completion.NotifyText(finalizeCtx, rs.sessionID, summary); err == nil && sig == nil {
			_ = e.completion.NotifyToolLoopTerminated(finalizeCtx, rs.sessionID)
		}
	}

	return nil
}

// fail implements §4.G's Failed state. Finalization is written with a
// context detached from ctx: on cancellation ctx is already done, but
// the failed row and its events must still land (§4.G "Cancellation
// finalizes the operation as failed").
func (e *Engine) fail(_ context.Context, rs *runState, eventTx chan<- Event, cause error) error {
	finalizeCtx, cancel := finalizationContext()
	defer cancel()

	now := time.Now()
	msg := cause.Error()
	_ = e.store.FailOperation(finalizeCtx, rs.operationID, msg, now)
	e.emit(finalizeCtx, rs, eventTx, KindStatusChanged, StatusChangedPayload{Status: string(store.OperationStatusFailed)})
	e.emit(finalizeCtx, rs, eventTx, KindFailed, FailedPayload{Error: msg})

	if e.completion != nil {
		switch {
		case strings.Contains(msg, "cancelled"):
			_ = e.completion.NotifyCancelled(finalizeCtx, rs.sessionID)
		case strings.Contains(msg, "max iterations"):
			_ = e.completion.NotifyMaxIterations(finalizeCtx, rs.sessionID, e.cfg.MaxIterations)
		default:
			_ = e.completion.NotifyFailed(finalizeCtx, rs.sessionID, msg)
		}
	}

	return cause
}

// finalizationContext is detached from the operation's (possibly
// already-cancelled) context so the terminal write always has a
// chance to land, while still bounding it so a wedged database cannot
// hang the caller forever.
func finalizationContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// emit persists the event (Seq assigned here, per-operation
// monotonic) and then makes a best-effort, non-blocking send on
// eventTx so a slow or absent subscriber never stalls the loop.
func (e *Engine) emit(ctx context.Context, rs *runState, eventTx chan<- Event, kind string, payload any) {
	rs.seq++
	now := time.Now()

	encoded, _ := json.Marshal(payload)
	_ = e.store.AppendEvent(ctx, store.OperationEvent{
		OperationID: rs.operationID,
		Seq:         rs.seq,
		Kind:        kind,
		Payload:     string(encoded),
		CreatedAt:   now,
	})

	if eventTx == nil {
		return
	}
	ev := Event{OperationID: rs.operationID, Seq: rs.seq, Kind: kind, Payload: payload, CreatedAt: now}
	select {
	case eventTx <- ev:
	default:
	}
}

// extractFacts is the fire-and-forget step from §4.G: it runs after
// the operation result is already finalized, so its own failure never
// affects the operation.
func (e *Engine) extractFacts(projectID, sessionID, task, response string) {
	if e.recall == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, _ = e.recall.Store(ctx, memory.StoreFactInput{
		ProjectID: projectID,
		SessionID: sessionID,
		Content:   fmt.Sprintf("Task: %s\nOutcome: %s", task, response),
		FactType:  store.FactGeneral,
		Category:  "operation_summary",
		Scope:     scopeFor(projectID),
	})
}

func scopeFor(projectID string) store.FactScope {
	if projectID == "" {
		return store.ScopeGlobal
	}
	return store.ScopeProject
}
