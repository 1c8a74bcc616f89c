// Package tools implements component F: schema-driven dispatch from
// model-emitted tool calls to in-process handlers (filesystem, shell,
// search, code intelligence) under per-tool policy.
//
// Grounded on original_source/backend/src/operations/engine/
// external_handlers.rs (execute_command's dangerous-pattern list,
// web_search/fetch_url shapes) and original_source/backend/src/agents/
// executor/subprocess.rs (the route / route_with_context split), with
// the named-handler registry idiom borrowed from the teacher's
// index/mcp_server.go.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/forge/pkg/llm"
)

// Result is the uniform shape every handler returns to the model
// (§4.F "handlers MUST NOT panic on bad input; they return
// {success, output?, error?}").
type Result struct {
	Success     bool   `json:"success"`
	Output      any    `json:"output,omitempty"`
	Error       string `json:"error,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"`
	TotalBytes  int    `json:"total_bytes,omitempty"`
}

// CallContext carries the per-call project/session scope that
// route_with_context-style handlers read from, instead of ambient
// global state (§9 "the Engine always receives project context via
// function arguments").
type CallContext struct {
	ProjectID   string
	ProjectRoot string
	SessionID   string
	OperationID string
}

// Handler is a single tool implementation. args is the already
// JSON-decoded argument object; handlers validate it themselves
// against the shape their own schema promises.
type Handler func(ctx context.Context, callCtx CallContext, args map[string]any) Result

// Definition pairs a handler with the JSON-Schema description the
// model sees (§4.F "Each handler declares a JSON schema ... consumed
// by the model").
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
	Required    []string
	Handler     Handler
}

// Router is the constant name -> (schema, fn) registry (§4.F, §9
// "keep a static registry mapping name -> (schema, fn); avoid virtual
// inheritance hierarchies").
type Router struct {
	defs map[string]Definition
	// output holds full (untruncated) tool outputs keyed by a
	// synthetic handle, so get_output can retrieve what truncation
	// hid from the model (§4.F).
	output map[string]string
}

// NewRouter builds a router from the built-in handler catalog plus any
// extra definitions supplied by the caller (e.g. project-scoped search
// handlers that close over a *index.CodeIntel).
func NewRouter(extra ...Definition) *Router {
	r := &Router{
		defs:   make(map[string]Definition),
		output: make(map[string]string),
	}
	for _, d := range builtins() {
		r.defs[d.Name] = d
	}
	r.defs["get_output"] = Definition{
		Name:        "get_output",
		Description: "Retrieves the full text of a truncated tool output by its handle.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"handle": map[string]any{"type": "string", "description": "The handle returned alongside a truncated output."},
			},
		},
		Required: []string{"handle"},
		Handler: func(_ context.Context, _ CallContext, args map[string]any) Result {
			handle := argString(args, "handle")
			full, ok := r.getOutput(handle)
			if !ok {
				return Result{Success: false, Error: "unknown output handle"}
			}
			return Result{Success: true, Output: full}
		},
	}
	for _, d := range extra {
		r.defs[d.Name] = d
	}
	return r
}

// Tools returns the model-facing tool schema list in the OpenAI-
// compatible shape described by §6.
func (r *Router) Tools() []llm.Tool {
	out := make([]llm.Tool, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, llm.Tool{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return out
}

// Has reports whether name is a registered tool.
func (r *Router) Has(name string) bool {
	_, ok := r.defs[name]
	return ok
}

// errUnknownTool is returned (as a Result error, never a panic) when
// the model names a tool the router doesn't recognize.
const errUnknownTool = "unknown tool"

// Route dispatches a stateless call: no project/session context.
func (r *Router) Route(ctx context.Context, name string, argsJSON string) Result {
	return r.RouteWithContext(ctx, name, argsJSON, CallContext{})
}

// RouteWithContext validates argsJSON against the tool's required
// parameters and dispatches to its handler with callCtx in scope
// (§4.F "handlers requiring project or session read from a per-call
// context object").
func (r *Router) RouteWithContext(ctx context.Context, name string, argsJSON string, callCtx CallContext) Result {
	def, ok := r.defs[name]
	if !ok {
		return Result{Success: false, Error: errUnknownTool}
	}

	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return Result{Success: false, Error: fmt.Sprintf("invalid arguments JSON: %v", err)}
		}
	}
	if args == nil {
		args = map[string]any{}
	}

	for _, req := range def.Required {
		if _, present := args[req]; !present {
			return Result{Success: false, Error: fmt.Sprintf("missing required argument %q", req)}
		}
	}

	res := def.Handler(ctx, callCtx, args)
	return r.truncate(name, res)
}

// maxOutputBytes is the §4.F truncation threshold.
const maxOutputBytes = 64 * 1024

// truncate enforces the 64KiB output cap, stashing the full text so
// get_output can retrieve it (§4.F).
func (r *Router) truncate(name string, res Result) Result {
	s, ok := res.Output.(string)
	if !ok || len(s) <= maxOutputBytes {
		return res
	}
	handle := fmt.Sprintf("%s:%d", name, len(r.output))
	r.output[handle] = s
	res.Output = s[:maxOutputBytes]
	res.Truncated = true
	res.TotalBytes = len(s)
	return res
}

// getOutput retrieves a previously truncated output in full, the
// handler backing the "get_output" built-in tool.
func (r *Router) getOutput(handle string) (string, bool) {
	s, ok := r.output[handle]
	return s, ok
}

func argString(args map[string]any, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func argInt(args map[string]any, key string, def int) int {
	if v, ok := args[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

func argBool(args map[string]any, key string, def bool) bool {
	if v, ok := args[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}
