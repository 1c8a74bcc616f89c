package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/forge/internal/store"
	"github.com/ternarybob/forge/pkg/llm"
	"github.com/ternarybob/forge/pkg/memory"
)

// assembledContext is the output of context assembly (§4.G, once per
// operation): the composed system prompt plus the message array the
// provider call receives.
type assembledContext struct {
	systemPrompt string
	messages     []llm.Message
	projectRoot  string
}

// assemble performs the five context-assembly steps from §4.G in
// order: recent session history, memory recall, project inventory
// (modules + unresolved build errors), system prompt composition, and
// finally the full messages array with the task appended.
func (e *Engine) assemble(ctx context.Context, sessionID, projectID, task string) (assembledContext, error) {
	var recent []llm.Message
	if e.sessions != nil {
		sess, err := e.sessions.Get(sessionID)
		if err == nil {
			recent = sess.History()
			if len(recent) > e.cfg.MaxContextMessages {
				recent = recent[len(recent)-e.cfg.MaxContextMessages:]
			}
		}
	}

	var facts []memory.Fact
	if e.recall != nil {
		scope := memory.ScopeFilters{
			ProjectID:     projectID,
			SessionID:     sessionID,
			IncludeGlobal: projectID == "",
		}
		if found, err := e.recall.Recall(ctx, task, scope, e.cfg.RecallFacts); err == nil {
			facts = found
		}
	}

	var modules []store.CodebaseModule
	var unresolved []store.BuildError
	var projectRoot string
	if projectID != "" {
		if proj, err := e.store.GetProject(ctx, projectID); err == nil {
			projectRoot = proj.RootPath
		}
		if ms, err := e.store.ListModules(ctx, projectID, e.cfg.ModuleInventoryLimit); err == nil {
			modules = ms
		}
		if errs, err := e.store.UnresolvedBuildErrors(ctx, projectID, e.cfg.UnresolvedErrorsLimit); err == nil {
			unresolved = errs
		}
	}

	system := e.composeSystemPrompt(projectRoot, modules, facts, unresolved)

	messages := make([]llm.Message, 0, len(recent)+1)
	messages = append(messages, recent...)
	messages = append(messages, llm.UserMessage(task))

	return assembledContext{systemPrompt: system, messages: messages, projectRoot: projectRoot}, nil
}

func (e *Engine) composeSystemPrompt(projectRoot string, modules []store.CodebaseModule, facts []memory.Fact, unresolved []store.BuildError) string {
	var b strings.Builder
	b.WriteString(e.cfg.Persona)
	b.WriteString("\n")

	if projectRoot != "" {
		fmt.Fprintf(&b, "\nActive project: %s\n", projectRoot)
	}

	if len(modules) > 0 {
		b.WriteString("\nCodebase modules:\n")
		for _, m := range modules {
			fmt.Fprintf(&b, "- %s: %s (%d symbols, %d lines)\n", m.ModuleID, m.Purpose, m.SymbolCount, m.LineCount)
		}
	}

	if len(facts) > 0 {
		b.WriteString("\nRecalled facts:\n")
		for _, f := range facts {
			fmt.Fprintf(&b, "- %s\n", f.Content)
		}
	}

	if len(unresolved) > 0 {
		b.WriteString("\nUnresolved build errors from the last run:\n")
		for _, be := range unresolved {
			fmt.Fprintf(&b, "- [%s] %s:%d: %s\n", be.Severity, be.FilePath, be.LineNumber, be.Message)
		}
	}

	return b.String()
}
