package llm

import (
	"context"
	"os"
)

// DisabledProvider implements Provider but never calls out to a real
// model. It backs §6's "MIRA_DISABLE_LLM=1 short-circuits all model
// calls": Complete returns a canned response with no tool calls, which
// lets the Operation Engine's loop run to completion (and its tests
// exercise the rest of the state machine) without a live API key.
type DisabledProvider struct{}

// NewDisabledProvider returns a Provider that always answers the same
// empty completion.
func NewDisabledProvider() *DisabledProvider { return &DisabledProvider{} }

func (DisabledProvider) Name() string     { return "disabled" }
func (DisabledProvider) Models() []string { return nil }

func (DisabledProvider) CountTokens(content string) (int, error) {
	return len(content) / 4, nil
}

func (DisabledProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	return &CompletionResponse{
		Content:      "LLM calls are disabled (MIRA_DISABLE_LLM=1)",
		FinishReason: "stop",
	}, nil
}

func (DisabledProvider) Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Content: "LLM calls are disabled (MIRA_DISABLE_LLM=1)", Done: true}
	close(ch)
	return ch, nil
}

// SelectProvider returns real unless the MIRA_DISABLE_LLM env var is
// set to "1", in which case every call is short-circuited through
// DisabledProvider regardless of which concrete provider the caller
// configured (§6).
func SelectProvider(real Provider) Provider {
	if os.Getenv("MIRA_DISABLE_LLM") == "1" {
		return NewDisabledProvider()
	}
	return real
}
