// Package llm implements the LLM Gateway: a thin, stateless adapter
// between one turn's PromptView and a model Binding, doing nothing
// more than a single bounded call — no multi-step reasoning lives
// here, that's the Agent Runtime's job.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/boardroom-dev/boardroom/pkg/ident"
	"github.com/boardroom-dev/boardroom/pkg/promptview"
)

// ToolDefinition is the schema-bearing description of a tool handed to
// a Binding so the model can decide whether to call it.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCallRequest is what a Binding returns when the model wants to
// invoke a tool instead of replying directly.
type ToolCallRequest struct {
	ToolName string
	Args     map[string]any
}

// Outcome is the tagged result of one Gateway call: exactly one of
// Reply, ToolCall is set whenever Chat returns a nil error.
type Outcome struct {
	Reply    string
	ToolCall *ToolCallRequest
}

// Binding is one concrete model backend. Implementations wrap a
// specific provider's API; this module ships only MockBinding, since
// wiring a real provider is an integration concern outside this
// module's scope.
type Binding interface {
	Name() string
	Chat(ctx context.Context, view promptview.PromptView, tools []ToolDefinition) (Outcome, error)
}

// DefaultCallTimeout bounds one Binding.Chat call (§5: LLM chat 30s).
const DefaultCallTimeout = 30 * time.Second

// DefaultRetries is how many times a transient failure is retried
// before the Gateway gives up and returns ErrLlmFailure.
const DefaultRetries = 2

// Gateway wraps a Binding with a call timeout and a small bounded
// retry for transient failures.
type Gateway struct {
	binding Binding
	timeout time.Duration
	retries int
}

// NewGateway returns a Gateway around binding. timeout <= 0 uses
// DefaultCallTimeout; retries < 0 uses DefaultRetries.
func NewGateway(binding Binding, timeout time.Duration, retries int) *Gateway {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	if retries < 0 {
		retries = DefaultRetries
	}
	return &Gateway{binding: binding, timeout: timeout, retries: retries}
}

// Chat runs one bounded call against the Gateway's Binding, each
// attempt limited to g.timeout. A failure that ident.Transient reports
// as transient is retried up to g.retries times; any other failure,
// including an attempt that hit its timeout, returns ErrLlmFailure at
// once, as does the last transient failure.
func (g *Gateway) Chat(ctx context.Context, agent ident.AgentId, view promptview.PromptView, tools []ToolDefinition) (Outcome, error) {
	var lastErr error

	for attempt := 0; attempt <= g.retries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		outcome, err := g.binding.Chat(callCtx, view, tools)
		cancel()

		if err == nil {
			return outcome, nil
		}
		lastErr = err
		if !ident.Transient(err) {
			break
		}
	}

	return Outcome{}, fmt.Errorf("%w: agent %s binding %s: %v", ident.ErrLlmFailure, agent, g.binding.Name(), lastErr)
}
