// Package runtime implements the Agent Runtime: the bounded
// Idle→Assembling→Reasoning→Tooling→Emitting state machine that
// drives one turn per (agent, conversation), plus the scheduler that
// enforces the single-flight rule and autonomy self-wake around it.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/boardroom-dev/boardroom/pkg/eventlog"
	"github.com/boardroom-dev/boardroom/pkg/ident"
	"github.com/boardroom-dev/boardroom/pkg/llm"
	"github.com/boardroom-dev/boardroom/pkg/promptview"
	"github.com/boardroom-dev/boardroom/pkg/router"
	"github.com/boardroom-dev/boardroom/pkg/telemetry"
	"github.com/boardroom-dev/boardroom/pkg/tool"
)

// DefaultMaxToolIterations is K in §4.10's "at most K tool iterations".
const DefaultMaxToolIterations = 4

// AgentConfig describes one agent's runtime identity: which model
// Binding it reasons with, its system prompt, which tools it may
// call, and whether it self-wakes (Active autonomy mode).
type AgentConfig struct {
	ID           ident.AgentId
	SystemPrompt string
	LLMBinding   string
	AllowedTools map[string]bool // nil means every registered tool
	Autonomy     bool
}

// Engine executes a single turn of the Idle→Assembling→Reasoning→
// Tooling→Emitting state machine for one (agent, conversation) pair.
// It holds no per-turn state between calls — everything a turn needs
// is reconstructed from the Append-Only Log via the Context Builder.
type Engine struct {
	views             *promptview.Builder
	llmRegistry       *llm.Registry
	tools             *tool.Runtime
	router            *router.Router
	log               eventlog.Log
	metrics           telemetry.Recorder
	logger            *slog.Logger
	maxToolIterations int
}

// NewEngine builds an Engine. maxToolIterations <= 0 uses
// DefaultMaxToolIterations.
func NewEngine(views *promptview.Builder, llmRegistry *llm.Registry, tools *tool.Runtime, rtr *router.Router, log eventlog.Log, metrics telemetry.Recorder, logger *slog.Logger, maxToolIterations int) *Engine {
	if maxToolIterations <= 0 {
		maxToolIterations = DefaultMaxToolIterations
	}
	return &Engine{
		views:             views,
		llmRegistry:       llmRegistry,
		tools:             tools,
		router:            rtr,
		log:               log,
		metrics:           metrics,
		logger:            logger,
		maxToolIterations: maxToolIterations,
	}
}

// RunTurn drives one full turn for cfg.ID against conv: assemble a
// view, reason, loop through at most maxToolIterations tool calls,
// then route the final reply. A turn that fails or is cancelled logs
// a SystemNotice into conv. An LLM failure or an exhausted tool budget
// then returns nil, so the failure stays contained within the
// conversation; cancellation returns ident.ErrCancelled, and a missing
// LLM binding, an assemble failure or a route failure return an error.
func (e *Engine) RunTurn(ctx context.Context, cfg AgentConfig, conv ident.ConversationKey) error {
	start := time.Now()
	outcome := "ok"
	iterations := 0
	defer func() {
		if e.metrics != nil {
			e.metrics.RecordTurn(outcome, iterations, time.Since(start))
		}
	}()

	binding, ok := e.llmRegistry.Get(cfg.LLMBinding)
	if !ok {
		outcome = "no_binding"
		e.notice(ctx, conv, fmt.Sprintf("turn aborted: no LLM binding %q registered for agent %s", cfg.LLMBinding, cfg.ID))
		return fmt.Errorf("no LLM binding %q registered", cfg.LLMBinding)
	}
	gateway := llm.NewGateway(binding, 0, 0)

	for {
		if ctx.Err() != nil {
			outcome = "cancelled"
			e.notice(ctx, conv, fmt.Sprintf("%v: turn for %s cancelled", ident.ErrCancelled, cfg.ID))
			return ident.ErrCancelled
		}

		view, err := e.views.Assemble(ctx, cfg.ID, conv, cfg.SystemPrompt)
		if err != nil {
			outcome = "assemble_error"
			e.notice(ctx, conv, fmt.Sprintf("turn for %s aborted: assemble prompt view: %v", cfg.ID, err))
			return fmt.Errorf("assemble prompt view: %w", err)
		}

		toolDefs := toLLMToolDefinitions(e.tools.Describe(e.tools.AvailableFor(cfg.ID, cfg.AllowedTools)))

		llmStart := time.Now()
		result, err := gateway.Chat(ctx, cfg.ID, view, toolDefs)
		if e.metrics != nil {
			if err != nil {
				e.metrics.RecordLLMCall("failure", time.Since(llmStart))
			} else {
				e.metrics.RecordLLMCall("ok", time.Since(llmStart))
			}
		}
		if err != nil {
			outcome = "llm_failure"
			e.notice(ctx, conv, fmt.Sprintf("%v: %v", ident.ErrLlmFailure, err))
			return nil
		}

		if result.ToolCall != nil {
			iterations++
			if iterations > e.maxToolIterations {
				outcome = "budget_exceeded"
				e.notice(ctx, conv, fmt.Sprintf("%v: exceeded %d tool iterations", ident.ErrReasoningBudgetExceeded, e.maxToolIterations))
				return nil
			}
			e.runToolStep(ctx, cfg, conv, result.ToolCall)
			continue
		}

		replyTo := replyAddress(cfg.ID, conv)
		if err := e.router.Route(ctx, cfg.ID, replyTo, result.Reply); err != nil {
			outcome = "route_error"
			e.notice(ctx, conv, fmt.Sprintf("turn for %s aborted: route reply: %v", cfg.ID, err))
			return fmt.Errorf("route reply: %w", err)
		}
		return nil
	}
}

// runToolStep appends the ToolCall event, invokes the tool, and
// appends the ToolResult (success or Failure) event so the next
// reasoning step — or a later Context Builder read — sees the
// outcome, per §4.10's "ToolResult of kind Failure" failure mapping.
func (e *Engine) runToolStep(ctx context.Context, cfg AgentConfig, conv ident.ConversationKey, call *llm.ToolCallRequest) {
	_, _ = e.log.Append(ctx, eventlog.Event{
		Conversation: conv,
		Kind:         eventlog.EventToolCall,
		From:         cfg.ID,
		ToolName:     call.ToolName,
		ToolArgs:     call.Args,
		Timestamp:    time.Now(),
	})

	toolStart := time.Now()
	res := e.tools.Invoke(ctx, cfg.ID, cfg.AllowedTools, call.ToolName, call.Args)
	outcome := "ok"
	if res.Err != nil {
		outcome = "failure"
	}
	if e.metrics != nil {
		e.metrics.RecordToolCall(call.ToolName, outcome, time.Since(toolStart))
	}

	ev := eventlog.Event{
		Conversation: conv,
		Kind:         eventlog.EventToolResult,
		From:         cfg.ID,
		ToolName:     call.ToolName,
		ToolResult:   res.Output,
		Timestamp:    time.Now(),
	}
	if res.Err != nil {
		ev.ToolErr = res.Err.Error()
	}
	_, _ = e.log.Append(ctx, ev)
}

func (e *Engine) notice(ctx context.Context, conv ident.ConversationKey, body string) {
	_, err := e.log.Append(ctx, eventlog.Event{
		Conversation: conv,
		Kind:         eventlog.EventSystemNotice,
		Body:         body,
		Timestamp:    time.Now(),
	})
	if err != nil && e.logger != nil {
		e.logger.Warn("failed to append turn notice", "error", err)
	}
}

// replyAddress derives where a turn's reply is routed from the
// conversation it answers: the other party of a direct exchange, the
// group itself, or a fresh broadcast from this agent.
func replyAddress(self ident.AgentId, conv ident.ConversationKey) ident.Address {
	switch conv.Kind {
	case ident.ConversationDirect:
		other := conv.DirectLow
		if other == self {
			other = conv.DirectHigh
		}
		return ident.Direct(other)
	case ident.ConversationGroup:
		return ident.ToGroup(conv.Group)
	default:
		return ident.Broadcast()
	}
}

func toLLMToolDefinitions(defs []tool.Definition) []llm.ToolDefinition {
	out := make([]llm.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = llm.ToolDefinition{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
	}
	return out
}
