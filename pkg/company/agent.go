package company

import (
	"context"
	"fmt"

	"github.com/boardroom-dev/boardroom/pkg/ident"
	"github.com/boardroom-dev/boardroom/pkg/runtime"
)

// AgentSpec describes one agent to create (§6: "Create agent").
type AgentSpec struct {
	ID ident.AgentId
	// Name is a human-readable label; it plays no role in routing or
	// identity, which are both keyed by ID.
	Name         string
	SystemPrompt string
	// LLMBinding names a Binding registered via RegisterLLMBinding or
	// Config.DefaultLLMBinding. Empty uses the default binding's name.
	LLMBinding string
	// AllowedTools lists the tool names this agent may call. Nil means
	// every registered tool is available.
	AllowedTools []string
	Mode         Mode
	Metadata     map[string]string
}

// CreateAgent registers spec as a local agent of this node and starts
// its runtime scheduler: an inbox consumer, and — if Mode is Active —
// a jittered autonomy self-wake loop.
func (c *Company) CreateAgent(ctx context.Context, spec AgentSpec) error {
	if spec.ID == "" {
		return fmt.Errorf("company: AgentSpec.ID is required")
	}

	if err := c.dir.RegisterLocal(spec.ID); err != nil {
		return err
	}

	llmBinding := spec.LLMBinding
	if llmBinding == "" {
		llmBinding = c.defaultLLMBinding
	}

	cfg := runtime.AgentConfig{
		ID:           spec.ID,
		SystemPrompt: spec.SystemPrompt,
		LLMBinding:   llmBinding,
		AllowedTools: toAllowSet(spec.AllowedTools),
		Autonomy:     spec.Mode == Active,
	}

	c.mu.Lock()
	c.agents[spec.ID] = cfg
	c.mu.Unlock()

	c.scheduler.StartAgent(ctx, cfg)
	return nil
}

// AgentConfig returns the AgentConfig CreateAgent built for agent, and
// whether it's a local agent of this node.
func (c *Company) AgentConfig(agent ident.AgentId) (runtime.AgentConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.agents[agent]
	return cfg, ok
}

func toAllowSet(names []string) map[string]bool {
	if names == nil {
		return nil
	}
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

