// Package tool implements the Tool Runtime: a registry of callable
// tools exposed to agents, each schema-validated at invoke time and
// bounded by a per-call timeout and a per-agent allow-list.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kaptinlin/jsonschema"

	"github.com/boardroom-dev/boardroom/pkg/ident"
)

// DefaultCallTimeout bounds a single tool invocation (§5: tool default 10s).
const DefaultCallTimeout = 10 * time.Second

// Tool is one registered capability. Implementations are produced by
// NewFunctionTool (see functiontool.go) rather than written by hand, so that the
// schema handed to the LLM Gateway always matches the Go type the
// handler actually decodes into.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	// Invoke runs the tool against already-validated, already-decoded
	// arguments. Handlers never see raw JSON.
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// Runtime is the Tool Runtime: registration, per-agent allow-listing,
// and schema-validated invocation. Safe for concurrent use.
type Runtime struct {
	mu          sync.RWMutex
	tools       map[string]registration
	callTimeout time.Duration
}

type registration struct {
	tool     Tool
	compiled *jsonschema.Schema
}

// New returns an empty Runtime. callTimeout <= 0 uses DefaultCallTimeout.
func New(callTimeout time.Duration) *Runtime {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Runtime{tools: make(map[string]registration), callTimeout: callTimeout}
}

// Register adds t to the runtime, compiling its schema up front so
// invoke-time failures are limited to argument mismatches, not schema
// authoring bugs.
func (r *Runtime) Register(t Tool) error {
	schemaJSON, err := json.Marshal(t.Schema())
	if err != nil {
		return fmt.Errorf("marshal schema for tool %q: %w", t.Name(), err)
	}

	compiler := jsonschema.NewCompiler()
	compiled, err := compiler.Compile(schemaJSON)
	if err != nil {
		return fmt.Errorf("compile schema for tool %q: %w", t.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = registration{tool: t, compiled: compiled}
	return nil
}

// AvailableFor returns the subset of registered tool names an agent
// may call, per allowList. A nil allowList means "every registered
// tool", matching an agent with no restrictions configured.
func (r *Runtime) AvailableFor(agent ident.AgentId, allowList map[string]bool) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name := range r.tools {
		if allowList == nil || allowList[name] {
			names = append(names, name)
		}
	}
	return names
}

// Definition is a tool's name/description/schema, independent of
// pkg/llm's ToolDefinition so this package doesn't need to import the
// Gateway to describe what it exposes.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Describe returns the Definition for each of names, skipping any
// that aren't registered.
func (r *Runtime) Describe(names []string) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		reg, ok := r.tools[name]
		if !ok {
			continue
		}
		defs = append(defs, Definition{
			Name:        reg.tool.Name(),
			Description: reg.tool.Description(),
			Parameters:  reg.tool.Schema(),
		})
	}
	return defs
}

// Result is the outcome of a tool invocation.
type Result struct {
	Output string
	Err    error
}

// Invoke validates rawArgs against name's schema, enforces the
// allow-list and call timeout, and runs the tool. A name the agent
// isn't permitted to call fails with ErrToolNotPermitted before
// validation runs; a schema mismatch fails with ErrBadArguments; a
// handler that doesn't return within the timeout fails with
// ErrToolTimeout.
func (r *Runtime) Invoke(ctx context.Context, agent ident.AgentId, allowList map[string]bool, name string, rawArgs map[string]any) Result {
	if allowList != nil && !allowList[name] {
		return Result{Err: fmt.Errorf("%w: %s cannot call %q", ident.ErrToolNotPermitted, agent, name)}
	}

	r.mu.RLock()
	reg, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return Result{Err: fmt.Errorf("%w: tool %q not registered", ident.ErrBadArguments, name)}
	}

	if err := validateArgs(reg.compiled, rawArgs); err != nil {
		return Result{Err: fmt.Errorf("%w: %v", ident.ErrBadArguments, err)}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	type outcome struct {
		out string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := reg.tool.Invoke(callCtx, rawArgs)
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return Result{Err: o.err}
		}
		return Result{Output: o.out}
	case <-callCtx.Done():
		return Result{Err: fmt.Errorf("%w: tool %q exceeded %s", ident.ErrToolTimeout, name, r.callTimeout)}
	}
}

func validateArgs(schema *jsonschema.Schema, args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	result := schema.Validate(args)
	if !result.IsValid() {
		return fmt.Errorf("%s", result.Error())
	}
	return nil
}
