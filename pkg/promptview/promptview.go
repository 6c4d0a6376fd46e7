// Package promptview implements the Context Builder: a pure function
// from (agent, conversation) to a bounded, deterministic PromptView,
// with a fingerprint-keyed cache since agents hold no state of their
// own and reassemble the same view repeatedly across a turn.
package promptview

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/boardroom-dev/boardroom/pkg/eventlog"
	"github.com/boardroom-dev/boardroom/pkg/ident"
)

// DefaultTailSize is how many trailing events SPEC_FULL §4.7 keeps in
// a PromptView by default.
const DefaultTailSize = 50

// RoleKind discriminates a Turn's role relative to the agent viewing
// the conversation (§4.7).
type RoleKind int

const (
	// RoleSelf is an event the viewing agent sent itself.
	RoleSelf RoleKind = iota
	// RoleOther is an event another agent sent; Agent names who.
	RoleOther
	// RoleSystem is a SystemNotice, with no sender to attribute it to.
	RoleSystem
	// RoleTool is a ToolCall or ToolResult.
	RoleTool
)

// Role is one event's rendered role, labeled relative to the viewing
// agent: self, other(AgentId), system, or tool.
type Role struct {
	Kind  RoleKind
	Agent ident.AgentId // set only when Kind == RoleOther
}

// Turn pairs one logged Event with the Role it renders as for the
// agent that assembled this view.
type Turn struct {
	Event eventlog.Event
	Role  Role
}

// PromptView is the bounded, ordered slice of a conversation's history
// an agent reasons over for one turn. It never embeds more state than
// what Assemble reconstructs from the log plus the agent's static
// system prompt.
type PromptView struct {
	Viewer       ident.AgentId
	Conversation ident.ConversationKey
	SystemPrompt string
	Events       []eventlog.Event
	Turns        []Turn
	Fingerprint  string
}

// roleFor labels ev relative to viewer: a SystemNotice is always
// RoleSystem, a ToolCall/ToolResult is always RoleTool, and a message
// is RoleSelf or RoleOther depending on who sent it.
func roleFor(viewer ident.AgentId, ev eventlog.Event) Role {
	switch ev.Kind {
	case eventlog.EventSystemNotice:
		return Role{Kind: RoleSystem}
	case eventlog.EventToolCall, eventlog.EventToolResult:
		return Role{Kind: RoleTool}
	default:
		if ev.From == viewer {
			return Role{Kind: RoleSelf}
		}
		return Role{Kind: RoleOther, Agent: ev.From}
	}
}

// Builder assembles PromptViews, caching by fingerprint so repeated
// Assemble calls against an unchanged tail are free.
type Builder struct {
	log      eventlog.Log
	tailSize int
	cache    *lru.Cache[string, PromptView]
}

// New returns a Builder reading from log, keeping at most tailSize
// trailing events per view (DefaultTailSize if <= 0) and caching up to
// cacheSize distinct fingerprints.
func New(log eventlog.Log, tailSize, cacheSize int) (*Builder, error) {
	if tailSize <= 0 {
		tailSize = DefaultTailSize
	}
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, PromptView](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create prompt view cache: %w", err)
	}
	return &Builder{log: log, tailSize: tailSize, cache: cache}, nil
}

// Assemble reconstructs the PromptView for (agent, key): a
// deterministic, stateless read from the Append-Only Log plus the
// agent's static systemPrompt. The log itself has no per-agent ACL at
// this layer, but agent identity still shapes the view via
// systemPrompt and is folded into the cache fingerprint so two agents
// with different prompts never share a cached view for the same tail.
func (b *Builder) Assemble(ctx context.Context, agent ident.AgentId, key ident.ConversationKey, systemPrompt string) (PromptView, error) {
	events, err := b.log.Tail(ctx, key, b.tailSize+1)
	if err != nil {
		return PromptView{}, fmt.Errorf("tail conversation: %w", err)
	}

	events = trimToPairBoundary(events, b.tailSize)
	fp := fingerprint(agent, key, systemPrompt, events)

	if cached, ok := b.cache.Get(fp); ok {
		return cached, nil
	}

	turns := make([]Turn, len(events))
	for i, ev := range events {
		turns[i] = Turn{Event: ev, Role: roleFor(agent, ev)}
	}

	view := PromptView{
		Viewer:       agent,
		Conversation: key,
		SystemPrompt: systemPrompt,
		Events:       events,
		Turns:        turns,
		Fingerprint:  fp,
	}
	b.cache.Add(fp, view)
	return view, nil
}

// trimToPairBoundary truncates events to at most tailSize entries,
// but never splits a ToolCall from its ToolResult: if truncation would
// land between them, the orphaned ToolResult is dropped as well (§4.7's
// "tool-call/result pair atomicity at the truncation boundary").
func trimToPairBoundary(events []eventlog.Event, tailSize int) []eventlog.Event {
	if len(events) <= tailSize {
		return events
	}
	start := len(events) - tailSize
	if events[start].Kind == eventlog.EventToolResult {
		start++
	}
	return events[start:]
}

// fingerprint is a content hash over the viewing agent, the
// conversation key, the system prompt, and the ordered event sequence
// numbers, used both as the cache key and as the stable signature
// downstream components (e.g. the LLM Gateway) can use to detect
// "nothing changed since last turn". The viewer is folded in because
// the rendered Role of each Turn depends on it, not just the raw
// event tail.
func fingerprint(viewer ident.AgentId, key ident.ConversationKey, systemPrompt string, events []eventlog.Event) string {
	h := sha256.New()
	h.Write([]byte(viewer))
	h.Write([]byte{0})
	h.Write([]byte(key.String()))
	h.Write([]byte{0})
	h.Write([]byte(systemPrompt))
	h.Write([]byte{0})
	for _, ev := range events {
		h.Write([]byte(strconv.FormatUint(ev.Sequence, 10)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
