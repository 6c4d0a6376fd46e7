// Package groups implements the Group Registry: named sets of agents
// with ordered membership, whose mutations are themselves logged as
// SystemNotice events in the group's own conversation.
package groups

import (
	"context"
	"fmt"
	"sync"

	"github.com/boardroom-dev/boardroom/pkg/eventlog"
	"github.com/boardroom-dev/boardroom/pkg/ident"
)

// group holds one group's membership in insertion order, plus a set
// for O(1) membership checks.
type group struct {
	members []ident.AgentId
	index   map[ident.AgentId]bool
}

// Registry is the Group Registry, safe for concurrent use.
type Registry struct {
	log eventlog.Log

	mu     sync.RWMutex
	groups map[ident.GroupId]*group
	of     map[ident.AgentId][]ident.GroupId // reverse index, insertion order
}

// New returns an empty Registry whose membership-change notices are
// appended to log.
func New(log eventlog.Log) *Registry {
	return &Registry{
		log:    log,
		groups: make(map[ident.GroupId]*group),
		of:     make(map[ident.AgentId][]ident.GroupId),
	}
}

// Create registers a new, empty group. Creating a group id that
// already exists fails with ErrDuplicateGroup.
func (r *Registry) Create(ctx context.Context, id ident.GroupId) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.groups[id]; ok {
		return fmt.Errorf("%w: %q", ident.ErrDuplicateGroup, id)
	}
	r.groups[id] = &group{index: make(map[ident.AgentId]bool)}

	return r.notice(ctx, id, fmt.Sprintf("group %q created", id))
}

// Invite adds agent to group's membership. Inviting an already-present
// member is idempotent and does not re-append a notice. Inviting into
// an unknown group fails with ErrUnknownGroup.
func (r *Registry) Invite(ctx context.Context, id ident.GroupId, agent ident.AgentId) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[id]
	if !ok {
		return fmt.Errorf("%w: %q", ident.ErrUnknownGroup, id)
	}
	if g.index[agent] {
		return nil
	}

	g.index[agent] = true
	g.members = append(g.members, agent)
	r.of[agent] = append(r.of[agent], id)

	return r.notice(ctx, id, fmt.Sprintf("%s joined %q", agent, id))
}

// MembersOf returns group's members in invitation order. An unknown
// group returns ErrUnknownGroup.
func (r *Registry) MembersOf(id ident.GroupId) ([]ident.AgentId, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ident.ErrUnknownGroup, id)
	}
	out := make([]ident.AgentId, len(g.members))
	copy(out, g.members)
	return out, nil
}

// GroupsOf returns the groups agent belongs to, in the order it joined
// them. An agent with no memberships yields an empty slice, not an
// error — ErrNotAMember is reserved for operations that require
// membership in a specific named group.
func (r *Registry) GroupsOf(agent ident.AgentId) []ident.GroupId {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ident.GroupId, len(r.of[agent]))
	copy(out, r.of[agent])
	return out
}

// RequireMember fails with ErrNotAMember unless agent currently
// belongs to group.
func (r *Registry) RequireMember(id ident.GroupId, agent ident.AgentId) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[id]
	if !ok {
		return fmt.Errorf("%w: %q", ident.ErrUnknownGroup, id)
	}
	if !g.index[agent] {
		return fmt.Errorf("%w: %s is not a member of %q", ident.ErrNotAMember, agent, id)
	}
	return nil
}

// notice appends a SystemNotice to the group's conversation. Callers
// hold r.mu already; the mutation above is visible in-memory before
// this returns, matching §4.3's "notice precedes visible effect" order
// from the caller's perspective of the log stream, while the map
// mutation itself is what other Registry methods observe.
func (r *Registry) notice(ctx context.Context, id ident.GroupId, body string) error {
	if r.log == nil {
		return nil
	}
	_, err := r.log.Append(ctx, eventlog.Event{
		Conversation: ident.GroupConversation(id),
		Kind:         eventlog.EventSystemNotice,
		Body:         body,
	})
	return err
}
