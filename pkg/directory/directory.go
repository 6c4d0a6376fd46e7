// Package directory implements the Agent Directory: the federation's
// map from AgentId to where that agent actually runs.
package directory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/boardroom-dev/boardroom/pkg/ident"
)

// Location discriminates a directory binding.
type Location int

const (
	Unknown Location = iota
	Local
	Remote
)

// Binding is the directory's record for one AgentId.
type Binding struct {
	Location Location
	Node     ident.NodeId // meaningful only when Location == Remote
}

// Directory is a guarded map from AgentId to Binding, safe for
// concurrent use from the Router and Node Transport.
type Directory struct {
	mu       sync.RWMutex
	bindings map[ident.AgentId]Binding
}

// New returns an empty Directory.
func New() *Directory {
	return &Directory{bindings: make(map[ident.AgentId]Binding)}
}

// RegisterLocal binds agent to this node. It is an error to rebind an
// agent already bound to a different location (§7: ErrAmbientConflict);
// re-registering the same binding is idempotent.
func (d *Directory) RegisterLocal(agent ident.AgentId) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.bindings[agent]; ok && existing != (Binding{Location: Local}) {
		return fmt.Errorf("%w: agent %q already bound as %v", ident.ErrAmbientConflict, agent, existing)
	}
	d.bindings[agent] = Binding{Location: Local}
	return nil
}

// RegisterRemote binds agent to a remote node, learned via
// announce/query gossip. Rebinding to a different node is allowed —
// remote bindings are refreshed as presence information changes —
// but colliding with an existing Local binding is a conflict.
func (d *Directory) RegisterRemote(agent ident.AgentId, node ident.NodeId) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.bindings[agent]; ok && existing.Location == Local {
		return fmt.Errorf("%w: agent %q is bound locally, cannot rebind remote", ident.ErrAmbientConflict, agent)
	}
	d.bindings[agent] = Binding{Location: Remote, Node: node}
	return nil
}

// Lookup returns the current binding for agent, or Unknown if the
// directory has never heard of it.
func (d *Directory) Lookup(agent ident.AgentId) Binding {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.bindings[agent]
}

// ListLocal returns every agent currently bound to this node, sorted
// for deterministic iteration (§3's snapshot-sort supplement).
func (d *Directory) ListLocal() []ident.AgentId {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []ident.AgentId
	for agent, b := range d.bindings {
		if b.Location == Local {
			out = append(out, agent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ListKnown returns every agent the directory has a binding for,
// local or remote, sorted for deterministic broadcast-fanout snapshots.
func (d *Directory) ListKnown() []ident.AgentId {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]ident.AgentId, 0, len(d.bindings))
	for agent := range d.bindings {
		out = append(out, agent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
