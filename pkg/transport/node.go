package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/boardroom-dev/boardroom/pkg/eventlog"
	"github.com/boardroom-dev/boardroom/pkg/ident"
)

// PresenceRefreshInterval is how often a node re-queries its peers for
// their current locally-hosted agent list (§4.6's "~30s" figure).
const PresenceRefreshInterval = 30 * time.Second

// Peer is one remote node a Node gossips presence with.
type Peer struct {
	Node     ident.NodeId
	Endpoint string
}

// Node owns the outbound Client and the set of known peer endpoints,
// and runs the periodic presence refresh loop that keeps the local
// Directory's remote bindings current.
type Node struct {
	self     ident.NodeId
	client   *Client
	presence Presence
	log      *slog.Logger

	mu    sync.RWMutex
	peers map[ident.NodeId]string
}

// NewNode returns a Node seeded with the given peers, ready to Run.
func NewNode(self ident.NodeId, client *Client, presence Presence, seeds []Peer, log *slog.Logger) *Node {
	n := &Node{
		self:     self,
		client:   client,
		presence: presence,
		log:      log,
		peers:    make(map[ident.NodeId]string),
	}
	for _, p := range seeds {
		n.peers[p.Node] = p.Endpoint
	}
	return n
}

// AddPeer registers (or updates the endpoint for) a peer node.
func (n *Node) AddPeer(node ident.NodeId, endpoint string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.peers[node] = endpoint
}

func (n *Node) snapshotPeers() map[ident.NodeId]string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[ident.NodeId]string, len(n.peers))
	for k, v := range n.peers {
		out[k] = v
	}
	return out
}

// Endpoint returns the known endpoint for node, and whether it's known.
func (n *Node) Endpoint(node ident.NodeId) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ep, ok := n.peers[node]
	return ep, ok
}

// Deliver resolves node to its known endpoint and sends ev there.
// Satisfies the Router's RemoteSender contract by structural typing.
// An unknown node fails with ErrPeerUnreachable rather than panicking.
func (n *Node) Deliver(ctx context.Context, node ident.NodeId, ev eventlog.Event) error {
	endpoint, ok := n.Endpoint(node)
	if !ok {
		return fmt.Errorf("%w: unknown node %q", ident.ErrPeerUnreachable, node)
	}
	return n.client.Deliver(ctx, endpoint, ev)
}

// Healthy reports whether node's last known health state is anything
// but Dead. An unknown node is reported Healthy, since it has no
// recorded failures to demote it. Satisfies the Router's optional
// HealthChecker interface by structural typing.
func (n *Node) Healthy(node ident.NodeId) bool {
	endpoint, ok := n.Endpoint(node)
	if !ok {
		return true
	}
	return n.client.Health().State(endpoint) != Dead
}

// MarkSuspect demotes node's health state to Suspect, for a caller
// that has exhausted retries delivering to it. Satisfies the Router's
// optional HealthMarker interface by structural typing.
func (n *Node) MarkSuspect(node ident.NodeId) {
	endpoint, ok := n.Endpoint(node)
	if !ok {
		return
	}
	n.client.Health().MarkSuspect(endpoint)
}

// AnnounceAll pushes this node's locally-hosted agents to every peer.
func (n *Node) AnnounceAll(ctx context.Context) {
	local := n.presence.ListLocal()
	for node, endpoint := range n.snapshotPeers() {
		if err := n.client.Announce(ctx, endpoint, local); err != nil {
			n.logger().Debug("announce failed", "peer", node, "error", err)
		}
	}
}

// RefreshPresence queries every peer for its locally-hosted agents and
// records the results in the Directory, skipping peers the health
// tracker has already marked Dead.
func (n *Node) RefreshPresence(ctx context.Context) {
	for node, endpoint := range n.snapshotPeers() {
		if n.client.Health().State(endpoint) == Dead {
			continue
		}
		resp, err := n.client.Query(ctx, endpoint)
		if err != nil {
			n.logger().Debug("presence query failed", "peer", node, "error", err)
			continue
		}
		for _, agent := range resp.LocalAgents {
			if err := n.presence.RegisterRemote(agent, resp.Node); err != nil {
				n.logger().Warn("ignore conflicting remote binding", "agent", agent, "error", err)
			}
		}
	}
}

// Run starts the periodic presence refresh loop, blocking until ctx
// is cancelled.
func (n *Node) Run(ctx context.Context) {
	ticker := time.NewTicker(PresenceRefreshInterval)
	defer ticker.Stop()

	n.RefreshPresence(ctx)
	n.AnnounceAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.RefreshPresence(ctx)
			n.AnnounceAll(ctx)
		}
	}
}

func (n *Node) logger() *slog.Logger {
	if n.log != nil {
		return n.log
	}
	return slog.Default()
}
