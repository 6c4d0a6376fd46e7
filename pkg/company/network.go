package company

import (
	"github.com/boardroom-dev/boardroom/pkg/ident"
	"github.com/boardroom-dev/boardroom/pkg/transport"
)

// ConnectToPeers registers endpoints for remote nodes to gossip
// presence with, beyond whatever Config.SeedPeers already provided.
func (c *Company) ConnectToPeers(peers ...transport.Peer) {
	for _, p := range peers {
		c.node.AddPeer(p.Node, p.Endpoint)
	}
}

// RegisterRemoteAgent records that agent is hosted on a remote node,
// without waiting for the next presence-refresh gossip round. Useful
// when a peer's agent roster is known out-of-band (tests, static
// topologies).
func (c *Company) RegisterRemoteAgent(agent ident.AgentId, node ident.NodeId) error {
	return c.dir.RegisterRemote(agent, node)
}
