package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/boardroom-dev/boardroom/pkg/eventlog"
	"github.com/boardroom-dev/boardroom/pkg/ident"
)

// Client dials peer nodes over HTTP to deliver events, announce local
// agents, and query a peer's presence. It tracks per-peer health so
// the Router can skip nodes it already knows are Dead.
type Client struct {
	self   ident.NodeId
	http   *http.Client
	health *HealthTracker
}

// NewClient returns a Client identifying itself as self in outbound
// envelopes, with the given per-request timeout.
func NewClient(self ident.NodeId, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		self:   self,
		http:   &http.Client{Timeout: timeout},
		health: NewHealthTracker(),
	}
}

// Health exposes the client's HealthTracker for inspection (e.g. by a
// status endpoint or the presence refresher).
func (c *Client) Health() *HealthTracker { return c.health }

// Deliver sends ev to the deliver endpoint at peerEndpoint. It takes an
// endpoint rather than a NodeId, so it does not itself satisfy the
// Router's RemoteSender; Node.Deliver resolves the node and calls it.
func (c *Client) Deliver(ctx context.Context, peerEndpoint string, ev eventlog.Event) error {
	env := Envelope{
		ProtocolVersion: ProtocolVersion,
		OriginNode:      c.self,
		Kind:            KindDeliver,
		Payload:         DeliverRequest{Event: toWire(ev)},
	}
	var resp DeliverResponse
	if err := c.post(ctx, peerEndpoint, peerEndpoint+"/v1/deliver", env, &resp); err != nil {
		return err
	}
	if !resp.Accepted {
		return fmt.Errorf("%w: peer rejected delivery", ident.ErrPeerUnreachable)
	}
	return nil
}

// Announce pushes the sender's locally-hosted agent list to peerEndpoint.
func (c *Client) Announce(ctx context.Context, peerEndpoint string, localAgents []ident.AgentId) error {
	env := Envelope{
		ProtocolVersion: ProtocolVersion,
		OriginNode:      c.self,
		Kind:            KindAnnounce,
		Payload:         AnnounceRequest{LocalAgents: localAgents},
	}
	var resp AnnounceResponse
	return c.post(ctx, peerEndpoint, peerEndpoint+"/v1/announce", env, &resp)
}

// Query asks peerEndpoint which agents it currently hosts locally.
func (c *Client) Query(ctx context.Context, peerEndpoint string) (QueryResponse, error) {
	env := Envelope{
		ProtocolVersion: ProtocolVersion,
		OriginNode:      c.self,
		Kind:            KindQuery,
		Payload:         QueryRequest{},
	}
	var resp QueryResponse
	err := c.post(ctx, peerEndpoint, peerEndpoint+"/v1/query", env, &resp)
	return resp, err
}

// post issues an HTTP request to url and records the outcome against
// peer's health. peer is the bare peer endpoint (not url, which also
// carries the operation's path suffix) so health state is keyed
// identically to how RefreshPresence and the Router look it up.
func (c *Client) post(ctx context.Context, peer, url string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: encode envelope: %v", ident.ErrProtocolMismatch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ident.ErrPeerUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.health.RecordFailure(peer)
		return fmt.Errorf("%w: %v", ident.ErrPeerUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		c.health.RecordSuccess(peer)
		return fmt.Errorf("%w: peer rejected protocol version", ident.ErrProtocolMismatch)
	}
	if resp.StatusCode >= 400 {
		c.health.RecordFailure(peer)
		return fmt.Errorf("%w: peer returned status %d", ident.ErrPeerUnreachable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.health.RecordFailure(peer)
		return fmt.Errorf("%w: decode response: %v", ident.ErrPeerUnreachable, err)
	}

	c.health.RecordSuccess(peer)
	return nil
}
