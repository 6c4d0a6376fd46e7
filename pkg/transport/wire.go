package transport

import (
	"time"

	"github.com/boardroom-dev/boardroom/pkg/ident"
)

// ProtocolVersion is bumped whenever the wire envelope shape changes in
// a way old and new nodes can't both parse.
//
// MinProtocolVersion is the oldest envelope version this build can
// still decode. Per §6, a peer is rejected only when its version is
// older than MinProtocolVersion, not merely different from
// ProtocolVersion — a newer peer speaking a version this build doesn't
// yet know about is accepted on the assumption that newer envelopes
// stay backward-compatible until MinProtocolVersion is bumped too.
const (
	ProtocolVersion    = 1
	MinProtocolVersion = 1
)

// EnvelopeKind discriminates the three wire operations §4.6 names.
type EnvelopeKind string

const (
	KindDeliver  EnvelopeKind = "deliver"
	KindAnnounce EnvelopeKind = "announce"
	KindQuery    EnvelopeKind = "query"
)

// Envelope is the versioned wire wrapper every request carries, so a
// node can reject an unrecognized protocol version before attempting
// to decode Payload. Responses are plain JSON bodies without one.
type Envelope struct {
	ProtocolVersion int          `json:"protocol_version"`
	OriginNode      ident.NodeId `json:"origin_node"`
	Kind            EnvelopeKind `json:"kind"`
	Payload         any          `json:"payload"`
}

// WireEvent is the JSON-serializable projection of eventlog.Event sent
// over the wire — a plain struct rather than the log's internal type,
// so the wire format doesn't silently change shape whenever the log's
// storage representation does.
type WireEvent struct {
	ConversationKind int               `json:"conversation_kind"`
	DirectLow        ident.AgentId     `json:"direct_low,omitempty"`
	DirectHigh       ident.AgentId     `json:"direct_high,omitempty"`
	Group            ident.GroupId     `json:"group,omitempty"`
	BroadcastOrigin  ident.NodeId      `json:"broadcast_origin,omitempty"`
	Sequence         uint64            `json:"sequence"`
	Kind             int               `json:"kind"`
	From             ident.AgentId     `json:"from"`
	ToKind           int               `json:"to_kind"`
	ToAgent          ident.AgentId     `json:"to_agent,omitempty"`
	ToGroup          ident.GroupId     `json:"to_group,omitempty"`
	Body             string            `json:"body,omitempty"`
	ToolName         string            `json:"tool_name,omitempty"`
	ToolArgs         map[string]any    `json:"tool_args,omitempty"`
	ToolResult       string            `json:"tool_result,omitempty"`
	ToolErr          string            `json:"tool_err,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
}

// DeliverRequest carries one event destined for a locally-bound agent.
type DeliverRequest struct {
	Event WireEvent `json:"event"`
}

// DeliverResponse acknowledges a deliver request.
type DeliverResponse struct {
	Accepted bool `json:"accepted"`
}

// AnnounceRequest tells a peer which agents the sender currently hosts
// locally, refreshing that peer's Directory bindings for them.
type AnnounceRequest struct {
	LocalAgents []ident.AgentId `json:"local_agents"`
}

// AnnounceResponse acknowledges an announce.
type AnnounceResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

// QueryRequest asks a peer to report its locally-hosted agents — the
// pull counterpart of AnnounceRequest's push, used for the periodic
// presence refresh.
type QueryRequest struct{}

// QueryResponse reports the responding node's locally-hosted agents.
type QueryResponse struct {
	Node        ident.NodeId    `json:"node"`
	LocalAgents []ident.AgentId `json:"local_agents"`
}
