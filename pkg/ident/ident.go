// Package ident defines the stable identifiers and addressing scheme
// shared by every core component: node, agent, group and message ids,
// and the tagged Address value that the Router resolves at emit time.
package ident

import "github.com/google/uuid"

// NodeId is a stable string identifying one running process.
type NodeId string

// AgentId is globally unique across the federation.
type AgentId string

// GroupId is unique within the federation.
type GroupId string

// MessageId is a locally-generated identifier, unique within a single
// conversation. It carries a monotonic Sequence assigned by the
// Append-Only Log, used for ordering and deduplication.
type MessageId struct {
	// Local is a client-chosen token (e.g. an idempotency key). Empty
	// is allowed and is left empty; NewLocalID returns a fresh random
	// token for callers that want one.
	Local string

	// Sequence is assigned by the log on append and is authoritative
	// for ordering. Zero means "not yet appended".
	Sequence uint64
}

// NewLocalID returns a fresh random token suitable for MessageId.Local.
func NewLocalID() string {
	return uuid.NewString()
}

// AddressKind discriminates the tagged Address union.
type AddressKind int

const (
	// AddressDirect targets exactly one agent.
	AddressDirect AddressKind = iota
	// AddressGroup targets a group's current membership.
	AddressGroup
	// AddressBroadcast targets every agent known to the federation.
	AddressBroadcast
)

// Address is a tagged value identifying the intended recipient(s) of a
// message. Only the field matching Kind is meaningful.
type Address struct {
	Kind  AddressKind
	Agent AgentId
	Group GroupId
}

// Direct builds an Address targeting a single agent.
func Direct(agent AgentId) Address {
	return Address{Kind: AddressDirect, Agent: agent}
}

// ToGroup builds an Address targeting a group's membership.
func ToGroup(group GroupId) Address {
	return Address{Kind: AddressGroup, Group: group}
}

// Broadcast builds an Address targeting every known agent.
func Broadcast() Address {
	return Address{Kind: AddressBroadcast}
}

func (a Address) String() string {
	switch a.Kind {
	case AddressDirect:
		return "direct:" + string(a.Agent)
	case AddressGroup:
		return "group:" + string(a.Group)
	case AddressBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// ConversationKind discriminates the ConversationKey union (§3: "a
// Direct pair, GroupId, or Broadcast marker").
type ConversationKind int

const (
	ConversationDirect ConversationKind = iota
	ConversationGroup
	ConversationBroadcast
)

func (k ConversationKind) String() string {
	switch k {
	case ConversationDirect:
		return "direct"
	case ConversationGroup:
		return "group"
	case ConversationBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// ConversationKey identifies the ordering unit of the Append-Only Log.
// Two direct conversations between the same pair of agents collapse to
// the same key regardless of who is "from" — the pair is unordered for
// identity purposes (A,B) == (B,A).
type ConversationKey struct {
	Kind ConversationKind

	// DirectLow/DirectHigh hold a direct pair's two agent ids sorted so
	// that the key is independent of who initiated the exchange.
	DirectLow  AgentId
	DirectHigh AgentId

	Group GroupId

	// BroadcastOrigin is the node that owns this broadcast conversation;
	// §3 models Broadcast as one conversation per originating node.
	BroadcastOrigin NodeId
}

// DirectConversation builds the key for a direct conversation between
// two agents, normalizing the pair so ordering is independent of
// sender/recipient roles.
func DirectConversation(a, b AgentId) ConversationKey {
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	return ConversationKey{Kind: ConversationDirect, DirectLow: lo, DirectHigh: hi}
}

// GroupConversation builds the key for a group's conversation.
func GroupConversation(g GroupId) ConversationKey {
	return ConversationKey{Kind: ConversationGroup, Group: g}
}

// BroadcastConversation builds the key for a node's broadcast conversation.
func BroadcastConversation(origin NodeId) ConversationKey {
	return ConversationKey{Kind: ConversationBroadcast, BroadcastOrigin: origin}
}

func (k ConversationKey) String() string {
	switch k.Kind {
	case ConversationDirect:
		return "direct:" + string(k.DirectLow) + ":" + string(k.DirectHigh)
	case ConversationGroup:
		return "group:" + string(k.Group)
	case ConversationBroadcast:
		return "broadcast:" + string(k.BroadcastOrigin)
	default:
		return "unknown"
	}
}
