// Package eventlog implements the Append-Only Log: the single source of
// truth every other component reconstructs state from. Agents hold no
// private state; a turn is rebuilt entirely from the ordered events of
// one ConversationKey.
package eventlog

import (
	"context"
	"time"

	"github.com/boardroom-dev/boardroom/pkg/ident"
)

// EventKind discriminates the payload carried by an Event.
type EventKind int

const (
	// EventUserText is a message originating outside the federation
	// (a human operator, not one of its agents). Nothing in this module
	// currently constructs one — send_private/send_group/broadcast are
	// always attributed to an AgentId per §8 scenarios 1 and 5, even
	// when that id names a host-operated agent — but the kind is kept
	// in the taxonomy per §3 for a future external-chat entry point.
	EventUserText EventKind = iota
	// EventAgentText is a message sent by one agent to another agent,
	// group, or the federation — what Route constructs for every
	// send_private/send_group/broadcast call.
	EventAgentText
	EventToolCall
	EventToolResult
	EventSystemNotice
)

// Event is one entry in a conversation's append-only log. Sequence is
// assigned by the log on Append and is authoritative for ordering;
// callers construct an Event with Sequence zero.
type Event struct {
	Conversation ident.ConversationKey
	Sequence     uint64
	Kind         EventKind
	From         ident.AgentId
	To           ident.Address
	Body         string
	ToolName     string
	ToolArgs     map[string]any
	ToolResult   string
	ToolErr      string
	Timestamp    time.Time
}

// Log is the Append-Only Log contract. Implementations must give
// total order within a single ConversationKey and must be safe for
// concurrent use.
type Log interface {
	// Append assigns the next Sequence for ev.Conversation and stores
	// ev, returning the assigned sequence. Append fails with
	// ident.ErrStorageUnavailable on a transient backend error and
	// ident.ErrIntegrityViolation if the log's own invariants are
	// violated (e.g. a corrupt on-disk index).
	Append(ctx context.Context, ev Event) (uint64, error)

	// Range returns the events of key with Sequence in [from, to]
	// inclusive, in ascending order. to of zero means "through the
	// latest appended".
	Range(ctx context.Context, key ident.ConversationKey, from, to uint64) ([]Event, error)

	// Tail returns the last n events of key in ascending order.
	Tail(ctx context.Context, key ident.ConversationKey, n int) ([]Event, error)

	// Subscribe returns a channel that receives a notification after
	// an Append to key; Appends made while a notification is still
	// pending are coalesced into it. The channel is closed when ctx is done.
	// Notifications carry no payload — subscribers re-read via Range
	// or Tail, keeping the log the single source of truth.
	Subscribe(ctx context.Context, key ident.ConversationKey) <-chan struct{}
}
