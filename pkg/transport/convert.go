package transport

import (
	"github.com/boardroom-dev/boardroom/pkg/eventlog"
	"github.com/boardroom-dev/boardroom/pkg/ident"
)

// toWire projects an eventlog.Event onto its JSON wire form.
func toWire(ev eventlog.Event) WireEvent {
	return WireEvent{
		ConversationKind: int(ev.Conversation.Kind),
		DirectLow:        ev.Conversation.DirectLow,
		DirectHigh:       ev.Conversation.DirectHigh,
		Group:            ev.Conversation.Group,
		BroadcastOrigin:  ev.Conversation.BroadcastOrigin,
		Sequence:         ev.Sequence,
		Kind:             int(ev.Kind),
		From:             ev.From,
		ToKind:           int(ev.To.Kind),
		ToAgent:          ev.To.Agent,
		ToGroup:          ev.To.Group,
		Body:             ev.Body,
		ToolName:         ev.ToolName,
		ToolArgs:         ev.ToolArgs,
		ToolResult:       ev.ToolResult,
		ToolErr:          ev.ToolErr,
		Timestamp:        ev.Timestamp,
	}
}

// fromWire reconstructs an eventlog.Event from its wire form.
func fromWire(w WireEvent) eventlog.Event {
	return eventlog.Event{
		Conversation: ident.ConversationKey{
			Kind:            ident.ConversationKind(w.ConversationKind),
			DirectLow:       w.DirectLow,
			DirectHigh:      w.DirectHigh,
			Group:           w.Group,
			BroadcastOrigin: w.BroadcastOrigin,
		},
		Sequence: w.Sequence,
		Kind:     eventlog.EventKind(w.Kind),
		From:     w.From,
		To: ident.Address{
			Kind:  ident.AddressKind(w.ToKind),
			Agent: w.ToAgent,
			Group: w.ToGroup,
		},
		ToolName:   w.ToolName,
		ToolArgs:   w.ToolArgs,
		ToolResult: w.ToolResult,
		ToolErr:    w.ToolErr,
		Body:       w.Body,
		Timestamp:  w.Timestamp,
	}
}
