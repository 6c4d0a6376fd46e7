package promptview

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardroom-dev/boardroom/pkg/eventlog"
	"github.com/boardroom-dev/boardroom/pkg/ident"
)

func appendN(t *testing.T, log eventlog.Log, key ident.ConversationKey, n int, kindAt func(i int) eventlog.EventKind) {
	t.Helper()
	for i := 0; i < n; i++ {
		kind := eventlog.EventAgentText
		if kindAt != nil {
			kind = kindAt(i)
		}
		_, err := log.Append(context.Background(), eventlog.Event{Conversation: key, Kind: kind, Body: "x"})
		require.NoError(t, err)
	}
}

func TestBuilder_AssembleReturnsBoundedTail(t *testing.T) {
	log := eventlog.NewMemoryLog()
	key := ident.DirectConversation("alice", "bob")
	appendN(t, log, key, 120, nil)

	b, err := New(log, 50, 16)
	require.NoError(t, err)

	view, err := b.Assemble(context.Background(), "alice", key, "you are alice")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(view.Events), 50)
	assert.Equal(t, uint64(120), view.Events[len(view.Events)-1].Sequence)
}

func TestBuilder_AssembleIsStatelessAndDeterministic(t *testing.T) {
	log := eventlog.NewMemoryLog()
	key := ident.DirectConversation("alice", "bob")
	appendN(t, log, key, 10, nil)

	b, err := New(log, 50, 16)
	require.NoError(t, err)

	first, err := b.Assemble(context.Background(), "alice", key, "you are alice")
	require.NoError(t, err)
	second, err := b.Assemble(context.Background(), "alice", key, "you are alice")
	require.NoError(t, err)

	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, first.Events, second.Events)
}

func TestBuilder_AssembleNeverSplitsToolCallResultPair(t *testing.T) {
	log := eventlog.NewMemoryLog()
	key := ident.DirectConversation("alice", "bob")
	ctx := context.Background()

	// Arrange exactly 51 events (tailSize+1) with the ToolCall/ToolResult
	// pair straddling where the naive trim point would land, so trimming
	// either keeps both or drops both, never just the ToolResult.
	_, err := log.Append(ctx, eventlog.Event{Conversation: key, Kind: eventlog.EventToolCall})
	require.NoError(t, err)
	_, err = log.Append(ctx, eventlog.Event{Conversation: key, Kind: eventlog.EventToolResult})
	require.NoError(t, err)
	appendN(t, log, key, 49, nil)

	b, err := New(log, 50, 16)
	require.NoError(t, err)

	view, err := b.Assemble(ctx, "alice", key, "you are alice")
	require.NoError(t, err)

	for i, ev := range view.Events {
		if ev.Kind == eventlog.EventToolResult {
			require.Greater(t, i, 0, "a ToolResult must never be the first event in a truncated view without its ToolCall")
			assert.Equal(t, eventlog.EventToolCall, view.Events[i-1].Kind)
		}
	}
}

func TestBuilder_FingerprintChangesAfterAppend(t *testing.T) {
	log := eventlog.NewMemoryLog()
	key := ident.DirectConversation("alice", "bob")
	appendN(t, log, key, 5, nil)

	b, err := New(log, 50, 16)
	require.NoError(t, err)

	before, err := b.Assemble(context.Background(), "alice", key, "you are alice")
	require.NoError(t, err)

	appendN(t, log, key, 1, nil)

	after, err := b.Assemble(context.Background(), "alice", key, "you are alice")
	require.NoError(t, err)

	assert.NotEqual(t, before.Fingerprint, after.Fingerprint)
}

func TestBuilder_AssembleLabelsTurnRolesRelativeToViewer(t *testing.T) {
	log := eventlog.NewMemoryLog()
	key := ident.DirectConversation("alice", "bob")
	ctx := context.Background()

	_, err := log.Append(ctx, eventlog.Event{Conversation: key, Kind: eventlog.EventAgentText, From: "alice", Body: "hi"})
	require.NoError(t, err)
	_, err = log.Append(ctx, eventlog.Event{Conversation: key, Kind: eventlog.EventAgentText, From: "bob", Body: "hey"})
	require.NoError(t, err)
	_, err = log.Append(ctx, eventlog.Event{Conversation: key, Kind: eventlog.EventSystemNotice, Body: "note"})
	require.NoError(t, err)
	_, err = log.Append(ctx, eventlog.Event{Conversation: key, Kind: eventlog.EventToolCall, From: "alice"})
	require.NoError(t, err)

	b, err := New(log, 50, 16)
	require.NoError(t, err)

	view, err := b.Assemble(ctx, "alice", key, "you are alice")
	require.NoError(t, err)
	require.Len(t, view.Turns, 4)

	assert.Equal(t, Role{Kind: RoleSelf}, view.Turns[0].Role)
	assert.Equal(t, Role{Kind: RoleOther, Agent: "bob"}, view.Turns[1].Role)
	assert.Equal(t, Role{Kind: RoleSystem}, view.Turns[2].Role)
	assert.Equal(t, Role{Kind: RoleTool}, view.Turns[3].Role)
}

func TestBuilder_FingerprintDiffersByViewerAndSystemPrompt(t *testing.T) {
	log := eventlog.NewMemoryLog()
	key := ident.DirectConversation("alice", "bob")
	appendN(t, log, key, 5, nil)

	b, err := New(log, 50, 16)
	require.NoError(t, err)

	asAlice, err := b.Assemble(context.Background(), "alice", key, "you are alice")
	require.NoError(t, err)
	asBob, err := b.Assemble(context.Background(), "bob", key, "you are bob")
	require.NoError(t, err)

	assert.NotEqual(t, asAlice.Fingerprint, asBob.Fingerprint)
}
