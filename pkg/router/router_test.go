package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardroom-dev/boardroom/pkg/bus"
	"github.com/boardroom-dev/boardroom/pkg/directory"
	"github.com/boardroom-dev/boardroom/pkg/eventlog"
	"github.com/boardroom-dev/boardroom/pkg/groups"
	"github.com/boardroom-dev/boardroom/pkg/ident"
)

type fakeRemote struct {
	mu    sync.Mutex
	calls []ident.NodeId
	fail  error
}

func (f *fakeRemote) Deliver(ctx context.Context, node ident.NodeId, ev eventlog.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, node)
	return f.fail
}

func newTestRouter(t *testing.T, remote RemoteSender) (*Router, *directory.Directory, *groups.Registry, *bus.Bus, eventlog.Log) {
	t.Helper()
	dir := directory.New()
	log := eventlog.NewMemoryLog()
	grp := groups.New(log)
	b := bus.New(8, nil)
	r := New("node-a", dir, grp, b, log, remote, nil, nil)
	return r, dir, grp, b, log
}

func TestRouter_RouteDirectToLocalAgentWakesInbox(t *testing.T) {
	r, dir, _, b, _ := newTestRouter(t, nil)
	require.NoError(t, dir.RegisterLocal("bob"))
	inbox := b.Inbox("bob")

	err := r.Route(context.Background(), "alice", ident.Direct("bob"), "hi")
	require.NoError(t, err)

	select {
	case n := <-inbox:
		assert.Equal(t, ident.DirectConversation("alice", "bob"), n.Conversation)
	case <-time.After(time.Second):
		t.Fatal("expected wakeup")
	}
}

func TestRouter_RouteToUnknownAgentFails(t *testing.T) {
	r, _, _, _, _ := newTestRouter(t, nil)
	err := r.Route(context.Background(), "alice", ident.Direct("ghost"), "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ident.ErrUnknownAgent)
}

func TestRouter_RouteToGroupWakesOtherLocalMembersNotSender(t *testing.T) {
	r, dir, grp, b, _ := newTestRouter(t, nil)
	ctx := context.Background()
	require.NoError(t, dir.RegisterLocal("alice"))
	require.NoError(t, dir.RegisterLocal("bob"))
	require.NoError(t, grp.Create(ctx, "eng"))
	require.NoError(t, grp.Invite(ctx, "eng", "alice"))
	require.NoError(t, grp.Invite(ctx, "eng", "bob"))

	aliceInbox := b.Inbox("alice")
	bobInbox := b.Inbox("bob")

	err := r.Route(ctx, "alice", ident.ToGroup("eng"), "standup")
	require.NoError(t, err)

	select {
	case <-bobInbox:
	case <-time.After(time.Second):
		t.Fatal("expected wakeup for group member")
	}

	select {
	case <-aliceInbox:
		t.Fatal("sender should not be woken by its own emission")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRouter_RouteToRemoteAgentDispatchesViaRemoteSender(t *testing.T) {
	remote := &fakeRemote{}
	r, dir, _, _, _ := newTestRouter(t, remote)
	require.NoError(t, dir.RegisterRemote("bob", "node-b"))

	err := r.Route(context.Background(), "alice", ident.Direct("bob"), "hi")
	require.NoError(t, err)

	remote.mu.Lock()
	defer remote.mu.Unlock()
	assert.Equal(t, []ident.NodeId{"node-b"}, remote.calls)
}

func TestRouter_RemoteDeliveryExhaustionAppendsDeliveryFailedNotice(t *testing.T) {
	remote := &fakeRemote{fail: ident.ErrPeerUnreachable}
	r, dir, _, _, log := newTestRouter(t, remote)
	require.NoError(t, dir.RegisterRemote("bob", "node-b"))

	err := r.Route(context.Background(), "alice", ident.Direct("bob"), "hi")
	require.NoError(t, err, "Route itself succeeds; remote delivery failure is best-effort")

	remote.mu.Lock()
	attempts := len(remote.calls)
	remote.mu.Unlock()
	assert.Equal(t, retryMaxAttempts, attempts)

	events, err := log.Range(context.Background(), ident.DirectConversation("alice", "bob"), 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, eventlog.EventSystemNotice, events[1].Kind)
	assert.Contains(t, events[1].Body, "delivery to node")
}

func TestRouter_NonTransientRemoteFailureDoesNotRetry(t *testing.T) {
	remote := &fakeRemote{fail: ident.ErrProtocolMismatch}
	r, dir, _, _, _ := newTestRouter(t, remote)
	require.NoError(t, dir.RegisterRemote("bob", "node-b"))

	err := r.Route(context.Background(), "alice", ident.Direct("bob"), "hi")
	require.NoError(t, err)

	remote.mu.Lock()
	defer remote.mu.Unlock()
	assert.Equal(t, 1, len(remote.calls), "non-transient failure should not retry")
}

func TestRouter_OnIngressAppendsAndWakesLocalAgent(t *testing.T) {
	r, dir, _, b, log := newTestRouter(t, nil)
	require.NoError(t, dir.RegisterLocal("bob"))
	inbox := b.Inbox("bob")

	ev := eventlog.Event{
		Conversation: ident.DirectConversation("alice", "bob"),
		Kind:         eventlog.EventAgentText,
		From:         "alice",
		To:           ident.Direct("bob"),
		Body:         "remote hello",
	}
	require.NoError(t, r.OnIngress(ev))

	select {
	case <-inbox:
	case <-time.After(time.Second):
		t.Fatal("expected wakeup from ingress")
	}

	events, err := log.Range(context.Background(), ev.Conversation, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "remote hello", events[0].Body)
}

func TestRouter_BroadcastWakesOtherKnownLocalAgentsNotOrigin(t *testing.T) {
	r, dir, _, b, _ := newTestRouter(t, nil)
	require.NoError(t, dir.RegisterLocal("alice"))
	require.NoError(t, dir.RegisterLocal("bob"))

	aliceInbox := b.Inbox("alice")
	bobInbox := b.Inbox("bob")

	err := r.Route(context.Background(), "alice", ident.Broadcast(), "all hands")
	require.NoError(t, err)

	select {
	case <-bobInbox:
	case <-time.After(time.Second):
		t.Fatal("expected broadcast wakeup")
	}

	select {
	case <-aliceInbox:
		t.Fatal("origin should not be woken by its own broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}
