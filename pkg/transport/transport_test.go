package transport

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardroom-dev/boardroom/pkg/eventlog"
	"github.com/boardroom-dev/boardroom/pkg/ident"
)

type fakeIngress struct {
	received []eventlog.Event
	fail     error
}

func (f *fakeIngress) OnIngress(ev eventlog.Event) error {
	if f.fail != nil {
		return f.fail
	}
	f.received = append(f.received, ev)
	return nil
}

type fakePresence struct {
	local  []ident.AgentId
	remote map[ident.AgentId]ident.NodeId
}

func newFakePresence() *fakePresence {
	return &fakePresence{remote: make(map[ident.AgentId]ident.NodeId)}
}

func (f *fakePresence) ListLocal() []ident.AgentId { return f.local }

func (f *fakePresence) RegisterRemote(agent ident.AgentId, node ident.NodeId) error {
	f.remote[agent] = node
	return nil
}

func TestServerClient_DeliverRoundTrip(t *testing.T) {
	ingress := &fakeIngress{}
	presence := newFakePresence()
	srv := NewServer("node-a", ingress, presence, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := NewClient("node-b", 0)
	ev := eventlog.Event{
		Conversation: ident.DirectConversation("alice", "bob"),
		Kind:         eventlog.EventAgentText,
		From:         "alice",
		Body:         "hello",
	}

	err := client.Deliver(context.Background(), ts.URL, ev)
	require.NoError(t, err)
	require.Len(t, ingress.received, 1)
	assert.Equal(t, "hello", ingress.received[0].Body)
}

func TestServerClient_DeliverRejectionSurfacesAsError(t *testing.T) {
	ingress := &fakeIngress{fail: ident.ErrUnknownAgent}
	presence := newFakePresence()
	srv := NewServer("node-a", ingress, presence, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := NewClient("node-b", 0)
	err := client.Deliver(context.Background(), ts.URL, eventlog.Event{
		Conversation: ident.DirectConversation("alice", "bob"),
	})
	require.Error(t, err)
}

func TestServerClient_AnnounceRegistersRemoteAgents(t *testing.T) {
	ingress := &fakeIngress{}
	presence := newFakePresence()
	srv := NewServer("node-a", ingress, presence, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := NewClient("node-b", 0)
	err := client.Announce(context.Background(), ts.URL, []ident.AgentId{"alice", "bob"})
	require.NoError(t, err)

	assert.Equal(t, ident.NodeId("node-b"), presence.remote["alice"])
	assert.Equal(t, ident.NodeId("node-b"), presence.remote["bob"])
}

func TestServerClient_QueryReportsLocalAgents(t *testing.T) {
	ingress := &fakeIngress{}
	presence := newFakePresence()
	presence.local = []ident.AgentId{"carol"}
	srv := NewServer("node-a", ingress, presence, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := NewClient("node-b", 0)
	resp, err := client.Query(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, ident.NodeId("node-a"), resp.Node)
	assert.Equal(t, []ident.AgentId{"carol"}, resp.LocalAgents)
}

func TestHealthTracker_ThresholdsDemoteAndReset(t *testing.T) {
	tracker := NewHealthTracker()
	peer := "http://peer"

	assert.Equal(t, Healthy, tracker.State(peer))

	for i := 0; i < 2; i++ {
		tracker.RecordFailure(peer)
	}
	assert.Equal(t, Healthy, tracker.State(peer), "below threshold still healthy")

	state := tracker.RecordFailure(peer)
	assert.Equal(t, Suspect, state)

	for i := 0; i < 2; i++ {
		tracker.RecordFailure(peer)
	}
	assert.Equal(t, Suspect, tracker.State(peer))

	state = tracker.RecordFailure(peer)
	assert.Equal(t, Dead, state)

	tracker.RecordSuccess(peer)
	assert.Equal(t, Healthy, tracker.State(peer))
}
