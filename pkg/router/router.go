// Package router implements the Router: the component that resolves a
// tagged Address to a concrete recipient snapshot and fans the event
// out to each recipient's local inbox or remote node, with bounded
// retry and a DeliveryFailed notice on exhaustion.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/boardroom-dev/boardroom/pkg/bus"
	"github.com/boardroom-dev/boardroom/pkg/directory"
	"github.com/boardroom-dev/boardroom/pkg/eventlog"
	"github.com/boardroom-dev/boardroom/pkg/groups"
	"github.com/boardroom-dev/boardroom/pkg/ident"
	"github.com/boardroom-dev/boardroom/pkg/telemetry"
)

// RemoteSender delivers an event to a remote node. pkg/transport's
// Node satisfies this by structural typing.
type RemoteSender interface {
	Deliver(ctx context.Context, node ident.NodeId, ev eventlog.Event) error
}

// HealthChecker is an optional capability a RemoteSender may also
// satisfy, reporting whether a peer node is currently known Dead.
// pkg/transport's Node satisfies this by structural typing; a
// RemoteSender that doesn't is treated as having no Dead peers.
type HealthChecker interface {
	Healthy(node ident.NodeId) bool
}

// HealthMarker is an optional capability a RemoteSender may also
// satisfy, letting the Router explicitly demote a peer on retry
// exhaustion (§4.5 step 5) rather than relying only on the incidental
// failure counting inside the transport client.
type HealthMarker interface {
	MarkSuspect(node ident.NodeId)
}

// Retry tuning for §4.5 step 5: bounded exponential backoff on
// transient remote-delivery failures.
const (
	retryInitialBackoff = 200 * time.Millisecond
	retryMaxBackoff     = 5 * time.Second
	retryMaxAttempts    = 5
)

// Router is the single chokepoint every emitted event passes through.
type Router struct {
	self      ident.NodeId
	directory *directory.Directory
	groups    *groups.Registry
	bus       *bus.Bus
	log       eventlog.Log
	remote    RemoteSender
	metrics   telemetry.Recorder
	logger    *slog.Logger
}

// New builds a Router. remote may be nil for a single-node deployment
// with no federation.
func New(self ident.NodeId, dir *directory.Directory, grp *groups.Registry, b *bus.Bus, log eventlog.Log, remote RemoteSender, metrics telemetry.Recorder, logger *slog.Logger) *Router {
	return &Router{self: self, directory: dir, groups: grp, bus: b, log: log, remote: remote, metrics: metrics, logger: logger}
}

// Route resolves address to its recipient snapshot, appends the
// resulting event once to its conversation in the Append-Only Log, and
// delivers a wakeup to each recipient — locally via the Bus, remotely via the
// RemoteSender with bounded retry. An address naming an unknown agent
// fails immediately with ErrUnknownAgent; unknown agents inside a
// Group or Broadcast snapshot are simply skipped, since membership is
// resolved from ambient state the caller doesn't control.
func (r *Router) Route(ctx context.Context, origin ident.AgentId, address ident.Address, body string) error {
	start := time.Now()

	recipients, key, err := r.resolve(origin, address)
	if err != nil {
		r.record("reject", start)
		return err
	}

	ev := eventlog.Event{
		Conversation: key,
		Kind:         eventlog.EventAgentText,
		From:         origin,
		To:           address,
		Body:         body,
		Timestamp:    time.Now(),
	}

	if _, err := r.log.Append(ctx, ev); err != nil {
		r.record("log_error", start)
		return fmt.Errorf("append routed event: %w", err)
	}

	r.fanout(ctx, origin, key, wakeupTargets(origin, recipients))
	r.record("ok", start)
	return nil
}

// wakeupTargets drops origin from recipients before fanout: the
// sender already knows what it just sent, so it doesn't need a wakeup
// for its own emission (it still sees the event in the conversation's
// log like everyone else).
func wakeupTargets(origin ident.AgentId, recipients []ident.AgentId) []ident.AgentId {
	out := make([]ident.AgentId, 0, len(recipients))
	for _, a := range recipients {
		if a != origin {
			out = append(out, a)
		}
	}
	return out
}

// OnIngress handles an event a remote node delivered for one of this
// node's local agents: append to the log and wake the local inbox.
// Satisfies transport.Ingress.
func (r *Router) OnIngress(ev eventlog.Event) error {
	ctx := context.Background()
	if _, err := r.log.Append(ctx, ev); err != nil {
		return fmt.Errorf("append ingress event: %w", err)
	}

	r.bus.Publish(ev.Conversation, r.localRecipientsOf(ev.Conversation))
	return nil
}

// resolve turns an Address into a sorted recipient snapshot and the
// ConversationKey the resulting event belongs to.
func (r *Router) resolve(origin ident.AgentId, address ident.Address) ([]ident.AgentId, ident.ConversationKey, error) {
	switch address.Kind {
	case ident.AddressDirect:
		if r.directory.Lookup(address.Agent) == (directory.Binding{}) {
			return nil, ident.ConversationKey{}, fmt.Errorf("%w: %s", ident.ErrUnknownAgent, address.Agent)
		}
		return []ident.AgentId{address.Agent}, ident.DirectConversation(origin, address.Agent), nil

	case ident.AddressGroup:
		members, err := r.groups.MembersOf(address.Group)
		if err != nil {
			return nil, ident.ConversationKey{}, err
		}
		return sortedCopy(members), ident.GroupConversation(address.Group), nil

	case ident.AddressBroadcast:
		known := r.directory.ListKnown()
		return sortedCopy(r.excludeDeadPeers(known)), ident.BroadcastConversation(r.self), nil

	default:
		return nil, ident.ConversationKey{}, fmt.Errorf("%w: unrecognized address kind", ident.ErrUnknownAgent)
	}
}

// excludeDeadPeers drops agents bound to a remote node the Router's
// RemoteSender reports Dead (§4.6: a Dead peer is excluded from
// broadcast snapshots). Local agents and agents on a RemoteSender that
// doesn't expose HealthChecker pass through unfiltered.
func (r *Router) excludeDeadPeers(agents []ident.AgentId) []ident.AgentId {
	checker, ok := r.remote.(HealthChecker)
	if !ok {
		return agents
	}

	out := make([]ident.AgentId, 0, len(agents))
	for _, a := range agents {
		binding := r.directory.Lookup(a)
		if binding.Location == directory.Remote && !checker.Healthy(binding.Node) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func sortedCopy(agents []ident.AgentId) []ident.AgentId {
	out := make([]ident.AgentId, len(agents))
	copy(out, agents)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// localRecipientsOf filters a conversation's known membership down to
// this node's locally-bound agents, for waking inboxes on ingress.
func (r *Router) localRecipientsOf(key ident.ConversationKey) []ident.AgentId {
	local := make(map[ident.AgentId]bool)
	for _, a := range r.directory.ListLocal() {
		local[a] = true
	}

	var out []ident.AgentId
	switch key.Kind {
	case ident.ConversationDirect:
		if local[key.DirectLow] {
			out = append(out, key.DirectLow)
		}
		if local[key.DirectHigh] {
			out = append(out, key.DirectHigh)
		}
	case ident.ConversationGroup:
		members, err := r.groups.MembersOf(key.Group)
		if err == nil {
			for _, m := range members {
				if local[m] {
					out = append(out, m)
				}
			}
		}
	case ident.ConversationBroadcast:
		for _, a := range r.directory.ListLocal() {
			out = append(out, a)
		}
	}
	return sortedCopy(out)
}

// fanout partitions recipients into Local and Remote-by-node, wakes
// local inboxes directly, and dispatches remote deliveries
// concurrently via errgroup, each with its own bounded retry. origin
// is carried through only to attribute a DeliveryFailed notice to the
// agent whose send triggered it.
func (r *Router) fanout(ctx context.Context, origin ident.AgentId, key ident.ConversationKey, recipients []ident.AgentId) {
	var localAgents []ident.AgentId
	remoteByNode := make(map[ident.NodeId][]ident.AgentId)

	for _, agent := range recipients {
		switch binding := r.directory.Lookup(agent); binding.Location {
		case directory.Local:
			localAgents = append(localAgents, agent)
		case directory.Remote:
			remoteByNode[binding.Node] = append(remoteByNode[binding.Node], agent)
		}
	}

	if len(localAgents) > 0 {
		r.bus.Publish(key, localAgents)
	}

	if r.remote == nil || len(remoteByNode) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for node, agents := range remoteByNode {
		node, agents := node, agents
		g.Go(func() error {
			return r.deliverWithRetry(gctx, origin, node, agents, key)
		})
	}
	if err := g.Wait(); err != nil && r.logger != nil {
		r.logger.Warn("remote fanout incomplete", "error", err)
	}
}

// deliverWithRetry sends the conversation's latest logged event (read
// back with Tail, normally the event Route just appended) to node for
// the given agents; the remote Router appends it on ingress. It retries
// transient failures with bounded exponential backoff. On exhaustion
// it marks node Suspect (§4.5 step 5) and appends a DeliveryFailed
// SystemNotice, attributed to origin, to the conversation instead of
// propagating the error further.
func (r *Router) deliverWithRetry(ctx context.Context, origin ident.AgentId, node ident.NodeId, agents []ident.AgentId, key ident.ConversationKey) error {
	tail, err := r.log.Tail(ctx, key, 1)
	if err != nil || len(tail) == 0 {
		return err
	}
	ev := tail[0]

	var lastErr error
	backoff := retryInitialBackoff
	for attempt := 0; attempt < retryMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = time.Duration(math.Min(float64(backoff*2), float64(retryMaxBackoff)))
		}

		err := r.remote.Deliver(ctx, node, ev)
		if err == nil {
			return nil
		}
		lastErr = err
		if !ident.Transient(err) {
			break
		}
	}

	if marker, ok := r.remote.(HealthMarker); ok {
		marker.MarkSuspect(node)
	}
	r.noticeDeliveryFailed(ctx, origin, key, node, agents, lastErr)
	return lastErr
}

func (r *Router) noticeDeliveryFailed(ctx context.Context, origin ident.AgentId, key ident.ConversationKey, node ident.NodeId, agents []ident.AgentId, cause error) {
	_, _ = r.log.Append(ctx, eventlog.Event{
		Conversation: key,
		Kind:         eventlog.EventSystemNotice,
		From:         origin,
		Body:         fmt.Sprintf("delivery to node %s failed for %v: %v", node, agents, cause),
		Timestamp:    time.Now(),
	})
}

func (r *Router) record(outcome string, start time.Time) {
	if r.metrics != nil {
		r.metrics.RecordRouteAttempt(outcome, time.Since(start))
	}
}
