// Package bus implements the Message Bus: per-agent inbox wakeups fed
// by published events, with bounded depth and oldest-first backpressure
// when an agent's inbox can't keep up.
package bus

import (
	"sync"

	"github.com/boardroom-dev/boardroom/pkg/ident"
	"github.com/boardroom-dev/boardroom/pkg/telemetry"
)

// DefaultInboxDepth bounds how many pending wakeups an agent's inbox
// holds before the bus starts dropping the oldest one to admit a new
// wakeup (§4.4's "oldest-wakeup-drop" backpressure policy).
const DefaultInboxDepth = 32

// Notification is what an agent's inbox receives: enough to look the
// new activity up in the Append-Only Log, not the payload itself —
// the log stays the single source of truth.
type Notification struct {
	Conversation ident.ConversationKey
}

type inbox struct {
	mu     sync.Mutex
	ch     chan Notification
	lagged uint64
	closed bool
}

// Bus fans published events out to per-agent inboxes. Each Publish
// call enqueues one wakeup per recipient; the Bus does not deduplicate,
// so two Publish calls for the same event yield two wakeups per
// recipient. A dropped wakeup still leaves the event in the log for the
// agent to discover on its next Tail.
type Bus struct {
	depth   int
	metrics telemetry.Recorder

	mu      sync.RWMutex
	inboxes map[ident.AgentId]*inbox
}

// New returns a Bus whose inboxes hold at most depth pending
// notifications. depth <= 0 uses DefaultInboxDepth. metrics may be nil
// to disable recording.
func New(depth int, metrics telemetry.Recorder) *Bus {
	if depth <= 0 {
		depth = DefaultInboxDepth
	}
	return &Bus{depth: depth, metrics: metrics, inboxes: make(map[ident.AgentId]*inbox)}
}

// Inbox returns agent's notification stream, creating it if this is
// the first call for that agent.
func (b *Bus) Inbox(agent ident.AgentId) <-chan Notification {
	return b.inboxFor(agent).ch
}

func (b *Bus) inboxFor(agent ident.AgentId) *inbox {
	b.mu.RLock()
	ib, ok := b.inboxes[agent]
	b.mu.RUnlock()
	if ok {
		return ib
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if ib, ok := b.inboxes[agent]; ok {
		return ib
	}
	ib = &inbox{ch: make(chan Notification, b.depth)}
	b.inboxes[agent] = ib
	return ib
}

// Publish delivers a wakeup for key to every agent in recipients. If
// an agent's inbox is full, the oldest pending wakeup is dropped to
// admit this one, and that agent's lagged count (LaggedCount) is
// incremented. The Agent Runtime does not read the lagged count and no
// LaggedInbox notice is emitted; each turn reassembles from the log's
// tail regardless of how many wakeups were dropped.
func (b *Bus) Publish(key ident.ConversationKey, recipients []ident.AgentId) {
	if b.metrics != nil {
		b.metrics.RecordBusPublish(key.Kind.String(), len(recipients))
	}

	for _, agent := range recipients {
		ib := b.inboxFor(agent)
		ib.mu.Lock()
		if ib.closed {
			ib.mu.Unlock()
			continue
		}
		select {
		case ib.ch <- Notification{Conversation: key}:
		default:
			select {
			case <-ib.ch:
			default:
			}
			ib.lagged++
			if b.metrics != nil {
				b.metrics.RecordBusDrop(string(agent))
			}
			select {
			case ib.ch <- Notification{Conversation: key}:
			default:
			}
		}
		ib.mu.Unlock()
	}
}

// LaggedCount returns how many wakeups have been dropped for agent's
// inbox due to backpressure since the bus was created.
func (b *Bus) LaggedCount(agent ident.AgentId) int {
	b.mu.RLock()
	ib, ok := b.inboxes[agent]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	ib.mu.Lock()
	defer ib.mu.Unlock()
	return int(ib.lagged)
}

// Close shuts down agent's inbox channel. Further Publish calls
// targeting agent are silently dropped.
func (b *Bus) Close(agent ident.AgentId) {
	b.mu.Lock()
	ib, ok := b.inboxes[agent]
	b.mu.Unlock()
	if !ok {
		return
	}
	ib.mu.Lock()
	defer ib.mu.Unlock()
	if !ib.closed {
		ib.closed = true
		close(ib.ch)
	}
}
