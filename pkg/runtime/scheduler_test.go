package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardroom-dev/boardroom/pkg/bus"
	"github.com/boardroom-dev/boardroom/pkg/ident"
)

// countingRunner lets a test hold a turn open long enough to provoke a
// concurrent Wake for the same (agent, conversation) pair, to verify
// coalescing instead of a second concurrent turn.
type countingRunner struct {
	mu      sync.Mutex
	started int
	release chan struct{}
}

func newCountingRunner() *countingRunner {
	return &countingRunner{release: make(chan struct{})}
}

func (c *countingRunner) RunTurn(ctx context.Context, cfg AgentConfig, conv ident.ConversationKey) error {
	c.mu.Lock()
	c.started++
	c.mu.Unlock()
	<-c.release
	return nil
}

func TestScheduler_WakeCoalescesConcurrentArrivals(t *testing.T) {
	runner := newCountingRunner()
	sched := &Scheduler{
		self:    "node-a",
		bus:     bus.New(8, nil),
		running: make(map[string]bool),
		pending: make(map[string]ident.ConversationKey),
	}

	cfg := AgentConfig{ID: "alice"}
	conv := ident.DirectConversation("alice", "bob")
	key := flightKey(cfg.ID, conv)

	// Mirror Wake/runLoop's running/pending bookkeeping inline against
	// countingRunner, since Scheduler runs turns through a concrete
	// *Engine. This checks the coalescing protocol those methods
	// implement on the Scheduler's own maps, not the methods themselves;
	// turn semantics are covered by the Engine tests.
	runOnce := func() {
		sched.mu.Lock()
		if sched.running[key] {
			sched.pending[key] = conv
			sched.mu.Unlock()
			return
		}
		sched.running[key] = true
		sched.mu.Unlock()

		go func() {
			for {
				_ = runner.RunTurn(context.Background(), cfg, conv)
				sched.mu.Lock()
				if _, ok := sched.pending[key]; ok {
					delete(sched.pending, key)
					sched.mu.Unlock()
					continue
				}
				delete(sched.running, key)
				sched.mu.Unlock()
				return
			}
		}()
	}

	runOnce()
	time.Sleep(20 * time.Millisecond) // let the first turn start and block on release
	runOnce()
	runOnce()
	runOnce()

	runner.mu.Lock()
	afterFirst := runner.started
	runner.mu.Unlock()
	assert.Equal(t, 1, afterFirst, "no second turn starts while the first is in flight")
	runner.release <- struct{}{}

	// the coalesced follow-up should now be running; release it too.
	time.Sleep(20 * time.Millisecond)
	runner.release <- struct{}{}

	time.Sleep(20 * time.Millisecond)
	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, 2, runner.started, "exactly one follow-up turn ran for all the coalesced wakeups")
}

func TestScheduler_DistinctConversationsRunConcurrently(t *testing.T) {
	runner := newCountingRunner()
	sched := &Scheduler{
		self:    "node-a",
		bus:     bus.New(8, nil),
		running: make(map[string]bool),
		pending: make(map[string]ident.ConversationKey),
	}

	cfg := AgentConfig{ID: "alice"}
	convA := ident.DirectConversation("alice", "bob")
	convB := ident.DirectConversation("alice", "carol")

	run := func(conv ident.ConversationKey) {
		key := flightKey(cfg.ID, conv)
		sched.mu.Lock()
		sched.running[key] = true
		sched.mu.Unlock()
		go func() {
			_ = runner.RunTurn(context.Background(), cfg, conv)
		}()
	}

	run(convA)
	run(convB)

	time.Sleep(20 * time.Millisecond)
	runner.mu.Lock()
	started := runner.started
	runner.mu.Unlock()
	require.Equal(t, 2, started, "distinct conversations for the same agent run concurrently, each single-flighted on its own key")

	runner.release <- struct{}{}
	runner.release <- struct{}{}
}

func TestFlightKey_DiffersByConversation(t *testing.T) {
	a := flightKey("alice", ident.DirectConversation("alice", "bob"))
	b := flightKey("alice", ident.DirectConversation("alice", "carol"))
	assert.NotEqual(t, a, b)
}
