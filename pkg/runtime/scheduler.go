package runtime

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/boardroom-dev/boardroom/pkg/bus"
	"github.com/boardroom-dev/boardroom/pkg/ident"
)

// AutonomyMinInterval and AutonomyMaxInterval bound the jittered
// self-wake interval for agents configured Active (§4.10).
const (
	AutonomyMinInterval = 15 * time.Second
	AutonomyMaxInterval = 60 * time.Second
)

// Scheduler enforces §4.10's single-flight rule — at most one turn
// running per (agent, conversation_key) — with follow-up coalescing:
// a wakeup that arrives while a turn is already running for that pair
// doesn't queue a second concurrent turn, it marks the pair pending
// so exactly one more turn runs once the current one finishes.
type Scheduler struct {
	self   ident.NodeId
	engine *Engine
	bus    *bus.Bus
	logger *slog.Logger

	group singleflight.Group

	mu      sync.Mutex
	running map[string]bool
	pending map[string]ident.ConversationKey
}

// NewScheduler returns a Scheduler that runs turns through engine,
// reading wakeups from b. self is used to build the broadcast
// conversation key an autonomy self-wake reasons against.
func NewScheduler(self ident.NodeId, engine *Engine, b *bus.Bus, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		self:    self,
		engine:  engine,
		bus:     b,
		logger:  logger,
		running: make(map[string]bool),
		pending: make(map[string]ident.ConversationKey),
	}
}

// StartAgent begins consuming cfg.ID's inbox wakeups and, if cfg is
// Active, starts its jittered autonomy self-wake loop. Both stop when
// ctx is done.
func (s *Scheduler) StartAgent(ctx context.Context, cfg AgentConfig) {
	inbox := s.bus.Inbox(cfg.ID)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-inbox:
				if !ok {
					return
				}
				s.Wake(ctx, cfg, n.Conversation)
			}
		}
	}()

	if cfg.Autonomy {
		go s.autonomyLoop(ctx, cfg)
	}
}

// Wake requests a turn for (cfg.ID, conv). If one is already running
// for that exact pair, this wakeup is coalesced into a single
// follow-up turn rather than starting a second one concurrently.
func (s *Scheduler) Wake(ctx context.Context, cfg AgentConfig, conv ident.ConversationKey) {
	key := flightKey(cfg.ID, conv)

	s.mu.Lock()
	if s.running[key] {
		s.pending[key] = conv
		s.mu.Unlock()
		return
	}
	s.running[key] = true
	s.mu.Unlock()

	go s.runLoop(ctx, cfg, conv, key)
}

func (s *Scheduler) runLoop(ctx context.Context, cfg AgentConfig, conv ident.ConversationKey, key string) {
	for {
		_, _, _ = s.group.Do(key, func() (interface{}, error) {
			return nil, s.engine.RunTurn(ctx, cfg, conv)
		})

		s.mu.Lock()
		if next, ok := s.pending[key]; ok {
			delete(s.pending, key)
			s.mu.Unlock()
			conv = next
			continue
		}
		delete(s.running, key)
		s.mu.Unlock()
		return
	}
}

// autonomyLoop self-wakes cfg.ID on a bounded jittered interval so an
// Active agent may initiate conversation without being addressed; the
// self-wake is an ordinary Wake against this node's broadcast
// conversation, indistinguishable downstream from an inbound event.
func (s *Scheduler) autonomyLoop(ctx context.Context, cfg AgentConfig) {
	conv := ident.BroadcastConversation(s.self)
	for {
		wait := AutonomyMinInterval + time.Duration(rand.Int63n(int64(AutonomyMaxInterval-AutonomyMinInterval)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			s.Wake(ctx, cfg, conv)
		}
	}
}

func flightKey(agent ident.AgentId, conv ident.ConversationKey) string {
	return string(agent) + "|" + conv.String()
}
