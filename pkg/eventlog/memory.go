package eventlog

import (
	"context"
	"sync"

	"github.com/boardroom-dev/boardroom/pkg/ident"
)

// conversationLog holds one conversation's events plus its subscriber
// fan-out channels.
type conversationLog struct {
	events []Event
	subs   []chan struct{}
}

// MemoryLog is the default in-memory Log: one event slice per
// conversation, all guarded by a single mutex. Every event ever appended is retained for the lifetime of
// the process; there is no compaction.
type MemoryLog struct {
	mu   sync.Mutex
	logs map[ident.ConversationKey]*conversationLog
}

// NewMemoryLog returns an empty in-memory Log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{logs: make(map[ident.ConversationKey]*conversationLog)}
}

var _ Log = (*MemoryLog)(nil)

func (l *MemoryLog) Append(ctx context.Context, ev Event) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.logs[ev.Conversation]
	if !ok {
		cl = &conversationLog{}
		l.logs[ev.Conversation] = cl
	}

	seq := uint64(len(cl.events)) + 1
	ev.Sequence = seq
	cl.events = append(cl.events, ev)

	for _, ch := range cl.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}

	return seq, nil
}

func (l *MemoryLog) Range(ctx context.Context, key ident.ConversationKey, from, to uint64) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.logs[key]
	if !ok {
		return nil, nil
	}

	if to == 0 || to > uint64(len(cl.events)) {
		to = uint64(len(cl.events))
	}
	if from == 0 {
		from = 1
	}
	if from > to {
		return nil, nil
	}

	out := make([]Event, to-from+1)
	copy(out, cl.events[from-1:to])
	return out, nil
}

func (l *MemoryLog) Tail(ctx context.Context, key ident.ConversationKey, n int) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.logs[key]
	if !ok || n <= 0 {
		return nil, nil
	}

	start := len(cl.events) - n
	if start < 0 {
		start = 0
	}

	out := make([]Event, len(cl.events)-start)
	copy(out, cl.events[start:])
	return out, nil
}

func (l *MemoryLog) Subscribe(ctx context.Context, key ident.ConversationKey) <-chan struct{} {
	l.mu.Lock()
	cl, ok := l.logs[key]
	if !ok {
		cl = &conversationLog{}
		l.logs[key] = cl
	}
	ch := make(chan struct{}, 1)
	cl.subs = append(cl.subs, ch)
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, s := range cl.subs {
			if s == ch {
				cl.subs = append(cl.subs[:i], cl.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch
}
