package company

import (
	"context"

	"github.com/boardroom-dev/boardroom/pkg/eventlog"
	"github.com/boardroom-dev/boardroom/pkg/ident"
)

// DefaultObserveBuffer bounds how many not-yet-consumed events Observe
// buffers; once it is full, Observe's reader waits for the subscriber,
// while appends to the log proceed without blocking.
const DefaultObserveBuffer = 64

// EventsSince returns conv's events with sequence >= fromSeq, for
// callers that prefer polling over Observe's push-based stream.
func (c *Company) EventsSince(ctx context.Context, conv ident.ConversationKey, fromSeq uint64) ([]eventlog.Event, error) {
	return c.log.Range(ctx, conv, fromSeq, 0)
}

// Observe returns a channel of every event in conv (UserText,
// AgentText, ToolCall, ToolResult and SystemNotice), starting with the
// events already in the log and continuing with later appends (§6:
// "a stream of SystemNotice and conversation events for external
// dashboards"). The channel closes when ctx is done.
func (c *Company) Observe(ctx context.Context, conv ident.ConversationKey) <-chan eventlog.Event {
	out := make(chan eventlog.Event, DefaultObserveBuffer)
	notify := c.log.Subscribe(ctx, conv)

	go func() {
		defer close(out)
		var lastSeq uint64

		drain := func() bool {
			events, err := c.log.Range(ctx, conv, lastSeq+1, 0)
			if err != nil {
				return true
			}
			for _, ev := range events {
				select {
				case out <- ev:
				case <-ctx.Done():
					return false
				}
				lastSeq = ev.Sequence
			}
			return true
		}

		if !drain() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-notify:
				if !ok {
					return
				}
				if !drain() {
					return
				}
			}
		}
	}()

	return out
}
