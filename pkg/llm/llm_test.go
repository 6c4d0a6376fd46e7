package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardroom-dev/boardroom/pkg/ident"
	"github.com/boardroom-dev/boardroom/pkg/promptview"
)

func TestGateway_ChatReturnsBindingOutcome(t *testing.T) {
	binding := NewMockBinding("mock", Outcome{Reply: "hello there"})
	gw := NewGateway(binding, 0, 0)

	out, err := gw.Chat(context.Background(), "alice", promptview.PromptView{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello there", out.Reply)
}

type failingBinding struct {
	failures int
	err      error
}

func (f *failingBinding) Name() string { return "failing" }

func (f *failingBinding) Chat(ctx context.Context, view promptview.PromptView, tools []ToolDefinition) (Outcome, error) {
	if f.failures > 0 {
		f.failures--
		return Outcome{}, f.err
	}
	return Outcome{Reply: "recovered"}, nil
}

func TestGateway_RetriesTransientFailures(t *testing.T) {
	binding := &failingBinding{failures: 1, err: ident.ErrPeerUnreachable}
	gw := NewGateway(binding, 0, 2)

	out, err := gw.Chat(context.Background(), "alice", promptview.PromptView{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", out.Reply)
}

func TestGateway_NonTransientFailureReturnsLlmFailureImmediately(t *testing.T) {
	binding := &failingBinding{failures: 10, err: errors.New("boom")}
	gw := NewGateway(binding, 0, 2)

	_, err := gw.Chat(context.Background(), "alice", promptview.PromptView{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ident.ErrLlmFailure)
	assert.Equal(t, 9, binding.failures, "only one attempt made for a non-transient failure")
}

func TestGateway_ExhaustedRetriesReturnsLlmFailure(t *testing.T) {
	binding := &failingBinding{failures: 100, err: ident.ErrPeerUnreachable}
	gw := NewGateway(binding, 0, 2)

	_, err := gw.Chat(context.Background(), "alice", promptview.PromptView{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ident.ErrLlmFailure)
}

type slowBinding struct{}

func (slowBinding) Name() string { return "slow" }
func (slowBinding) Chat(ctx context.Context, view promptview.PromptView, tools []ToolDefinition) (Outcome, error) {
	select {
	case <-time.After(time.Second):
		return Outcome{Reply: "late"}, nil
	case <-ctx.Done():
		return Outcome{}, ident.ErrPeerUnreachable
	}
}

func TestGateway_TimeoutSurfacesAsLlmFailure(t *testing.T) {
	gw := NewGateway(slowBinding{}, 10*time.Millisecond, 0)

	_, err := gw.Chat(context.Background(), "alice", promptview.PromptView{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ident.ErrLlmFailure)
}

func TestRegistry_RegisterAndResolveBinding(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterBinding(NewMockBinding("mock-a")))

	b, ok := reg.Get("mock-a")
	require.True(t, ok)
	assert.Equal(t, "mock-a", b.Name())
}
