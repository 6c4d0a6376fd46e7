package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardroom-dev/boardroom/pkg/bus"
	"github.com/boardroom-dev/boardroom/pkg/directory"
	"github.com/boardroom-dev/boardroom/pkg/eventlog"
	"github.com/boardroom-dev/boardroom/pkg/groups"
	"github.com/boardroom-dev/boardroom/pkg/ident"
	"github.com/boardroom-dev/boardroom/pkg/llm"
	"github.com/boardroom-dev/boardroom/pkg/promptview"
	"github.com/boardroom-dev/boardroom/pkg/router"
	"github.com/boardroom-dev/boardroom/pkg/tool"
)

type fixture struct {
	engine *Engine
	log    eventlog.Log
	llmReg *llm.Registry
	tools  *tool.Runtime
}

func newFixture(t *testing.T, binding llm.Binding) fixture {
	t.Helper()
	dir := directory.New()
	require.NoError(t, dir.RegisterLocal("alice"))
	require.NoError(t, dir.RegisterLocal("bob"))

	log := eventlog.NewMemoryLog()
	grp := groups.New(log)
	b := bus.New(8, nil)
	rtr := router.New("node-a", dir, grp, b, log, nil, nil, nil)

	views, err := promptview.New(log, 0, 0)
	require.NoError(t, err)

	llmReg := llm.NewRegistry()
	require.NoError(t, llmReg.RegisterBinding(binding))

	tools := tool.New(0)

	engine := NewEngine(views, llmReg, tools, rtr, log, nil, nil, 0)
	return fixture{engine: engine, log: log, llmReg: llmReg, tools: tools}
}

func TestEngine_RunTurnRoutesReplyThroughRouter(t *testing.T) {
	binding := llm.NewMockBinding("mock", llm.Outcome{Reply: "hello bob"})
	fx := newFixture(t, binding)

	conv := ident.DirectConversation("alice", "bob")
	_, err := fx.log.Append(context.Background(), eventlog.Event{
		Conversation: conv, Kind: eventlog.EventAgentText, From: "bob", Body: "hi alice",
	})
	require.NoError(t, err)

	cfg := AgentConfig{ID: "alice", LLMBinding: "mock"}
	require.NoError(t, fx.engine.RunTurn(context.Background(), cfg, conv))

	events, err := fx.log.Range(context.Background(), conv, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, eventlog.EventAgentText, events[1].Kind)
	assert.Equal(t, "hello bob", events[1].Body)
	assert.Equal(t, ident.AgentId("alice"), events[1].From)
}

func TestEngine_RunTurnLoopsThroughToolCallBeforeReplying(t *testing.T) {
	binding := llm.NewMockBinding("mock",
		llm.Outcome{ToolCall: &llm.ToolCallRequest{ToolName: "echo", Args: map[string]any{"text": "ping"}}},
		llm.Outcome{Reply: "done"},
	)
	fx := newFixture(t, binding)

	echoTool, err := tool.NewFunctionTool("echo", "echoes text", func(ctx context.Context, args struct {
		Text string `json:"text" jsonschema:"required"`
	}) (string, error) {
		return args.Text, nil
	})
	require.NoError(t, err)
	require.NoError(t, fx.tools.Register(echoTool))

	conv := ident.DirectConversation("alice", "bob")
	cfg := AgentConfig{ID: "alice", LLMBinding: "mock"}
	require.NoError(t, fx.engine.RunTurn(context.Background(), cfg, conv))

	events, err := fx.log.Range(context.Background(), conv, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, eventlog.EventToolCall, events[0].Kind)
	assert.Equal(t, eventlog.EventToolResult, events[1].Kind)
	assert.Equal(t, "ping", events[1].ToolResult)
	assert.Equal(t, eventlog.EventAgentText, events[2].Kind)
	assert.Equal(t, "done", events[2].Body)
}

func TestEngine_RunTurnExceedsBudgetLogsNotice(t *testing.T) {
	call := llm.Outcome{ToolCall: &llm.ToolCallRequest{ToolName: "echo", Args: map[string]any{"text": "x"}}}
	binding := llm.NewMockBinding("mock", call, call, call, call, call, call)
	fx := newFixture(t, binding)

	echoTool, err := tool.NewFunctionTool("echo", "echoes text", func(ctx context.Context, args struct {
		Text string `json:"text" jsonschema:"required"`
	}) (string, error) {
		return args.Text, nil
	})
	require.NoError(t, err)
	require.NoError(t, fx.tools.Register(echoTool))

	conv := ident.DirectConversation("alice", "bob")
	cfg := AgentConfig{ID: "alice", LLMBinding: "mock"}
	require.NoError(t, fx.engine.RunTurn(context.Background(), cfg, conv))

	events, err := fx.log.Range(context.Background(), conv, 0, 0)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, eventlog.EventSystemNotice, last.Kind)
	assert.Contains(t, last.Body, "exceeded")
}

func TestEngine_RunTurnLLMFailureLogsNoticeAndReturnsNil(t *testing.T) {
	fx := newFixture(t, alwaysFailBinding{})

	conv := ident.DirectConversation("alice", "bob")
	cfg := AgentConfig{ID: "alice", LLMBinding: "failer"}
	require.NoError(t, fx.engine.RunTurn(context.Background(), cfg, conv))

	events, err := fx.log.Range(context.Background(), conv, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, eventlog.EventSystemNotice, events[0].Kind)
	assert.Contains(t, events[0].Body, "llm failure")
}

type alwaysFailBinding struct{}

func (alwaysFailBinding) Name() string { return "failer" }
func (alwaysFailBinding) Chat(ctx context.Context, view promptview.PromptView, tools []llm.ToolDefinition) (llm.Outcome, error) {
	return llm.Outcome{}, assertError{}
}

type assertError struct{}

func (assertError) Error() string { return "boom" }

func TestEngine_RunTurnCancelledContextLogsNotice(t *testing.T) {
	binding := llm.NewMockBinding("mock", llm.Outcome{Reply: "too late"})
	fx := newFixture(t, binding)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conv := ident.DirectConversation("alice", "bob")
	cfg := AgentConfig{ID: "alice", LLMBinding: "mock"}
	err := fx.engine.RunTurn(ctx, cfg, conv)
	require.Error(t, err)
	assert.ErrorIs(t, err, ident.ErrCancelled)

	events, rerr := fx.log.Range(context.Background(), conv, 0, 0)
	require.NoError(t, rerr)
	require.Len(t, events, 1)
	assert.Equal(t, eventlog.EventSystemNotice, events[0].Kind)
}

func TestReplyAddress(t *testing.T) {
	direct := ident.DirectConversation("alice", "bob")
	assert.Equal(t, ident.Direct("bob"), replyAddress("alice", direct))
	assert.Equal(t, ident.Direct("alice"), replyAddress("bob", direct))

	group := ident.GroupConversation("eng")
	assert.Equal(t, ident.ToGroup("eng"), replyAddress("alice", group))

	broadcast := ident.BroadcastConversation("node-a")
	assert.Equal(t, ident.Broadcast(), replyAddress("alice", broadcast))
}
