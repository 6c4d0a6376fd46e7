package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/boardroom-dev/boardroom/pkg/promptview"
)

// MockBinding is an in-memory Binding for tests: it returns scripted
// Outcomes in order, falling back to
// echoing the last event's body once the script is exhausted.
type MockBinding struct {
	name string

	mu     sync.Mutex
	script []Outcome
	calls  int
}

// NewMockBinding returns a MockBinding named name that returns each of
// script's Outcomes in order on successive Chat calls.
func NewMockBinding(name string, script ...Outcome) *MockBinding {
	return &MockBinding{name: name, script: script}
}

func (m *MockBinding) Name() string { return m.name }

func (m *MockBinding) Chat(ctx context.Context, view promptview.PromptView, tools []ToolDefinition) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.calls < len(m.script) {
		out := m.script[m.calls]
		m.calls++
		return out, nil
	}

	var last string
	if len(view.Events) > 0 {
		last = view.Events[len(view.Events)-1].Body
	}
	return Outcome{Reply: fmt.Sprintf("[%s] acknowledged: %s", m.name, last)}, nil
}

// Calls reports how many times Chat has been invoked.
func (m *MockBinding) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
