package mock

import (
	"context"
	"strings"
	"sync"
)

// MockCompleter is a test double for ai.Completer.
// By default it echoes a fixed answer and streams it word by word.
type MockCompleter struct {
	// CompleteFunc is called by Complete if set.
	CompleteFunc func(ctx context.Context, prompt string) (string, error)

	// StreamFunc is called by Stream if set.
	StreamFunc func(ctx context.Context, prompt string, onChunk func(string) error) error

	// Response is the default completion text.
	Response string

	mu      sync.Mutex
	calls   int
	prompts []string
}

// NewMockCompleter creates a mock completer answering "mock answer".
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{Response: "mock answer"}
}

// WithCompleteFunc sets custom Complete behavior.
func (m *MockCompleter) WithCompleteFunc(fn func(ctx context.Context, prompt string) (string, error)) *MockCompleter {
	m.CompleteFunc = fn
	return m
}

// WithStreamFunc sets custom Stream behavior.
func (m *MockCompleter) WithStreamFunc(fn func(ctx context.Context, prompt string, onChunk func(string) error) error) *MockCompleter {
	m.StreamFunc = fn
	return m
}

func (m *MockCompleter) record(prompt string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
}

// Complete returns Response or delegates to CompleteFunc.
func (m *MockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	m.record(prompt)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}
	return m.Response, nil
}

// Stream emits Response one word at a time or delegates to StreamFunc.
func (m *MockCompleter) Stream(ctx context.Context, prompt string, onChunk func(string) error) error {
	m.record(prompt)
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, prompt, onChunk)
	}
	words := strings.SplitAfter(m.Response, " ")
	for _, w := range words {
		if w == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := onChunk(w); err != nil {
			return err
		}
	}
	return nil
}

// Model returns the mock model name.
func (m *MockCompleter) Model() string {
	return "mock-llm"
}

// CallCount returns the number of Complete and Stream calls.
func (m *MockCompleter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastPrompt returns the most recent prompt, or "".
func (m *MockCompleter) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

// Reset clears the call history and custom behavior.
func (m *MockCompleter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = 0
	m.prompts = nil
	m.CompleteFunc = nil
	m.StreamFunc = nil
}
