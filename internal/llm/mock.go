package llm

import (
	"context"
	"sync"

	"github.com/hyperjump/kotae/internal/models"
)

// Call records one Generate invocation on a MockGenerator.
type Call struct {
	Prompt  string
	History []models.ConversationTurn
}

// MockGenerator answers with a fixed reply (or Err) and records every call.
type MockGenerator struct {
	mu    sync.Mutex
	calls []Call
	Reply string
	Err   error
}

// NewMockGenerator returns a generator that replies "mock answer".
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{Reply: "mock answer"}
}

// Generate records the call and returns Reply or Err.
func (m *MockGenerator) Generate(ctx context.Context, prompt string, history []models.ConversationTurn) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Prompt: prompt, History: append([]models.ConversationTurn(nil), history...)})
	if m.Err != nil {
		return "", m.Err
	}
	return m.Reply, nil
}

// Calls returns a copy of the recorded calls.
func (m *MockGenerator) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}
