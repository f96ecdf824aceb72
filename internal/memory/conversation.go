// Package memory keeps per-session conversation history in process.
package memory

import (
	"sync"

	"github.com/hyperjump/kotae/internal/models"
)

// Conversation is the ordered, append-only turn list of one session.
type Conversation struct {
	id    string
	mu    sync.RWMutex
	turns []models.ConversationTurn
}

// NewConversation returns an empty conversation, optionally seeded with earlier turns
// (oldest first).
func NewConversation(id string, seed ...models.ConversationTurn) *Conversation {
	c := &Conversation{id: id}
	c.turns = append(c.turns, seed...)
	return c
}

// ID returns the session id.
func (c *Conversation) ID() string { return c.id }

// Append adds a completed turn.
func (c *Conversation) Append(turn models.ConversationTurn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, turn)
}

// History returns all turns, oldest first. The slice is a copy.
func (c *Conversation) History() []models.ConversationTurn {
	return c.Recent(0)
}

// Recent returns the last n turns, oldest first. n <= 0 returns every turn.
func (c *Conversation) Recent(n int) []models.ConversationTurn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	start := 0
	if n > 0 && len(c.turns) > n {
		start = len(c.turns) - n
	}
	out := make([]models.ConversationTurn, len(c.turns)-start)
	copy(out, c.turns[start:])
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}
