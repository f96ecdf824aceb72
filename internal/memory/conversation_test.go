package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func turn(i int) models.ConversationTurn {
	return models.ConversationTurn{Question: fmt.Sprintf("q%d", i), Answer: fmt.Sprintf("a%d", i)}
}

func TestConversation_AppendAndHistory(t *testing.T) {
	c := NewConversation("s1")
	if len(c.History()) != 0 {
		t.Fatal("new conversation should be empty")
	}
	for i := 1; i <= 3; i++ {
		c.Append(turn(i))
	}
	h := c.History()
	if len(h) != 3 || h[0].Question != "q1" || h[2].Question != "q3" {
		t.Errorf("History = %+v", h)
	}
	h[0].Question = "mutated"
	if c.History()[0].Question != "q1" {
		t.Error("History must return a copy")
	}
}

func TestConversation_Recent(t *testing.T) {
	c := NewConversation("s1", turn(1), turn(2))
	c.Append(turn(3))
	c.Append(turn(4))

	tests := []struct {
		n     int
		first string
		count int
	}{
		{0, "q1", 4},
		{-1, "q1", 4},
		{2, "q3", 2},
		{10, "q1", 4},
	}
	for _, tt := range tests {
		got := c.Recent(tt.n)
		if len(got) != tt.count || got[0].Question != tt.first {
			t.Errorf("Recent(%d) = %+v", tt.n, got)
		}
	}
}

func TestConversation_ConcurrentAppend(t *testing.T) {
	c := NewConversation("s1")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Append(turn(i))
			_ = c.Recent(5)
		}(i)
	}
	wg.Wait()
	if c.Len() != 50 {
		t.Errorf("Len = %d, want 50", c.Len())
	}
}
