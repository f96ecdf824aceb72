package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hyperjump/kotae/internal/models"
)

func newTestRedisHistory(t *testing.T, ttl time.Duration) (*RedisHistory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	h, err := NewRedisHistory(context.Background(), "redis://"+mr.Addr(), ttl)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h, mr
}

func TestRedisHistory(t *testing.T) {
	ctx := context.Background()
	h, mr := newTestRedisHistory(t, time.Minute)

	for _, q := range []string{"q1", "q2", "q3"} {
		if err := h.AppendTurn(ctx, "s1", models.ConversationTurn{Question: q, Answer: "a-" + q}); err != nil {
			t.Fatal(err)
		}
	}
	if err := h.AppendTurn(ctx, "other", models.ConversationTurn{Question: "x", Answer: "y"}); err != nil {
		t.Fatal(err)
	}

	all, err := h.ListTurns(ctx, "s1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("ListTurns = %+v", all)
	}
	for i, q := range []string{"q1", "q2", "q3"} {
		if all[i].Question != q || all[i].Answer != "a-"+q {
			t.Errorf("turn %d = %+v, want question %s", i, all[i], q)
		}
		if all[i].CreatedAt.IsZero() {
			t.Errorf("turn %d has no timestamp", i)
		}
	}

	last, err := h.ListTurns(ctx, "s1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(last) != 2 || last[0].Question != "q2" || last[1].Question != "q3" {
		t.Errorf("ListTurns(limit 2) = %+v", last)
	}
	if wide, _ := h.ListTurns(ctx, "s1", 10); len(wide) != 3 {
		t.Errorf("limit above length should return every turn, got %d", len(wide))
	}

	if ttl := mr.TTL(redisKey("s1")); ttl != time.Minute {
		t.Errorf("session ttl = %v, want 1m", ttl)
	}

	if err := h.DeleteSession(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if mr.Exists(redisKey("s1")) {
		t.Error("session key should be gone after DeleteSession")
	}
	if gone, _ := h.ListTurns(ctx, "s1", 0); len(gone) != 0 {
		t.Errorf("deleted session still lists %+v", gone)
	}
	if kept, _ := h.ListTurns(ctx, "other", 0); len(kept) != 1 {
		t.Errorf("other session should be untouched, got %+v", kept)
	}
}

func TestRedisHistory_TTL(t *testing.T) {
	ctx := context.Background()

	h, mr := newTestRedisHistory(t, time.Minute)
	if err := h.AppendTurn(ctx, "idle", models.ConversationTurn{Question: "q", Answer: "a"}); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Minute)
	if turns, _ := h.ListTurns(ctx, "idle", 0); len(turns) != 0 {
		t.Errorf("expired session still lists %+v", turns)
	}

	forever, mr2 := newTestRedisHistory(t, 0)
	if err := forever.AppendTurn(ctx, "kept", models.ConversationTurn{Question: "q", Answer: "a"}); err != nil {
		t.Fatal(err)
	}
	if ttl := mr2.TTL(redisKey("kept")); ttl != 0 {
		t.Errorf("ttl 0 should not set an expiry, got %v", ttl)
	}
}

func TestRedisHistory_MissingSession(t *testing.T) {
	h, _ := newTestRedisHistory(t, 0)
	turns, err := h.ListTurns(context.Background(), "nobody", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 0 {
		t.Errorf("unknown session = %+v, want empty", turns)
	}
}

func TestNewRedisHistory_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if _, err := NewRedisHistory(ctx, "redis://127.0.0.1:1/0", 0); err == nil {
		t.Error("expected connection error")
	}
}
