package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	defaultTTL    = time.Hour
	cleanupPeriod = 10 * time.Minute
)

// Loader returns the persisted turns of a session, oldest first. It seeds a
// conversation that is not (or no longer) held in memory.
type Loader func(ctx context.Context, sessionID string) ([]models.ConversationTurn, error)

// Registry hands out one Conversation per session id. Idle sessions expire after
// the TTL; each access extends it.
type Registry struct {
	mu     sync.Mutex
	cache  *cache.Cache
	ttl    time.Duration
	loader Loader
	logger *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLoader seeds new sessions from persisted history.
func WithLoader(l Loader) RegistryOption {
	return func(r *Registry) { r.loader = l }
}

// WithLogger sets a logger for debug output (sessions created, seeded).
func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates a registry whose sessions expire after ttl of inactivity
// (one hour when ttl <= 0).
func NewRegistry(ttl time.Duration, opts ...RegistryOption) *Registry {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	cleanup := cleanupPeriod
	if ttl < cleanup {
		cleanup = ttl
	}
	r := &Registry{
		cache:  cache.New(ttl, cleanup),
		ttl:    ttl,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewSessionID returns a fresh random session id.
func NewSessionID() string {
	return uuid.NewString()
}

// Session returns the conversation for id, creating it (seeded by the loader, if
// any) when absent. A loader failure is logged and the session starts empty.
func (r *Registry) Session(ctx context.Context, id string) *Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()

	if x, ok := r.cache.Get(id); ok {
		conv := x.(*Conversation)
		r.cache.Set(id, conv, r.ttl)
		return conv
	}

	var seed []models.ConversationTurn
	if r.loader != nil {
		turns, err := r.loader(ctx, id)
		if err != nil {
			r.logger.Warn("load session history", zap.String("session", id), zap.Error(err))
		} else {
			seed = turns
		}
	}
	conv := NewConversation(id, seed...)
	r.cache.Set(id, conv, r.ttl)
	r.logger.Debug("session created", zap.String("session", id), zap.Int("seeded_turns", len(seed)))
	return conv
}

// Lookup returns the conversation for id without creating one.
func (r *Registry) Lookup(id string) (*Conversation, bool) {
	x, ok := r.cache.Get(id)
	if !ok {
		return nil, false
	}
	return x.(*Conversation), true
}

// Drop forgets a session.
func (r *Registry) Drop(id string) {
	r.cache.Delete(id)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return r.cache.ItemCount()
}
