// Package storage persists the corpus registry and chat transcripts.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrNotFound is returned when a corpus record does not exist.
var ErrNotFound = errors.New("not found")

// CorpusStore records which corpora have been ingested and from what.
type CorpusStore interface {
	SaveCorpus(ctx context.Context, c *models.Corpus) error
	GetCorpus(ctx context.Context, name string) (*models.Corpus, error)
	ListCorpora(ctx context.Context) ([]*models.Corpus, error)
	DeleteCorpus(ctx context.Context, name string) error
}

// HistoryStore keeps chat transcripts per session. ListTurns returns turns oldest
// first; limit > 0 keeps only the most recent limit turns.
type HistoryStore interface {
	AppendTurn(ctx context.Context, sessionID string, turn models.ConversationTurn) error
	ListTurns(ctx context.Context, sessionID string, limit int) ([]models.ConversationTurn, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Close() error
}
