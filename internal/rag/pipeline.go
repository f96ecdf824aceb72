// Package rag wires ingestion, retrieval, context assembly, generation and
// conversation memory into the question-answering pipeline.
package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/memory"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"go.uber.org/zap"
)

const (
	defaultTopK    = 4
	defaultWebTopK = 10
)

// Settings are the retrieval and prompting knobs of a pipeline.
type Settings struct {
	TopK           int // hits per question for document corpora
	WebTopK        int // hits per question for scraped corpora
	MaxTurns       int // most recent turns sent to the generator; 0 sends all
	DocumentPrompt *llm.Prompt
	WebPrompt      *llm.Prompt
}

func (s *Settings) applyDefaults() {
	if s.TopK <= 0 {
		s.TopK = defaultTopK
	}
	if s.WebTopK <= 0 {
		s.WebTopK = defaultWebTopK
	}
	if s.DocumentPrompt == nil {
		s.DocumentPrompt = llm.MustPrompt(llm.DocumentPrompt)
	}
	if s.WebPrompt == nil {
		s.WebPrompt = llm.MustPrompt(llm.WebPrompt)
	}
}

// Pipeline answers questions about ingested corpora.
type Pipeline struct {
	indexer   *indexer.Indexer
	store     *vector.Store
	retriever *search.Retriever
	assembler *search.Assembler
	generator llm.Generator
	sessions  *memory.Registry
	corpora   storage.CorpusStore
	history   storage.HistoryStore
	settings  Settings
	logger    *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a logger for pipeline events.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithCorpusStore lets the pipeline list, describe and delete corpus records.
func WithCorpusStore(cs storage.CorpusStore) Option {
	return func(p *Pipeline) { p.corpora = cs }
}

// WithHistoryStore persists every completed turn.
func WithHistoryStore(h storage.HistoryStore) Option {
	return func(p *Pipeline) { p.history = h }
}

// New assembles a pipeline from its components.
func New(
	idx *indexer.Indexer,
	store *vector.Store,
	retriever *search.Retriever,
	assembler *search.Assembler,
	generator llm.Generator,
	sessions *memory.Registry,
	settings Settings,
	opts ...Option,
) *Pipeline {
	settings.applyDefaults()
	p := &Pipeline{
		indexer:   idx,
		store:     store,
		retriever: retriever,
		assembler: assembler,
		generator: generator,
		sessions:  sessions,
		settings:  settings,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest builds (or rebuilds) the index of corpus from src.
func (p *Pipeline) Ingest(ctx context.Context, corpus string, src extract.Source) (*models.Corpus, error) {
	rec, err := p.indexer.IngestSource(ctx, corpus, src)
	if err != nil {
		return nil, err
	}
	p.logger.Info("corpus ingested",
		zap.String("corpus", rec.Name),
		zap.String("kind", string(rec.Kind)),
		zap.Int("segments", rec.Segments),
	)
	return rec, nil
}

// Ask answers one question about corpus. With a session id, the recent turns of that
// session are sent along and the new turn is recorded once an answer comes back; a
// failed generation leaves the session untouched.
func (p *Pipeline) Ask(ctx context.Context, corpus string, req models.AskRequest) (*models.Answer, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	idx, err := p.store.Get(corpus)
	if err != nil {
		if errors.Is(err, models.ErrIndexNotFound) {
			return nil, fmt.Errorf("corpus %s: %w", corpus, models.ErrNoDocumentIngested)
		}
		return nil, err
	}

	k, prompt := p.settings.TopK, p.settings.DocumentPrompt
	if p.kindOf(ctx, corpus) == models.SourceWeb {
		k, prompt = p.settings.WebTopK, p.settings.WebPrompt
	}
	if req.K > 0 {
		k = req.K
	}

	hits, err := p.retriever.Retrieve(ctx, req.Question, k, idx)
	if err != nil {
		return nil, err
	}
	text, err := prompt.Render(p.assembler.Assemble(hits), req.Question)
	if err != nil {
		return nil, err
	}

	var conv *memory.Conversation
	var history []models.ConversationTurn
	if req.SessionID != "" {
		conv = p.sessions.Session(ctx, req.SessionID)
		history = conv.Recent(p.settings.MaxTurns)
	}

	reply, err := p.generator.Generate(ctx, text, history)
	if err != nil {
		return nil, err
	}

	if conv != nil {
		turn := models.ConversationTurn{Question: req.Question, Answer: reply, CreatedAt: time.Now()}
		conv.Append(turn)
		if p.history != nil {
			if err := p.history.AppendTurn(ctx, req.SessionID, turn); err != nil {
				p.logger.Warn("persist turn", zap.String("session", req.SessionID), zap.Error(err))
			}
		}
	}

	took := time.Since(start)
	p.logger.Debug("question answered",
		zap.String("corpus", corpus),
		zap.String("session", req.SessionID),
		zap.Int("k", k),
		zap.Int("hits", len(hits)),
		zap.Duration("took", took),
	)
	return &models.Answer{
		Corpus:    corpus,
		SessionID: req.SessionID,
		Question:  req.Question,
		Text:      reply,
		Sources:   hits,
		QueryTime: took.Milliseconds(),
	}, nil
}

// kindOf looks up how corpus was built. Without a corpus store, or for unknown
// corpora, every corpus is treated as a document corpus.
func (p *Pipeline) kindOf(ctx context.Context, corpus string) models.SourceKind {
	if p.corpora == nil {
		return models.SourceFile
	}
	rec, err := p.corpora.GetCorpus(ctx, corpus)
	if err != nil {
		return models.SourceFile
	}
	return rec.Kind
}

// History returns the transcript of a session, oldest first. The persisted
// transcript is preferred; without a history store the in-memory one is used.
func (p *Pipeline) History(ctx context.Context, sessionID string) ([]models.ConversationTurn, error) {
	if p.history != nil {
		return p.history.ListTurns(ctx, sessionID, 0)
	}
	if conv, ok := p.sessions.Lookup(sessionID); ok {
		return conv.History(), nil
	}
	return []models.ConversationTurn{}, nil
}

// ClearSession forgets a session in memory and in the history store.
func (p *Pipeline) ClearSession(ctx context.Context, sessionID string) error {
	p.sessions.Drop(sessionID)
	if p.history != nil {
		return p.history.DeleteSession(ctx, sessionID)
	}
	return nil
}

// Corpora lists the recorded corpora.
func (p *Pipeline) Corpora(ctx context.Context) ([]*models.Corpus, error) {
	if p.corpora == nil {
		return []*models.Corpus{}, nil
	}
	list, err := p.corpora.ListCorpora(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*models.Corpus{}
	}
	return list, nil
}

// DeleteCorpus removes the index of corpus and its record.
func (p *Pipeline) DeleteCorpus(ctx context.Context, corpus string) error {
	if err := p.store.Delete(corpus); err != nil {
		return err
	}
	if p.corpora != nil {
		if err := p.corpora.DeleteCorpus(ctx, corpus); err != nil {
			return err
		}
	}
	p.logger.Info("corpus deleted", zap.String("corpus", corpus))
	return nil
}
