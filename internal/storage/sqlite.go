package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
)

// SQLiteStorage implements CorpusStore and HistoryStore using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS corpora (
		name TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		sources TEXT,
		segments INTEGER NOT NULL,
		dimensions INTEGER NOT NULL,
		index_path TEXT NOT NULL,
		ingested_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chat_turns_session ON chat_turns(session_id, id);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveCorpus inserts or replaces the record for c.Name.
func (s *SQLiteStorage) SaveCorpus(ctx context.Context, c *models.Corpus) error {
	sourcesJSON, err := json.Marshal(c.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}
	if c.IngestedAt.IsZero() {
		c.IngestedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO corpora (name, kind, sources, segments, dimensions, index_path, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   kind = excluded.kind, sources = excluded.sources, segments = excluded.segments,
		   dimensions = excluded.dimensions, index_path = excluded.index_path,
		   ingested_at = excluded.ingested_at`,
		c.Name, string(c.Kind), string(sourcesJSON), c.Segments, c.Dimensions, c.IndexPath, c.IngestedAt,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCorpus(row rowScanner) (*models.Corpus, error) {
	var c models.Corpus
	var kind, sourcesJSON string
	if err := row.Scan(&c.Name, &kind, &sourcesJSON, &c.Segments, &c.Dimensions, &c.IndexPath, &c.IngestedAt); err != nil {
		return nil, err
	}
	c.Kind = models.SourceKind(kind)
	if sourcesJSON != "" {
		if err := json.Unmarshal([]byte(sourcesJSON), &c.Sources); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
		}
	}
	return &c, nil
}

// GetCorpus returns the record for name, or ErrNotFound.
func (s *SQLiteStorage) GetCorpus(ctx context.Context, name string) (*models.Corpus, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, kind, sources, segments, dimensions, index_path, ingested_at
		 FROM corpora WHERE name = ?`, name,
	)
	c, err := scanCorpus(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("corpus %s: %w", name, ErrNotFound)
	}
	return c, err
}

// ListCorpora returns all corpora, most recently ingested first.
func (s *SQLiteStorage) ListCorpora(ctx context.Context) ([]*models.Corpus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, kind, sources, segments, dimensions, index_path, ingested_at
		 FROM corpora ORDER BY ingested_at DESC, name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Corpus
	for rows.Next() {
		c, err := scanCorpus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCorpus removes the record for name. Deleting a missing corpus is not an error.
func (s *SQLiteStorage) DeleteCorpus(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM corpora WHERE name = ?`, name)
	return err
}

// AppendTurn stores one completed turn for sessionID.
func (s *SQLiteStorage) AppendTurn(ctx context.Context, sessionID string, turn models.ConversationTurn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_turns (session_id, question, answer, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, turn.Question, turn.Answer, turn.CreatedAt,
	)
	return err
}

// ListTurns returns the turns of sessionID oldest first.
func (s *SQLiteStorage) ListTurns(ctx context.Context, sessionID string, limit int) ([]models.ConversationTurn, error) {
	query := `SELECT question, answer, created_at FROM chat_turns WHERE session_id = ? ORDER BY id`
	args := []any{sessionID}
	if limit > 0 {
		query = `SELECT question, answer, created_at FROM (
			SELECT id, question, answer, created_at FROM chat_turns
			WHERE session_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns := []models.ConversationTurn{}
	for rows.Next() {
		var t models.ConversationTurn
		if err := rows.Scan(&t.Question, &t.Answer, &t.CreatedAt); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// DeleteSession removes every turn of sessionID.
func (s *SQLiteStorage) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chat_turns WHERE session_id = ?`, sessionID)
	return err
}

// CountTurns returns the total number of stored turns.
func (s *SQLiteStorage) CountTurns(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_turns`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
