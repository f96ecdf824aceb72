package vector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

const snapshotExt = ".idx"

var corpusNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ErrInvalidName is returned for corpus names that cannot double as file names.
var ErrInvalidName = errors.New("invalid corpus name")

// ValidateName reports whether name can be used as a corpus (and file) name.
func ValidateName(name string) error {
	if !corpusNameRe.MatchString(name) {
		return fmt.Errorf("%w %q: use letters, digits, '.', '_' or '-' (max 64)", ErrInvalidName, name)
	}
	return nil
}

// Store keeps one index per corpus name, persisted as <dir>/<name>.idx. Indices are
// loaded lazily and cached; Build replaces both the cached and the persisted copy.
type Store struct {
	dir        string
	dimensions int
	metric     Metric
	mu         sync.RWMutex
	indexes    map[string]*MemoryIndex
	logger     *zap.Logger // optional
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets a logger for debug output (index built, loaded, dropped).
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a store rooted at dir for vectors of the given dimension.
func NewStore(dir string, dimensions int, metric Metric, opts ...StoreOption) (*Store, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if dir == "" {
		return nil, fmt.Errorf("index directory is empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	s := &Store{
		dir:        dir,
		dimensions: dimensions,
		metric:     metric,
		indexes:    make(map[string]*MemoryIndex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dimensions returns the vector dimension every index in the store uses.
func (s *Store) Dimensions() int {
	return s.dimensions
}

// Path returns the snapshot location for name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+snapshotExt)
}

// Build creates a fresh index for name from entries, saves it, and replaces any
// previous index with that name.
func (s *Store) Build(ctx context.Context, name string, entries []models.IndexEntry) (*MemoryIndex, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	idx, err := Build(s.dimensions, s.metric, entries)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := idx.Save(s.Path(name)); err != nil {
		return nil, fmt.Errorf("save index %s: %w", name, err)
	}
	s.indexes[name] = idx
	if s.logger != nil {
		s.logger.Debug("vector index built", zap.String("corpus", name), zap.Int("entries", idx.Size()))
	}
	return idx, nil
}

// Get returns the index for name, loading it from disk on first use. It fails with
// models.ErrIndexNotFound when the corpus was never built.
func (s *Store) Get(name string) (*MemoryIndex, error) {
	if err := ValidateName(name); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIndexNotFound, err)
	}
	s.mu.RLock()
	idx, ok := s.indexes[name]
	s.mu.RUnlock()
	if ok {
		return idx, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.indexes[name]; ok {
		return idx, nil
	}
	idx, err := Load(s.Path(name), s.dimensions)
	if err != nil {
		return nil, err
	}
	s.indexes[name] = idx
	if s.logger != nil {
		s.logger.Debug("vector index loaded", zap.String("corpus", name), zap.Int("entries", idx.Size()))
	}
	return idx, nil
}

// Delete drops the cached index and its snapshot. Deleting a missing corpus is not an error.
func (s *Store) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexes, name)
	if err := os.Remove(s.Path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove index %s: %w", name, err)
	}
	if s.logger != nil {
		s.logger.Debug("vector index dropped", zap.String("corpus", name))
	}
	return nil
}
