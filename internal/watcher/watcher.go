// Package watcher re-ingests corpus directories when their files change, using fsnotify
// with per-corpus debouncing.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 2 * time.Second

// ReindexFunc rebuilds corpus from the files under dir.
type ReindexFunc func(corpus, dir string)

// Watcher watches one directory tree per corpus. Any relevant change under a tree
// schedules a single debounced rebuild of that corpus.
type Watcher struct {
	roots       map[string]string // corpus -> directory
	extensions  []string
	onChange    ReindexFunc
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	debounceMap map[string]*time.Timer // corpus -> pending rebuild
	rootPaths   map[string][]string    // corpus -> watched directories
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	logger      *zap.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output (directory changes, file events, etc.).
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a corpus must stay quiet before it is rebuilt.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for corpora (name -> directory). extensions filters
// which files trigger a rebuild (empty = all).
func NewWatcher(corpora map[string]string, extensions []string, onChange ReindexFunc, opts ...WatcherOption) *Watcher {
	roots := make(map[string]string, len(corpora))
	for name, dir := range corpora {
		roots[name] = filepath.Clean(dir)
	}
	w := &Watcher{
		roots:       roots,
		extensions:  extensions,
		onChange:    onChange,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		rootPaths:   make(map[string][]string),
		done:        make(chan struct{}),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start starts the watcher. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	w.logger.Debug("watcher starting", zap.Int("corpora", len(w.roots)), zap.Strings("extensions", w.extensions))
	for name, root := range w.roots {
		if err := w.addRootLocked(name, root); err != nil {
			_ = w.watcher.Close()
			w.watcher = nil
			w.started = false
			w.mu.Unlock()
			return err
		}
	}
	w.mu.Unlock()
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	w.mu.Lock()
	watcher := w.watcher
	w.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	if isHidden(path) {
		return
	}
	corpus, ok := w.corpusFor(path)
	if !ok {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path), zap.String("corpus", corpus))

	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			w.watchNewDirectory(corpus, path)
			w.schedule(corpus)
			return
		}
		if w.matchExtension(path) {
			w.schedule(corpus)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		// A removed directory has no extension; rebuild to drop whatever it held.
		if w.matchExtension(path) || filepath.Ext(path) == "" {
			w.schedule(corpus)
		}
	}
}

// watchNewDirectory adds a newly created directory tree to the watch list.
func (w *Watcher) watchNewDirectory(corpus, dirPath string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return
	}
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Debug("watcher failed to add directory", zap.String("path", path), zap.Error(err))
			return nil
		}
		w.rootPaths[corpus] = append(w.rootPaths[corpus], path)
		return nil
	})
}

// corpusFor returns the corpus whose directory contains path. Nested roots resolve
// to the deepest one.
func (w *Watcher) corpusFor(path string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	clean := filepath.Clean(path)
	best, bestLen := "", -1
	for name, root := range w.roots {
		if (root == clean || inDir(root, clean)) && len(root) > bestLen {
			best, bestLen = name, len(root)
		}
	}
	return best, bestLen >= 0
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func (w *Watcher) matchExtension(path string) bool {
	return matchExtension(path, w.extensions)
}

func matchExtension(path string, extensions []string) bool {
	ext := filepath.Ext(path)
	if len(extensions) == 0 {
		return true
	}
	for _, e := range extensions {
		eNorm := strings.TrimPrefix(strings.ToLower(e), ".")
		extNorm := strings.TrimPrefix(strings.ToLower(ext), ".")
		if eNorm == extNorm {
			return true
		}
	}
	return false
}

// schedule (re)starts the debounce timer of corpus.
func (w *Watcher) schedule(corpus string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[corpus]; ok {
		t.Stop()
	}
	w.debounceMap[corpus] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, corpus)
		dir, ok := w.roots[corpus]
		w.mu.Unlock()
		if !ok {
			return
		}
		w.logger.Debug("watcher rebuilding corpus (debounced)", zap.String("corpus", corpus), zap.String("dir", dir))
		if w.onChange != nil {
			w.onChange(corpus, dir)
		}
	})
}

// AddCorpus starts watching dir for corpus and optionally rebuilds it right away.
// Re-adding a corpus with a different directory moves the watch.
func (w *Watcher) AddCorpus(corpus, dir string, syncExisting bool) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	if w.watcher == nil {
		w.mu.Unlock()
		return nil
	}
	if cur, ok := w.roots[corpus]; ok {
		if cur == abs {
			w.mu.Unlock()
			return nil
		}
		w.removeRootLocked(corpus)
	}
	if err := w.addRootLocked(corpus, abs); err != nil {
		w.mu.Unlock()
		return err
	}
	w.roots[corpus] = abs
	w.mu.Unlock()

	w.logger.Debug("watcher corpus added", zap.String("corpus", corpus), zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if syncExisting && w.onChange != nil {
		go w.onChange(corpus, abs)
	}
	return nil
}

func (w *Watcher) addRootLocked(corpus, root string) error {
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(root, 0755); err != nil {
				return err
			}
		} else {
			return err
		}
	}
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return err
	}
	w.rootPaths[corpus] = paths
	return nil
}

func (w *Watcher) removeRootLocked(corpus string) {
	for _, p := range w.rootPaths[corpus] {
		_ = w.watcher.Remove(p)
	}
	delete(w.rootPaths, corpus)
	if t, ok := w.debounceMap[corpus]; ok {
		t.Stop()
		delete(w.debounceMap, corpus)
	}
	delete(w.roots, corpus)
}

// RemoveCorpus stops watching the directory of corpus. The index is left as is.
func (w *Watcher) RemoveCorpus(corpus string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return
	}
	if _, ok := w.roots[corpus]; !ok {
		return
	}
	w.removeRootLocked(corpus)
	w.logger.Debug("watcher corpus removed", zap.String("corpus", corpus))
}

// Corpora returns the watched corpus names, sorted.
func (w *Watcher) Corpora() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, 0, len(w.roots))
	for name := range w.roots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Directory returns the directory watched for corpus.
func (w *Watcher) Directory(corpus string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	dir, ok := w.roots[corpus]
	return dir, ok
}

// SyncAll rebuilds the watched corpora for which stale reports true (all of them when
// stale is nil), in name order. Call it after Start to pick up files that changed
// while nothing was watching.
func (w *Watcher) SyncAll(stale func(corpus, dir string) bool) {
	for _, name := range w.Corpora() {
		dir, ok := w.Directory(name)
		if !ok || w.onChange == nil {
			continue
		}
		if stale != nil && !stale(name, dir) {
			w.logger.Debug("watcher corpus up to date", zap.String("corpus", name))
			continue
		}
		w.logger.Debug("watcher syncing corpus", zap.String("corpus", name), zap.String("dir", dir))
		w.onChange(name, dir)
	}
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for corpus, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, corpus)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
