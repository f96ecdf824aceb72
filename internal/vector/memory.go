package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/hyperjump/kotae/internal/models"
)

// snapshotMagic prefixes every index file so foreign files are rejected as corrupt.
var snapshotMagic = [8]byte{'K', 'O', 'T', 'A', 'E', 'I', 'D', 'X'}

const snapshotVersion uint32 = 1

// MemoryIndex is an in-memory vector index using brute-force search. It is immutable
// once built or loaded, so concurrent Search calls need no locking.
type MemoryIndex struct {
	dimensions int
	metric     Metric
	entries    []models.IndexEntry
	// vectors holds the vectors actually compared: normalized copies for cosine,
	// the entry vectors themselves for inner product.
	vectors [][]float32
}

// Build creates an index over entries. Every vector must have the given dimension.
// Entry order is kept and used to break score ties.
func Build(dimensions int, metric Metric, entries []models.IndexEntry) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if metric == "" {
		metric = MetricCosine
	}
	m := &MemoryIndex{
		dimensions: dimensions,
		metric:     metric,
		entries:    make([]models.IndexEntry, 0, len(entries)),
		vectors:    make([][]float32, 0, len(entries)),
	}
	for i, e := range entries {
		if len(e.Vector) != dimensions {
			return nil, fmt.Errorf("entry %d: vector dimension mismatch: got %d, expected %d", i, len(e.Vector), dimensions)
		}
		m.add(e)
	}
	return m, nil
}

func (m *MemoryIndex) add(e models.IndexEntry) {
	vec := make([]float32, len(e.Vector))
	copy(vec, e.Vector)
	var meta map[string]string
	if len(e.Metadata) > 0 {
		meta = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			meta[k] = v
		}
	}
	m.entries = append(m.entries, models.IndexEntry{Vector: vec, Text: e.Text, Metadata: meta})
	if m.metric == MetricCosine {
		m.vectors = append(m.vectors, normalized(vec))
	} else {
		m.vectors = append(m.vectors, vec)
	}
}

// Metric returns the similarity metric the index was built with.
func (m *MemoryIndex) Metric() Metric {
	return m.metric
}

// Dimensions returns the vector dimension.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Size returns the number of entries in the index.
func (m *MemoryIndex) Size() int {
	return len(m.entries)
}

// Search returns the k entries most similar to query, highest score first. Equal scores
// keep insertion order. k larger than the index is clamped; k <= 0 returns nothing.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]models.Hit, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	if k <= 0 || len(m.entries) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := query
	if m.metric == MetricCosine {
		q = normalized(query)
	}
	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(m.vectors))
	for i, vec := range m.vectors {
		scores[i] = scored{idx: i, score: InnerProduct(q, vec)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if k > len(scores) {
		k = len(scores)
	}
	hits := make([]models.Hit, k)
	for i := 0; i < k; i++ {
		e := m.entries[scores[i].idx]
		hits[i] = models.Hit{Text: e.Text, Score: scores[i].score, Metadata: e.Metadata}
	}
	return hits, nil
}

// Save writes the index to path, replacing any previous snapshot. The file is written
// next to path and renamed into place so readers never see a partial snapshot.
//
// Format (little endian): magic (8), version (4), metric length (4) + bytes,
// dimension (4), count (4), then per entry: text length (4) + bytes,
// metadata JSON length (4) + bytes, vector (dimension*4 bytes).
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return fmt.Errorf("index path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer os.Remove(tmp.Name())
	w := bufio.NewWriter(tmp)
	if err := m.encode(w); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("flush index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace index file: %w", err)
	}
	return nil
}

func (m *MemoryIndex) encode(w io.Writer) error {
	if _, err := w.Write(snapshotMagic[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, snapshotVersion); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	if err := writeBytes(w, []byte(m.metric)); err != nil {
		return fmt.Errorf("write metric: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.entries))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, e := range m.entries {
		if err := writeBytes(w, []byte(e.Text)); err != nil {
			return fmt.Errorf("write entry %d text: %w", i, err)
		}
		var meta []byte
		if len(e.Metadata) > 0 {
			b, err := json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("marshal entry %d metadata: %w", i, err)
			}
			meta = b
		}
		if err := writeBytes(w, meta); err != nil {
			return fmt.Errorf("write entry %d metadata: %w", i, err)
		}
		if _, err := w.Write(float32SliceToBytes(e.Vector)); err != nil {
			return fmt.Errorf("write entry %d vector: %w", i, err)
		}
	}
	return nil
}

// Load reads the snapshot at path. It fails with models.ErrIndexNotFound when the file
// does not exist and models.ErrIndexCorrupt when the file is unreadable or was built
// with a different dimension than dimensions.
func Load(path string, dimensions int) (*MemoryIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", models.ErrIndexNotFound, path)
		}
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat index file: %w", err)
	}
	m, err := decode(bufio.NewReader(f), dimensions, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrIndexCorrupt, path, err)
	}
	return m, nil
}

// decode reads a snapshot of size bytes. The entry count is checked against size
// before anything is allocated for it.
func decode(r io.Reader, dimensions int, size int64) (*MemoryIndex, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if magic != snapshotMagic {
		return nil, fmt.Errorf("not an index snapshot")
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", version)
	}
	metricBytes, err := readBytes(r)
	if err != nil {
		return nil, fmt.Errorf("read metric: %w", err)
	}
	metric, err := ParseMetric(string(metricBytes))
	if err != nil {
		return nil, err
	}
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != dimensions {
		return nil, fmt.Errorf("dimension mismatch: file has %d, embedder produces %d", dim, dimensions)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	// Each entry holds at least two length prefixes and its vector.
	if minEntry := int64(8 + dimensions*4); int64(n)*minEntry > size {
		return nil, fmt.Errorf("entry count %d does not fit in %d bytes", n, size)
	}
	m := &MemoryIndex{
		dimensions: dimensions,
		metric:     metric,
		entries:    make([]models.IndexEntry, 0, n),
		vectors:    make([][]float32, 0, n),
	}
	buf := make([]byte, dimensions*4)
	for i := uint32(0); i < n; i++ {
		text, err := readBytes(r)
		if err != nil {
			return nil, fmt.Errorf("read entry %d text: %w", i, err)
		}
		metaBytes, err := readBytes(r)
		if err != nil {
			return nil, fmt.Errorf("read entry %d metadata: %w", i, err)
		}
		var meta map[string]string
		if len(metaBytes) > 0 {
			if err := json.Unmarshal(metaBytes, &meta); err != nil {
				return nil, fmt.Errorf("decode entry %d metadata: %w", i, err)
			}
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read entry %d vector: %w", i, err)
		}
		m.add(models.IndexEntry{Vector: bytesToFloat32Slice(buf), Text: string(text), Metadata: meta})
	}
	return m, nil
}

// maxFieldLen bounds a single length-prefixed field so a corrupt length cannot
// trigger a huge allocation.
const maxFieldLen = 64 << 20

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n > maxFieldLen {
		return nil, fmt.Errorf("field length %d exceeds limit", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
