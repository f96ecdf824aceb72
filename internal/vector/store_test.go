package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func TestStore_BuildGetReplace(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, err := NewStore(dir, 2, MetricCosine)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("docs"); !errors.Is(err, models.ErrIndexNotFound) {
		t.Fatalf("Get before build: %v", err)
	}
	if _, err := s.Build(ctx, "docs", entries([][]float32{{1, 0}, {0, 1}}, "a", "b")); err != nil {
		t.Fatal(err)
	}
	idx, err := s.Get("docs")
	if err != nil || idx.Size() != 2 {
		t.Fatalf("Get: size=%v err=%v", idx, err)
	}
	if _, err := s.Build(ctx, "docs", entries([][]float32{{1, 1}}, "c")); err != nil {
		t.Fatal(err)
	}
	idx, _ = s.Get("docs")
	if idx.Size() != 1 {
		t.Errorf("rebuild should replace the index, size=%d", idx.Size())
	}

	// A fresh store over the same dir reloads from disk.
	s2, _ := NewStore(dir, 2, MetricCosine)
	idx2, err := s2.Get("docs")
	if err != nil || idx2.Size() != 1 {
		t.Fatalf("reload: idx=%v err=%v", idx2, err)
	}
}

func TestStore_IsolatesCorpora(t *testing.T) {
	ctx := context.Background()
	s, _ := NewStore(t.TempDir(), 2, MetricCosine)
	_, _ = s.Build(ctx, "one", entries([][]float32{{1, 0}}, "from one"))
	_, _ = s.Build(ctx, "two", entries([][]float32{{1, 0}}, "from two"))
	one, _ := s.Get("one")
	hits, _ := one.Search(ctx, []float32{1, 0}, 5)
	if len(hits) != 1 || hits[0].Text != "from one" {
		t.Errorf("corpus one hits = %+v", hits)
	}
}

func TestStore_DimensionChangeIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewStore(dir, 2, MetricCosine)
	if _, err := s.Build(context.Background(), "docs", entries([][]float32{{1, 0}}, "a")); err != nil {
		t.Fatal(err)
	}
	s3, _ := NewStore(dir, 3, MetricCosine)
	if _, err := s3.Get("docs"); !errors.Is(err, models.ErrIndexCorrupt) {
		t.Errorf("got %v, want ErrIndexCorrupt", err)
	}
}

func TestStore_Delete(t *testing.T) {
	s, _ := NewStore(t.TempDir(), 2, MetricCosine)
	_, _ = s.Build(context.Background(), "docs", entries([][]float32{{1, 0}}, "a"))
	if err := s.Delete("docs"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("docs"); !errors.Is(err, models.ErrIndexNotFound) {
		t.Errorf("after delete: %v", err)
	}
	if err := s.Delete("docs"); err != nil {
		t.Errorf("second delete should be a no-op: %v", err)
	}
}

func TestValidateName(t *testing.T) {
	for _, ok := range []string{"docs", "site_1", "a.b-c"} {
		if err := ValidateName(ok); err != nil {
			t.Errorf("%q: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "../etc", "a/b", ".hidden", "has space"} {
		if err := ValidateName(bad); !errors.Is(err, ErrInvalidName) {
			t.Errorf("%q should be rejected, got %v", bad, err)
		}
	}
}
