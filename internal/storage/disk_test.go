package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMeasureUsage(t *testing.T) {
	dir := t.TempDir()
	indexDir := filepath.Join(dir, "indexes")
	if err := os.Mkdir(indexDir, 0755); err != nil {
		t.Fatal(err)
	}
	write := func(path, content string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write(filepath.Join(indexDir, "a.idx"), "hello")
	write(filepath.Join(indexDir, "b.idx"), "abc")
	write(filepath.Join(indexDir, "b.idx.tmp"), "ignored")
	db := filepath.Join(dir, "kotae.db")
	write(db, "12")
	write(db+"-wal", "3")

	u, err := MeasureUsage(indexDir, db)
	if err != nil {
		t.Fatal(err)
	}
	if u.IndexBytes != 8 || u.IndexFiles != 2 {
		t.Errorf("index usage = %+v, want 8 bytes in 2 files", u)
	}
	if u.DatabaseBytes != 3 {
		t.Errorf("database bytes = %d, want 3", u.DatabaseBytes)
	}
	if u.Total() != 11 {
		t.Errorf("Total = %d, want 11", u.Total())
	}
}

func TestMeasureUsage_MissingPaths(t *testing.T) {
	dir := t.TempDir()
	u, err := MeasureUsage(filepath.Join(dir, "nope"), filepath.Join(dir, "nope.db"))
	if err != nil {
		t.Fatal(err)
	}
	if u.Total() != 0 || u.IndexFiles != 0 {
		t.Errorf("usage of missing paths = %+v", u)
	}
	if u, err := MeasureUsage("", ":memory:"); err != nil || u.Total() != 0 {
		t.Errorf("MeasureUsage(empty) = %+v, %v", u, err)
	}
}
