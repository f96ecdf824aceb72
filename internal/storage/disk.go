package storage

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Usage is the on-disk footprint of a deployment.
type Usage struct {
	IndexBytes    int64 `json:"index_bytes"`
	IndexFiles    int   `json:"index_files"`
	DatabaseBytes int64 `json:"database_bytes"`
}

// Total returns index plus database bytes.
func (u Usage) Total() int64 { return u.IndexBytes + u.DatabaseBytes }

// MeasureUsage sums the index snapshots (*.idx) under indexDir and the SQLite
// database at dbPath, including its -wal and -shm companions. Missing paths count
// as zero.
func MeasureUsage(indexDir, dbPath string) (Usage, error) {
	var u Usage
	if indexDir != "" {
		err := filepath.WalkDir(indexDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return fs.SkipAll
				}
				return err
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), ".idx") {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			u.IndexBytes += info.Size()
			u.IndexFiles++
			return nil
		})
		if err != nil {
			return Usage{}, err
		}
	}
	if dbPath != "" && dbPath != ":memory:" {
		for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
			info, err := os.Stat(p)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return Usage{}, err
			}
			u.DatabaseBytes += info.Size()
		}
	}
	return u, nil
}
