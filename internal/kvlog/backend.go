package kvlog

import (
	"fmt"
	"os"
	"path/filepath"
)

// Backend kinds accepted by OpenBackend.
const (
	KindMemory = "memory"
	KindFile   = "file"
	KindDuckDB = "duckdb"
)

// DuckFileName is the database file created inside a log directory.
const DuckFileName = "log.duckdb"

// OpenBackend creates the backend of the given kind rooted at dir.
func OpenBackend(kind, dir string, maxBytes int64) (Backend, error) {
	switch kind {
	case KindMemory, "":
		return NewMemoryBackend(maxBytes), nil
	case KindFile:
		return NewFileBackend(dir, maxBytes)
	case KindDuckDB:
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		return NewDuckBackend(filepath.Join(dir, DuckFileName))
	default:
		return nil, fmt.Errorf("unknown log backend: %s", kind)
	}
}
