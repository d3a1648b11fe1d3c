package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/concept-importer/backend/internal/kvlog"
)

// shortID safely truncates an ID for logging (handles short IDs gracefully)
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// sessionDirPrefix marks a directory under the data dir as a session log.
const sessionDirPrefix = "session_"

// LogStore keeps one notification log directory per session id, so a
// returning session finds the history it wrote before a restart.
type LogStore struct {
	dataDir    string
	kind       string
	quotaBytes int64
	mu         sync.RWMutex
	// known tracks session ids with a log directory (id -> dir)
	known map[string]string
}

// NewLogStore creates a log store of the given backend kind under dataDir.
// A memory store keeps nothing on disk.
func NewLogStore(dataDir, kind string, quotaBytes int64) *LogStore {
	if kind == "" {
		kind = kvlog.KindMemory
	}

	ls := &LogStore{
		dataDir:    dataDir,
		kind:       kind,
		quotaBytes: quotaBytes,
		known:      make(map[string]string),
	}
	if ls.persistent() {
		os.MkdirAll(dataDir, 0755)
		ls.scanExisting()
	}
	return ls
}

func (ls *LogStore) persistent() bool {
	return ls.kind != kvlog.KindMemory
}

// Kind is the backend kind new logs are opened with.
func (ls *LogStore) Kind() string {
	return ls.kind
}

// scanExisting indexes the session directories left by earlier runs.
func (ls *LogStore) scanExisting() {
	entries, err := os.ReadDir(ls.dataDir)
	if err != nil {
		fmt.Printf("[LogStore] Warning: failed to scan data directory: %v\n", err)
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || len(name) <= len(sessionDirPrefix) || name[:len(sessionDirPrefix)] != sessionDirPrefix {
			continue
		}
		id := name[len(sessionDirPrefix):]
		if ValidateID(id) != nil {
			continue
		}
		ls.known[id] = filepath.Join(ls.dataDir, name)
	}

	fmt.Printf("[LogStore] Scanned %d existing session logs\n", len(ls.known))
}

// Dir returns the directory holding a session's log.
func (ls *LogStore) Dir(id string) string {
	return filepath.Join(ls.dataDir, sessionDirPrefix+id)
}

// Exists reports whether a session has a log on disk.
func (ls *LogStore) Exists(id string) bool {
	ls.mu.RLock()
	_, ok := ls.known[id]
	ls.mu.RUnlock()
	if ok {
		return true
	}
	if !ls.persistent() {
		return false
	}

	if _, err := os.Stat(ls.Dir(id)); err == nil {
		ls.mu.Lock()
		ls.known[id] = ls.Dir(id)
		ls.mu.Unlock()
		return true
	}
	return false
}

// Open opens, or creates, a session's log.
func (ls *LogStore) Open(id string) (*kvlog.Log, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	dir := ls.Dir(id)
	backend, err := kvlog.OpenBackend(ls.kind, dir, ls.quotaBytes)
	if err != nil {
		return nil, fmt.Errorf("opening log for session %s: %w", shortID(id), err)
	}

	if ls.persistent() {
		ls.mu.Lock()
		ls.known[id] = dir
		ls.mu.Unlock()
	}
	return kvlog.Open(backend), nil
}

// OpenReadOnly opens an existing session log for inspection. The log is
// never written, not even to stamp its store version.
func (ls *LogStore) OpenReadOnly(id string) (*kvlog.Log, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if !ls.Exists(id) {
		return nil, fmt.Errorf("session %s: %w", shortID(id), ErrNotFound)
	}

	backend, err := kvlog.OpenBackend(ls.kind, ls.Dir(id), ls.quotaBytes)
	if err != nil {
		return nil, fmt.Errorf("opening log for session %s: %w", shortID(id), err)
	}
	return kvlog.OpenReadOnly(backend), nil
}

// Delete removes a session's log from disk.
func (ls *LogStore) Delete(id string) error {
	ls.mu.Lock()
	delete(ls.known, id)
	ls.mu.Unlock()

	if !ls.persistent() {
		return nil
	}
	if err := os.RemoveAll(ls.Dir(id)); err != nil {
		return fmt.Errorf("failed to delete session log: %w", err)
	}

	fmt.Printf("[LogStore] Deleted log for session %s\n", shortID(id))
	return nil
}

// List returns every session id with a log, sorted.
func (ls *LogStore) List() []string {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	ids := make([]string, 0, len(ls.known))
	for id := range ls.known {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats returns statistics about the stored logs.
func (ls *LogStore) Stats() map[string]interface{} {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	var totalSize int64
	for _, dir := range ls.known {
		filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
			if err == nil && !info.IsDir() {
				totalSize += info.Size()
			}
			return nil
		})
	}

	return map[string]interface{}{
		"backend":      ls.kind,
		"sessionCount": len(ls.known),
		"totalSize":    totalSize,
		"dataDir":      ls.dataDir,
	}
}
