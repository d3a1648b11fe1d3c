package kvlog

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const fileExt = ".json"

// FileBackend stores each key as a file in a directory.
type FileBackend struct {
	mu       sync.RWMutex
	dir      string
	sizes    map[string]int64
	maxBytes int64
}

// NewFileBackend creates the directory if needed and indexes existing keys.
// maxBytes <= 0 means unlimited.
func NewFileBackend(dir string, maxBytes int64) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	b := &FileBackend{
		dir:      dir,
		sizes:    make(map[string]int64),
		maxBytes: maxBytes,
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading log directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(e.Name(), fileExt))
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		b.sizes[key] = info.Size()
	}

	return b, nil
}

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.dir, url.PathEscape(key)+fileExt)
}

func (b *FileBackend) total() int64 {
	var n int64
	for _, s := range b.sizes {
		n += s
	}
	return n
}

func (b *FileBackend) Get(key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, err := os.ReadFile(b.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, true, nil
}

func (b *FileBackend) Set(key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxBytes > 0 && b.total()-b.sizes[key]+int64(len(value)) > b.maxBytes {
		return ErrQuotaExceeded
	}

	path := b.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", key, err)
	}

	b.sizes[key] = int64(len(value))
	return nil
}

func (b *FileBackend) Keys() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.sizes))
	for k := range b.sizes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *FileBackend) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key := range b.sizes {
		if err := os.Remove(b.path(key)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", key, err)
		}
	}
	b.sizes = make(map[string]int64)
	return nil
}

func (b *FileBackend) Close() error {
	return nil
}
