// Package kvlog is a small durable key-value log holding JSON-encoded lists
// under derived keys ("name.key"). It stands in for per-origin browser
// storage: reads never fail and writes are fire-and-forget.
package kvlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// StoreVersion is bumped whenever the persisted layout changes incompatibly.
const StoreVersion = "1"

// StoreVersionKey holds the version of the data currently in a backend.
const StoreVersionKey = "currentStoreVersion"

var (
	// ErrQuotaExceeded is returned by backends that enforce a size limit.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	ErrReadOnly      = errors.New("log is read-only")
)

// Backend is the raw storage a Log writes to.
type Backend interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Keys() ([]string, error)
	Clear() error
	Close() error
}

// Log reads and writes JSON values through a Backend.
type Log struct {
	mu       sync.Mutex
	backend  Backend
	readOnly bool
	// stale is set on a read-only log whose data has another store version;
	// every read then returns the default.
	stale bool
}

// Open wraps a backend and discards its contents when they were written by
// a different store version.
func Open(backend Backend) *Log {
	l := &Log{backend: backend}
	l.checkVersion()
	return l
}

// OpenReadOnly wraps a backend for inspection. Nothing is ever written: a
// version mismatch hides the data instead of clearing it.
func OpenReadOnly(backend Backend) *Log {
	l := &Log{backend: backend, readOnly: true}
	raw, ok, err := backend.Get(StoreVersionKey)
	if err != nil || !ok || string(raw) != StoreVersion {
		fmt.Printf("[KVLog] store version %q does not match %q, ignoring contents\n", string(raw), StoreVersion)
		l.stale = true
	}
	return l
}

// ReadOnly reports whether writes to the log are dropped.
func (l *Log) ReadOnly() bool {
	return l != nil && l.readOnly
}

func (l *Log) checkVersion() {
	raw, ok, err := l.backend.Get(StoreVersionKey)
	if err != nil {
		fmt.Printf("[KVLog] version check failed: %v\n", err)
		return
	}
	if ok && string(raw) == StoreVersion {
		return
	}

	keys, err := l.backend.Keys()
	if err == nil && len(keys) > 0 {
		fmt.Printf("[KVLog] store version %q does not match %q, clearing %d keys\n", string(raw), StoreVersion, len(keys))
		if err := l.backend.Clear(); err != nil {
			fmt.Printf("[KVLog] clear failed: %v\n", err)
		}
	}
	if err := l.backend.Set(StoreVersionKey, []byte(StoreVersion)); err != nil {
		fmt.Printf("[KVLog] writing store version failed: %v\n", err)
	}
}

// DeriveKey returns the storage key for a logical list.
func DeriveKey(name, key string) string {
	return name + "." + key
}

// ReadRaw returns the stored JSON for name.key, or nil when absent or
// unreadable.
func (l *Log) ReadRaw(name, key string) json.RawMessage {
	if l == nil || l.backend == nil || l.stale {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	raw, ok, err := l.backend.Get(DeriveKey(name, key))
	if err != nil || !ok {
		return nil
	}
	return raw
}

// Write stores value under name.key. Marshal and backend failures are
// swallowed; the caller is never blocked or told.
func (l *Log) Write(name, key string, value interface{}) {
	if l == nil || l.backend == nil || l.readOnly {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		fmt.Printf("[KVLog] dropping write to %s: %v\n", DeriveKey(name, key), err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.backend.Set(DeriveKey(name, key), data); err != nil {
		fmt.Printf("[KVLog] dropping write to %s: %v\n", DeriveKey(name, key), err)
	}
}

// Clear removes every key, including the store version.
func (l *Log) Clear() error {
	if l.readOnly {
		return ErrReadOnly
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backend.Clear()
}

// Close releases the backend.
func (l *Log) Close() error {
	if l == nil || l.backend == nil {
		return nil
	}
	return l.backend.Close()
}

// Read decodes name.key into a T, returning def unchanged when the key is
// missing, undecodable, or the log is unavailable.
func Read[T any](l *Log, name, key string, def T) T {
	raw := l.ReadRaw(name, key)
	if raw == nil {
		return def
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return def
	}
	return out
}
