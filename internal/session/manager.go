// Package session keeps one notification history per browser session. Each
// session owns its log, its tracker and its importer.
package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/concept-importer/backend/internal/importer"
	"github.com/concept-importer/backend/internal/kvlog"
	"github.com/concept-importer/backend/internal/models"
	"github.com/concept-importer/backend/internal/tracker"
	"github.com/google/uuid"
)

// DefaultID is used when a request carries no session id.
const DefaultID = "default"

// MaxSessions limits concurrent sessions to prevent memory exhaustion
const MaxSessions = 100

// SessionMaxAge is how long an idle session stays loaded
const SessionMaxAge = 30 * time.Minute

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

var (
	ErrInvalidID   = errors.New("invalid session id")
	ErrTooMany     = errors.New("too many active sessions")
	ErrNotFound    = errors.New("session not found")
	ErrBusy        = errors.New("session has imports running")
	validIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// ValidateID checks that id is safe to use as a directory name.
func ValidateID(id string) error {
	if !validIDPattern.MatchString(id) {
		return fmt.Errorf("%q: %w", id, ErrInvalidID)
	}
	return nil
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.New().String()
}

// CompletionFunc is told about every settled import of every session.
type CompletionFunc func(sessionID string, req importer.Request, slot models.Slot)

// Options configures a Manager.
type Options struct {
	// MaxConcurrent caps in-flight imports per session.
	MaxConcurrent int
	// StaleAfter fails restored loading slots older than this. Zero keeps
	// them loading.
	StaleAfter time.Duration
	OnComplete CompletionFunc
}

// Manager handles active sessions.
type Manager struct {
	sessions map[string]*SessionState
	mu       sync.RWMutex
	api      importer.ConceptAPI
	logs     *LogStore
	opts     Options
}

// SessionState holds everything one session owns.
type SessionState struct {
	ID           string
	Log          *kvlog.Log
	Tracker      *tracker.Tracker
	Importer     *importer.Importer
	CreatedAt    time.Time
	LastAccessed time.Time // Last time the session was accessed (for keep-alive)
}

// NewManager creates a session manager importing through api.
func NewManager(api importer.ConceptAPI, logs *LogStore, opts Options) *Manager {
	if logs == nil {
		logs = NewLogStore("", kvlog.KindMemory, 0)
	}
	return &Manager{
		sessions: make(map[string]*SessionState),
		api:      api,
		logs:     logs,
		opts:     opts,
	}
}

// Logs returns the store session logs live in.
func (m *Manager) Logs() *LogStore {
	return m.logs
}

// Get returns a session, loading it from its log or creating it on first
// use.
func (m *Manager) Get(id string) (*SessionState, error) {
	if id == "" {
		id = DefaultID
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.sessions[id]; ok {
		state.LastAccessed = time.Now()
		return state, nil
	}

	if len(m.sessions) >= MaxSessions {
		m.evictIdleLocked()
		if len(m.sessions) >= MaxSessions {
			return nil, ErrTooMany
		}
	}

	state, err := m.load(id)
	if err != nil {
		return nil, err
	}
	m.sessions[id] = state
	return state, nil
}

func (m *Manager) load(id string) (*SessionState, error) {
	log, err := m.logs.Open(id)
	if err != nil {
		return nil, err
	}

	tr := tracker.New(log)
	restored := tr.Hydrate()
	if m.opts.StaleAfter > 0 {
		if n := tr.MarkStale(m.opts.StaleAfter); n > 0 {
			fmt.Printf("[Session %s] Marked %d stale imports as failed\n", shortID(id), n)
		}
	}

	imp := importer.New(m.api, tr,
		importer.WithMaxConcurrent(m.opts.MaxConcurrent),
		importer.WithCompletion(func(req importer.Request, slot models.Slot) {
			if m.opts.OnComplete != nil {
				m.opts.OnComplete(id, req, slot)
			}
		}),
	)

	now := time.Now()
	fmt.Printf("[Session %s] Loaded (%d slots restored)\n", shortID(id), restored)
	return &SessionState{
		ID:           id,
		Log:          log,
		Tracker:      tr,
		Importer:     imp,
		CreatedAt:    now,
		LastAccessed: now,
	}, nil
}

// Lookup returns a loaded session without creating one.
func (m *Manager) Lookup(id string) (*SessionState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	return state, ok
}

// TouchSession updates the LastAccessed timestamp for a session.
// This should be called whenever a session is actively being used
// to prevent it from being cleaned up.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

// Count returns the number of loaded sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// InFlight counts loading imports across all sessions.
func (m *Manager) InFlight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, state := range m.sessions {
		n += state.Tracker.InFlight()
	}
	return n
}

// evictIdleLocked unloads the least recently used idle session.
func (m *Manager) evictIdleLocked() {
	var oldest *SessionState
	for _, state := range m.sessions {
		if state.Tracker.InFlight() > 0 {
			continue
		}
		if oldest == nil || state.LastAccessed.Before(oldest.LastAccessed) {
			oldest = state
		}
	}
	if oldest == nil {
		return
	}
	m.unloadLocked(oldest)
	fmt.Printf("[Manager] Unloaded idle session %s to free memory\n", shortID(oldest.ID))
}

func (m *Manager) unloadLocked(state *SessionState) {
	state.Importer.Wait()
	if err := state.Log.Close(); err != nil {
		fmt.Printf("[Manager] Closing log of session %s: %v\n", shortID(state.ID), err)
	}
	delete(m.sessions, state.ID)
}

// CleanupOldSessions unloads sessions idle for longer than maxAge, but
// keeps sessions accessed within SessionKeepAliveWindow and sessions with
// imports still running. Their logs stay on disk.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	keepAliveCutoff := time.Now().Add(-SessionKeepAliveWindow)

	removed := 0
	for _, state := range m.sessions {
		if state.Tracker.InFlight() > 0 {
			continue
		}
		if state.LastAccessed.After(keepAliveCutoff) {
			continue
		}
		if state.LastAccessed.Before(cutoff) {
			idle := time.Since(state.LastAccessed).Round(time.Second)
			m.unloadLocked(state)
			removed++
			fmt.Printf("[Manager] Cleaned up aged session %s (last accessed: %s ago)\n", shortID(state.ID), idle)
		}
	}
	return removed
}

// Delete unloads a session and removes its log.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	state, loaded := m.sessions[id]
	if !loaded && !m.logs.Exists(id) {
		m.mu.Unlock()
		return fmt.Errorf("session %s: %w", shortID(id), ErrNotFound)
	}
	if loaded {
		if state.Tracker.InFlight() > 0 {
			m.mu.Unlock()
			return fmt.Errorf("session %s: %w", shortID(id), ErrBusy)
		}
		m.unloadLocked(state)
	}
	m.mu.Unlock()

	return m.logs.Delete(id)
}

// RunCleanup unloads idle sessions every interval until ctx is done. A
// non-positive maxAge means SessionMaxAge.
func (m *Manager) RunCleanup(ctx context.Context, interval, maxAge time.Duration) {
	if maxAge <= 0 {
		maxAge = SessionMaxAge
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupOldSessions(maxAge)
		}
	}
}

// Close waits for running imports and closes every log.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, state := range m.sessions {
		m.unloadLocked(state)
	}
}
