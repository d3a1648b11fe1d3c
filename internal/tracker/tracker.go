// Package tracker assigns every bulk-import invocation a stable slot index
// and mirrors each slot transition into the notification log so the
// history outlives a restart or reload.
package tracker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/concept-importer/backend/internal/kvlog"
	"github.com/concept-importer/backend/internal/models"
	"github.com/google/uuid"
)

// LogName is the logical name of the notification lists in the kvlog.
const LogName = "notification"

// Keys of the index-aligned lists.
const (
	KeyLoadingList        = "loadingList"
	KeyInProgressList     = "inProgressList"
	KeyErroredList        = "erroredList"
	KeySuccessList        = "successList"
	KeyImportMetaDataList = "importMetaDataList"
)

// StaleReason is recorded on slots reclassified by MarkStale.
const StaleReason = "interrupted before completion"

var (
	ErrInvalidIndex   = errors.New("invalid slot index")
	ErrSlotNotFound   = errors.New("slot not found")
	ErrAlreadySettled = errors.New("slot already settled")
)

// Tracker holds the slot table for one session.
type Tracker struct {
	mu    sync.RWMutex
	log   *kvlog.Log
	slots []models.Slot
	now   func() time.Time

	subMu       sync.Mutex
	subscribers map[int]chan Event
	nextSub     int
}

// New creates a tracker writing through log. A nil log keeps the history in
// memory only.
func New(log *kvlog.Log) *Tracker {
	return &Tracker{
		log:         log,
		now:         time.Now,
		subscribers: make(map[int]chan Event),
	}
}

// Hydrate replaces the in-memory table with whatever the log holds.
func (t *Tracker) Hydrate() int {
	lists := ReadLists(t.log)
	slots := lists.Slots()

	t.mu.Lock()
	t.slots = slots
	t.mu.Unlock()

	return len(slots)
}

// StartOperation appends a loading slot and returns its index.
func (t *Tracker) StartOperation(label, dictionaryURL string) models.Slot {
	t.mu.Lock()
	slot := models.Slot{
		Index: len(t.slots),
		ID:    uuid.New().String(),
		Label: label,
		State: models.SlotLoading,
		MetaData: &models.ImportMetaData{
			Dictionary: dictionaryURL,
			DateTime:   t.now().UTC().Format(time.RFC3339Nano),
		},
	}
	slot.MetaData.OperationID = slot.ID
	t.slots = append(t.slots, slot)
	t.persistLocked()
	t.mu.Unlock()

	t.publish(Event{Type: EventStarted, Slot: slot})
	return slot
}

// SettleSuccess records the result list of the slot at index.
func (t *Tracker) SettleSuccess(index int, result models.ImportResult) error {
	return t.settle(index, func(s *models.Slot) {
		s.State = models.SlotSucceeded
		s.Result = &result
	}, EventSucceeded)
}

// SettleError records an invocation-level failure for the slot at index.
// An empty message is stored as models.UnknownFailure so the slot reads
// back as failed.
func (t *Tracker) SettleError(index int, errPayload models.ErrorPayload) error {
	if errPayload == "" {
		errPayload = models.UnknownFailure
	}
	return t.settle(index, func(s *models.Slot) {
		s.State = models.SlotFailed
		s.Error = &errPayload
	}, EventFailed)
}

func (t *Tracker) settle(index int, apply func(*models.Slot), evt EventType) error {
	if index < 0 {
		return ErrInvalidIndex
	}

	t.mu.Lock()
	// Indices past the end (e.g. the log was cleared mid-flight) are padded
	// with empty slots so positions stay aligned.
	for len(t.slots) <= index {
		t.slots = append(t.slots, models.Slot{Index: len(t.slots), State: models.SlotEmpty})
	}

	slot := &t.slots[index]
	if slot.Settled() {
		t.mu.Unlock()
		return fmt.Errorf("settling slot %d: %w", index, ErrAlreadySettled)
	}

	apply(slot)
	snapshot := *slot
	t.persistLocked()
	t.mu.Unlock()

	t.publish(Event{Type: evt, Slot: snapshot})
	return nil
}

// Remove replaces the slot at index with an empty marker. The index is
// never reused.
func (t *Tracker) Remove(index int) error {
	t.mu.Lock()
	if index < 0 || index >= len(t.slots) {
		t.mu.Unlock()
		return fmt.Errorf("removing slot %d: %w", index, ErrSlotNotFound)
	}
	t.slots[index] = models.Slot{Index: index, State: models.SlotEmpty}
	snapshot := t.slots[index]
	t.persistLocked()
	t.mu.Unlock()

	t.publish(Event{Type: EventRemoved, Slot: snapshot})
	return nil
}

// Slot returns a copy of the slot at index.
func (t *Tracker) Slot(index int) (models.Slot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if index < 0 || index >= len(t.slots) {
		return models.Slot{}, false
	}
	return t.slots[index], true
}

// Snapshot returns a copy of every slot in index order.
func (t *Tracker) Snapshot() []models.Slot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.Slot, len(t.slots))
	copy(out, t.slots)
	return out
}

// Len returns the number of allocated slots.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.slots)
}

// InFlight counts slots still loading.
func (t *Tracker) InFlight() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, s := range t.slots {
		if s.State == models.SlotLoading {
			n++
		}
	}
	return n
}

// MarkStale fails loading slots that started more than olderThan ago. It is
// meant to run right after Hydrate, when no invocation of this process can
// own those slots. olderThan <= 0 disables it.
func (t *Tracker) MarkStale(olderThan time.Duration) int {
	if olderThan <= 0 {
		return 0
	}

	cutoff := t.now().Add(-olderThan)
	var stale []models.Slot

	t.mu.Lock()
	for i := range t.slots {
		s := &t.slots[i]
		if s.State != models.SlotLoading || s.MetaData == nil {
			continue
		}
		started := s.MetaData.StartedAt()
		if started.IsZero() || started.After(cutoff) {
			continue
		}
		reason := models.ErrorPayload(StaleReason)
		s.State = models.SlotFailed
		s.Error = &reason
		stale = append(stale, *s)
	}
	if len(stale) > 0 {
		t.persistLocked()
	}
	t.mu.Unlock()

	for _, s := range stale {
		t.publish(Event{Type: EventFailed, Slot: s})
	}
	return len(stale)
}

// persistLocked mirrors the table into the log. Caller holds t.mu.
func (t *Tracker) persistLocked() {
	if t.log == nil {
		return
	}
	FromSlots(t.slots).Write(t.log)
}
