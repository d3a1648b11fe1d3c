package tracker

import (
	"fmt"

	"github.com/concept-importer/backend/internal/models"
)

// EventType names a slot transition.
type EventType string

const (
	EventStarted   EventType = "started"
	EventSucceeded EventType = "succeeded"
	EventFailed    EventType = "failed"
	EventRemoved   EventType = "removed"
)

// Event is published after every transition.
type Event struct {
	Type EventType   `json:"type"`
	Slot models.Slot `json:"slot"`
}

const subscriberBuffer = 32

// Subscribe returns a channel of future events and a function that
// unsubscribes and closes it. Slow subscribers miss events rather than
// block the tracker.
func (t *Tracker) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	t.subMu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subscribers[id] = ch
	t.subMu.Unlock()

	cancel := func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		if c, ok := t.subscribers[id]; ok {
			delete(t.subscribers, id)
			close(c)
		}
	}
	return ch, cancel
}

func (t *Tracker) publish(evt Event) {
	t.subMu.Lock()
	defer t.subMu.Unlock()

	for id, ch := range t.subscribers {
		select {
		case ch <- evt:
		default:
			fmt.Printf("[Tracker] subscriber %d is full, dropping %s event for slot %d\n", id, evt.Type, evt.Slot.Index)
		}
	}
}
