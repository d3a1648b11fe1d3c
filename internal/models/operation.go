// Package models contains domain types for the concept import tracker.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// LabelSeparator joins the summary and detail parts of an operation label.
const LabelSeparator = "--"

// SlotState is the lifecycle state of an operation slot.
type SlotState string

const (
	SlotEmpty     SlotState = "empty"
	SlotLoading   SlotState = "loading"
	SlotSucceeded SlotState = "succeeded"
	SlotFailed    SlotState = "failed"
)

// ErrorPayload is the raw message of an invocation-level failure.
type ErrorPayload string

// UnknownFailure replaces an empty failure message.
const UnknownFailure ErrorPayload = "Import failed"

// IsFailure reports whether e marks a failed invocation. A missing or empty
// payload does not.
func (e *ErrorPayload) IsFailure() bool {
	return e != nil && *e != ""
}

// ImportResult is the success payload of one invocation.
type ImportResult struct {
	Payload []ConceptResultRow `json:"payload"`
	Meta    *RequestMeta       `json:"meta,omitempty"`
}

// ImportMetaData is recorded when an operation starts.
type ImportMetaData struct {
	Dictionary  string `json:"dictionary"`
	DateTime    string `json:"dateTime"` // ISO-8601
	OperationID string `json:"operationId,omitempty"`
}

// StartedAt parses DateTime; the zero time is returned for malformed values.
func (m ImportMetaData) StartedAt() time.Time {
	t, err := time.Parse(time.RFC3339Nano, m.DateTime)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Slot is one bulk-import invocation at a stable index.
type Slot struct {
	Index    int             `json:"index"`
	ID       string          `json:"id,omitempty"`
	Label    string          `json:"label,omitempty"`
	State    SlotState       `json:"state"`
	Error    *ErrorPayload   `json:"error,omitempty"`
	Result   *ImportResult   `json:"result,omitempty"`
	MetaData *ImportMetaData `json:"importMetaData,omitempty"`
}

// Loading mirrors the tri-state loading flag: nil when the slot was never
// observed, true while in flight, false once settled.
func (s Slot) Loading() *bool {
	var v bool
	switch s.State {
	case SlotLoading:
		v = true
	case SlotSucceeded, SlotFailed:
		v = false
	default:
		return nil
	}
	return &v
}

// Settled reports whether the slot reached success or failure.
func (s Slot) Settled() bool {
	return s.State == SlotSucceeded || s.State == SlotFailed
}

// BuildLabel composes "<summary>--<detail>".
func BuildLabel(summary, detail string) string {
	return summary + LabelSeparator + detail
}

// SplitLabel returns the summary and detail parts of a label.
func SplitLabel(label string) (string, string) {
	parts := strings.Split(label, LabelSeparator)
	if len(parts) < 2 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// RequestMeta is the request metadata recorded with an operation's result.
// On the wire it keeps the legacy tuple form
// [dictionaryUrl, [{"id": ...}, ...]].
type RequestMeta struct {
	DictionaryURL       string
	RequestedConceptIDs map[string]struct{} // nil when the request list is unknown
	order               []string
}

// NewRequestMeta builds metadata for a dictionary and the concepts the user
// explicitly selected.
func NewRequestMeta(dictionaryURL string, requested []ConceptRef) *RequestMeta {
	m := &RequestMeta{DictionaryURL: dictionaryURL}
	if requested == nil {
		return m
	}
	m.RequestedConceptIDs = make(map[string]struct{}, len(requested))
	for _, c := range requested {
		if _, ok := m.RequestedConceptIDs[c.ID]; ok {
			continue
		}
		m.RequestedConceptIDs[c.ID] = struct{}{}
		m.order = append(m.order, c.ID)
	}
	return m
}

// IsRequested reports whether the concept id was explicitly selected.
// A nil receiver or unknown request list yields false.
func (m *RequestMeta) IsRequested(conceptID string) bool {
	if m == nil || m.RequestedConceptIDs == nil {
		return false
	}
	_, ok := m.RequestedConceptIDs[conceptID]
	return ok
}

// Dictionary returns the target dictionary URL, "" for a nil receiver.
func (m *RequestMeta) Dictionary() string {
	if m == nil {
		return ""
	}
	return m.DictionaryURL
}

type conceptIDRef struct {
	ID string `json:"id"`
}

// MarshalJSON encodes the tuple form.
func (m RequestMeta) MarshalJSON() ([]byte, error) {
	tuple := []interface{}{m.DictionaryURL}
	if m.RequestedConceptIDs != nil {
		refs := make([]conceptIDRef, 0, len(m.order))
		for _, id := range m.order {
			refs = append(refs, conceptIDRef{ID: id})
		}
		tuple = append(tuple, refs)
	}
	return json.Marshal(tuple)
}

// UnmarshalJSON decodes the tuple form. Missing elements leave defaults.
func (m *RequestMeta) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("decoding request meta: %w", err)
	}

	*m = RequestMeta{}
	if len(tuple) == 0 {
		return nil
	}
	if err := json.Unmarshal(tuple[0], &m.DictionaryURL); err != nil {
		m.DictionaryURL = ""
	}
	if len(tuple) < 2 {
		return nil
	}

	var refs []conceptIDRef
	if err := json.Unmarshal(tuple[1], &refs); err != nil {
		return nil
	}
	requested := make([]ConceptRef, 0, len(refs))
	for _, r := range refs {
		requested = append(requested, ConceptRef{ID: r.ID})
	}
	*m = *NewRequestMeta(m.DictionaryURL, requested)
	return nil
}
