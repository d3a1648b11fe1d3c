package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Reason is the human-readable explanation attached to a result row.
// The import API reports it either as a single string or as an ordered
// list of fragments.
type Reason struct {
	parts    []string
	multiple bool
}

// SingleReason builds a one-part reason.
func SingleReason(msg string) Reason {
	return Reason{parts: []string{msg}}
}

// MultipleReason builds a reason from ordered fragments.
func MultipleReason(parts ...string) Reason {
	cp := make([]string, len(parts))
	copy(cp, parts)
	return Reason{parts: cp, multiple: true}
}

// IsMultiple reports whether the reason was given as a list.
func (r Reason) IsMultiple() bool {
	return r.multiple
}

// Parts returns the fragments of the reason.
func (r Reason) Parts() []string {
	cp := make([]string, len(r.parts))
	copy(cp, r.parts)
	return cp
}

// Display renders the reason; list fragments are joined with a single space.
func (r Reason) Display() string {
	if !r.multiple {
		if len(r.parts) == 0 {
			return ""
		}
		return r.parts[0]
	}
	return strings.Join(r.parts, " ")
}

// String implements fmt.Stringer.
func (r Reason) String() string {
	return r.Display()
}

// MarshalJSON keeps the original shape: a string or an array of strings.
func (r Reason) MarshalJSON() ([]byte, error) {
	if r.multiple {
		parts := r.parts
		if parts == nil {
			parts = []string{}
		}
		return json.Marshal(parts)
	}
	return json.Marshal(r.Display())
}

// UnmarshalJSON accepts a string, an array of strings or null.
func (r *Reason) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*r = Reason{}
		return nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var parts []string
		if err := json.Unmarshal(data, &parts); err != nil {
			return fmt.Errorf("decoding reason list: %w", err)
		}
		*r = MultipleReason(parts...)
		return nil
	}

	var msg string
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decoding reason: %w", err)
	}
	*r = SingleReason(msg)
	return nil
}
