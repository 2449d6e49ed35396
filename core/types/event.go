package types

import "sort"

// Event represents a typed event emitted during state transitions. Attributes
// carry amounts as base-10 strings so downstream consumers never lose precision.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	// Timestamp is the call timestamp (unix nanoseconds) that produced the event.
	Timestamp uint64 `json:"timestamp,omitempty"`
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := &Event{Type: e.Type, Timestamp: e.Timestamp}
	if e.Attributes != nil {
		clone.Attributes = make(map[string]string, len(e.Attributes))
		for k, v := range e.Attributes {
			clone.Attributes[k] = v
		}
	}
	return clone
}

// AttributeKeys returns the attribute names in sorted order.
func (e *Event) AttributeKeys() []string {
	if e == nil {
		return nil
	}
	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
