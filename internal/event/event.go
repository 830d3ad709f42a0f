// Package event holds the filter-side record that flows through a batch.
//
// An Event stores its fields raw: values written through SetField are
// normalised into the value domain, values written through SetRaw or
// loaded with FromMap are kept exactly as given. RawField and Field are
// two distinct lookups over that storage and are deliberately not merged:
// RawField reports what is stored, Field reports the canonical value.
package event

import (
	"fmt"
	"sort"
	"time"

	"github.com/roach88/ingestfilter/internal/value"
)

// Reserved field names.
const (
	// VersionField carries the event schema version. It is copied verbatim
	// across the document boundary.
	VersionField = "@version"

	// TimestampField addresses the event timestamp. It is never stored as a
	// field; reads and writes go to the Timestamp slot.
	TimestampField = "@timestamp"
)

// Event is a mutable record of fields, metadata, a timestamp and a
// cancellation flag. It is not safe for concurrent use.
type Event struct {
	fields    map[string]any
	metadata  map[string]any
	Timestamp time.Time
	cancelled bool
}

// New returns an empty event stamped with the current UTC time.
func New() *Event {
	return &Event{
		fields:    make(map[string]any),
		metadata:  make(map[string]any),
		Timestamp: time.Now().UTC(),
	}
}

// FromMap builds an event whose fields are stored raw. A TimestampField
// entry is moved into the Timestamp slot.
func FromMap(fields map[string]any) (*Event, error) {
	e := New()
	for k, v := range fields {
		if k == TimestampField {
			if err := e.setTimestamp(v); err != nil {
				return nil, err
			}
			continue
		}
		e.fields[k] = v
	}
	return e, nil
}

// SetField normalises v into the value domain and stores it under key.
func (e *Event) SetField(key string, v any) error {
	if key == TimestampField {
		return e.setTimestamp(v)
	}
	cv, err := value.Convert(v)
	if err != nil {
		return fmt.Errorf("set field %q: %w", key, err)
	}
	e.fields[key] = cv
	return nil
}

// SetRaw stores v under key without normalisation.
func (e *Event) SetRaw(key string, v any) {
	e.fields[key] = v
}

// RawField returns the stored value for key exactly as it was written.
func (e *Event) RawField(key string) (any, bool) {
	if key == TimestampField {
		return e.Timestamp, true
	}
	v, ok := e.fields[key]
	return v, ok
}

// Field returns the canonical value for key. A stored value that cannot be
// converted is reported as absent, even though RawField still sees it.
func (e *Event) Field(key string) (value.Value, bool) {
	raw, ok := e.RawField(key)
	if !ok {
		return nil, false
	}
	v, err := value.Convert(raw)
	if err != nil {
		return nil, false
	}
	return v, true
}

// RemoveField deletes key and returns what was stored.
func (e *Event) RemoveField(key string) (any, bool) {
	v, ok := e.fields[key]
	if ok {
		delete(e.fields, key)
	}
	return v, ok
}

// Keys returns the field names in sorted order.
func (e *Event) Keys() []string {
	return sortedKeys(e.fields)
}

// Len returns the number of stored fields.
func (e *Event) Len() int {
	return len(e.fields)
}

// SetMetadata normalises v and stores it in the metadata mapping.
func (e *Event) SetMetadata(key string, v any) error {
	cv, err := value.Convert(v)
	if err != nil {
		return fmt.Errorf("set metadata %q: %w", key, err)
	}
	e.metadata[key] = cv
	return nil
}

// Metadata returns the stored metadata entry for key.
func (e *Event) Metadata(key string) (any, bool) {
	v, ok := e.metadata[key]
	return v, ok
}

// MetadataKeys returns the metadata names in sorted order.
func (e *Event) MetadataKeys() []string {
	return sortedKeys(e.metadata)
}

// Cancel marks the event as dropped.
func (e *Event) Cancel() {
	e.cancelled = true
}

// IsCancelled reports whether the event was dropped.
func (e *Event) IsCancelled() bool {
	return e.cancelled
}

// Clone returns a deep copy of the event. Canonical values are cloned,
// foreign raw values are shared.
func (e *Event) Clone() *Event {
	return &Event{
		fields:    cloneMap(e.fields),
		metadata:  cloneMap(e.metadata),
		Timestamp: e.Timestamp,
		cancelled: e.cancelled,
	}
}

func (e *Event) setTimestamp(v any) error {
	switch t := v.(type) {
	case time.Time:
		e.Timestamp = t.UTC()
	case value.Timestamp:
		e.Timestamp = t.Time()
	case string:
		return e.parseTimestamp(t)
	case value.String:
		return e.parseTimestamp(string(t))
	default:
		return fmt.Errorf("%s: expected timestamp, got %T", TimestampField, v)
	}
	return nil
}

func (e *Event) parseTimestamp(s string) error {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("%s: %w", TimestampField, err)
	}
	e.Timestamp = t.UTC()
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if cv, ok := v.(value.Value); ok {
			v = value.Clone(cv)
		}
		out[k] = v
	}
	return out
}
