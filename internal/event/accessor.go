package event

import (
	"errors"
	"fmt"

	"github.com/roach88/ingestfilter/internal/value"
)

// FieldAccessor is the field capability code outside the event needs.
// Membership uses the raw lookup and retrieval uses the converted lookup;
// callers must not assume HasField implies GetField succeeds.
//
// Bulk insert and clear are intentionally absent.
type FieldAccessor interface {
	HasField(key string) bool
	GetField(key string) (value.Value, bool)
	SetField(key string, v any) error
	RemoveField(key string) (any, bool)
}

var _ FieldAccessor = (*Event)(nil)

// HasField reports whether key is stored, using the raw lookup.
func (e *Event) HasField(key string) bool {
	_, ok := e.RawField(key)
	return ok
}

// GetField returns the converted value for key.
func (e *Event) GetField(key string) (value.Value, bool) {
	return e.Field(key)
}

// UnsupportedOperationError is returned by FieldMap operations that the
// event view does not allow.
type UnsupportedOperationError struct {
	Op string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("unsupported operation: %s on event field map", e.Op)
}

// IsUnsupportedOperation reports whether err is an UnsupportedOperationError.
func IsUnsupportedOperation(err error) bool {
	var ue *UnsupportedOperationError
	return errors.As(err, &ue)
}

// FieldMap is a generic mapping view over one event's fields. Single-key
// operations delegate to the event; PutAll and Clear always fail.
type FieldMap struct {
	e *Event
}

// Fields returns the mapping view of e.
func Fields(e *Event) *FieldMap {
	return &FieldMap{e: e}
}

// ContainsKey uses the raw lookup.
func (m *FieldMap) ContainsKey(key string) bool {
	return m.e.HasField(key)
}

// Get uses the converted lookup.
func (m *FieldMap) Get(key string) (value.Value, bool) {
	return m.e.GetField(key)
}

// Put sets one field and returns the previous raw value, if any.
func (m *FieldMap) Put(key string, v any) (any, error) {
	prev, _ := m.e.RawField(key)
	if err := m.e.SetField(key, v); err != nil {
		return nil, err
	}
	return prev, nil
}

// Remove deletes one field.
func (m *FieldMap) Remove(key string) (any, bool) {
	return m.e.RemoveField(key)
}

// Keys returns the field names in sorted order.
func (m *FieldMap) Keys() []string {
	return m.e.Keys()
}

// Len returns the number of fields.
func (m *FieldMap) Len() int {
	return m.e.Len()
}

// Range calls fn for each field with its converted value, in key order.
// Fields whose raw value cannot be converted are skipped. Iteration stops
// when fn returns false.
func (m *FieldMap) Range(fn func(key string, v value.Value) bool) {
	for _, k := range m.e.Keys() {
		v, ok := m.e.GetField(k)
		if !ok {
			continue
		}
		if !fn(k, v) {
			return
		}
	}
}

// PutAll is not supported.
func (m *FieldMap) PutAll(map[string]any) error {
	return &UnsupportedOperationError{Op: "PutAll"}
}

// Clear is not supported.
func (m *FieldMap) Clear() error {
	return &UnsupportedOperationError{Op: "Clear"}
}
