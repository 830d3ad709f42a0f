package value

import (
	"slices"
	"time"
	"unicode/utf16"
)

// Value is a sealed interface representing the canonical value kinds.
// Only Null, Bool, Int, Float, String, Bytes, Timestamp, List and Object
// implement it.
type Value interface {
	Kind() Kind
	isValue() // Sealed - only these types implement it
}

// Kind identifies the concrete kind of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindTimestamp
	KindList
	KindObject
)

var kindNames = [...]string{
	KindNull:      "null",
	KindBool:      "boolean",
	KindInt:       "long",
	KindFloat:     "double",
	KindString:    "string",
	KindBytes:     "bytes",
	KindTimestamp: "timestamp",
	KindList:      "list",
	KindObject:    "object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Null represents an explicit null.
// Using a concrete type keeps every Value non-nil.
type Null struct{}

func (Null) Kind() Kind { return KindNull }
func (Null) isValue()   {}

// Bool represents a boolean.
type Bool bool

func (Bool) Kind() Kind { return KindBool }
func (Bool) isValue()   {}

// Int represents a 64-bit signed integer.
type Int int64

func (Int) Kind() Kind { return KindInt }
func (Int) isValue()   {}

// Float represents a double.
type Float float64

func (Float) Kind() Kind { return KindFloat }
func (Float) isValue()   {}

// String represents a UTF-8 string.
type String string

func (String) Kind() Kind { return KindString }
func (String) isValue()   {}

// Bytes represents an opaque byte sequence.
type Bytes []byte

func (Bytes) Kind() Kind { return KindBytes }
func (Bytes) isValue()   {}

// Timestamp represents an absolute instant. Always construct with
// NewTimestamp so the location is UTC.
type Timestamp time.Time

func (Timestamp) Kind() Kind { return KindTimestamp }
func (Timestamp) isValue()   {}

// Time returns the instant as a time.Time in UTC.
func (ts Timestamp) Time() time.Time {
	return time.Time(ts).UTC()
}

// NewTimestamp converts t to a UTC Timestamp.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.UTC())
}

// List represents an ordered sequence of values.
type List []Value

func (List) Kind() Kind { return KindList }
func (List) isValue()   {}

// Object represents a mapping of string keys to values.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) Kind() Kind { return KindObject }
func (Object) isValue()   {}

// Pair is a key/value pair for typed Object construction.
type Pair struct {
	Key   string
	Value Value
}

// O is a shorthand for Pair.
// Example: NewObject(O("name", String("cart")), O("count", Int(5)))
func O(key string, v Value) Pair {
	return Pair{Key: key, Value: v}
}

// NewObject creates an Object from key/value pairs.
func NewObject(pairs ...Pair) Object {
	obj := make(Object, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// Clone returns a deep copy of obj. Scalars are shared, containers are not.
func (obj Object) Clone() Object {
	if obj == nil {
		return nil
	}
	out := make(Object, len(obj))
	for k, v := range obj {
		out[k] = Clone(v)
	}
	return out
}

// Clone returns a deep copy of v.
func Clone(v Value) Value {
	switch val := v.(type) {
	case Object:
		return val.Clone()
	case List:
		out := make(List, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case Bytes:
		return Bytes(slices.Clone([]byte(val)))
	default:
		return v
	}
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 byte order, which differs for astral planes.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings by UTF-16 code units.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// Equal reports whether a and b are the same value. Timestamps compare by
// instant, Float compares by IEEE equality, containers compare deeply.
// Int and Float are distinct kinds and never equal each other.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}

	switch av := a.(type) {
	case Null:
		return true
	case Bool:
		return av == b.(Bool)
	case Int:
		return av == b.(Int)
	case Float:
		return av == b.(Float)
	case String:
		return av == b.(String)
	case Bytes:
		return slices.Equal(av, b.(Bytes))
	case Timestamp:
		return time.Time(av).Equal(time.Time(b.(Timestamp)))
	case List:
		bv := b.(List)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv := b.(Object)
		if len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, ok := bv[k]
			if !ok || !Equal(v, other) {
				return false
			}
		}
		return true
	}
	return false
}
