package value

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"
)

// Convert recursively converts a Go value into the canonical domain.
//
// Mapping table (source kind → canonical kind):
//
//	nil, Null                                  → Null
//	bool                                       → Bool
//	int, int8, int16, int32, int64             → Int
//	uint8, uint16, uint32                      → Int
//	uint, uint64 (≤ MaxInt64)                  → Int
//	uint, uint64 (> MaxInt64), float32, float64 → Float
//	json.Number                                → Int, or Float if not integral
//	string                                     → String
//	[]byte                                     → Bytes
//	time.Time                                  → Timestamp (UTC)
//	[]any and any other slice or array         → List (deep)
//	map[string]any and any string-keyed map    → Object (deep)
//	Value                                      → itself (containers converted deep)
//
// Anything else is rejected.
func Convert(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Null:
		return val, nil
	case Bool, Int, Float, String:
		return val.(Value), nil
	case Bytes:
		return val, nil
	case Timestamp:
		return NewTimestamp(time.Time(val)), nil
	case List:
		return convertSlice(len(val), func(i int) any { return val[i] })
	case Object:
		return convertStringMap(val)
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint:
		return fromUint64(uint64(val)), nil
	case uint64:
		return fromUint64(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return Int(n), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val.String(), err)
		}
		return Float(f), nil
	case string:
		return String(val), nil
	case []byte:
		return Bytes(val), nil
	case time.Time:
		return NewTimestamp(val), nil
	case *time.Time:
		if val == nil {
			return Null{}, nil
		}
		return NewTimestamp(*val), nil
	case []any:
		return convertSlice(len(val), func(i int) any { return val[i] })
	case map[string]any:
		return convertStringMap(val)
	}
	return convertReflect(v)
}

// MustConvert is Convert for values known to be in the domain. Panics on
// failure; intended for literals in tests and fixtures.
func MustConvert(v any) Value {
	out, err := Convert(v)
	if err != nil {
		panic(err)
	}
	return out
}

func fromUint64(n uint64) Value {
	if n > math.MaxInt64 {
		return Float(float64(n))
	}
	return Int(int64(n))
}

func convertSlice(n int, at func(int) any) (Value, error) {
	out := make(List, n)
	for i := 0; i < n; i++ {
		elem, err := Convert(at(i))
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = elem
	}
	return out, nil
}

func convertStringMap[V any](m map[string]V) (Value, error) {
	out := make(Object, len(m))
	for k, elem := range m {
		conv, err := Convert(elem)
		if err != nil {
			return nil, fmt.Errorf("[%q]: %w", k, err)
		}
		out[k] = conv
	}
	return out, nil
}

// convertReflect handles typed slices, arrays, string-keyed maps and
// pointers that the fast path above does not enumerate.
func convertReflect(v any) (Value, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return Null{}, nil
		}
		return Convert(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return List{}, nil
		}
		return convertSlice(rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	case reflect.Array:
		return convertSlice(rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported map key type: %s", rv.Type().Key())
		}
		out := make(Object, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			conv, err := Convert(iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			out[k] = conv
		}
		return out, nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fromUint64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	}
	return nil, fmt.Errorf("unsupported type: %T", v)
}

// Native converts v back into plain Go values: nil, bool, int64, float64,
// string, []byte, time.Time, []any and map[string]any.
func Native(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case String:
		return string(val)
	case Bytes:
		return []byte(val)
	case Timestamp:
		return val.Time()
	case List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Native(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = Native(elem)
		}
		return out
	}
	return nil
}
