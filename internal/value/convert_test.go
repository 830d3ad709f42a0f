package value

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type customString string

func TestConvertScalars(t *testing.T) {
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.FixedZone("x", -3600))
	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Null{}},
		{"bool", true, Bool(true)},
		{"int", 7, Int(7)},
		{"int8", int8(-3), Int(-3)},
		{"int32", int32(12), Int(12)},
		{"uint8", uint8(255), Int(255)},
		{"uint32", uint32(1 << 31), Int(1 << 31)},
		{"uint64 small", uint64(10), Int(10)},
		{"uint64 overflow", uint64(math.MaxUint64), Float(float64(uint64(math.MaxUint64)))},
		{"float32", float32(0.5), Float(0.5)},
		{"float64", 2.25, Float(2.25)},
		{"json int", json.Number("9007199254740993"), Int(9007199254740993)},
		{"json float", json.Number("1.5e3"), Float(1500)},
		{"string", "hi", String("hi")},
		{"bytes", []byte("raw"), Bytes("raw")},
		{"time", now, NewTimestamp(now)},
		{"named string", customString("x"), String("x")},
		{"value passthrough", Int(3), Int(3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(tt.in)
			require.NoError(t, err)
			assert.True(t, Equal(tt.want, got), "want %#v, got %#v", tt.want, got)
			assert.Equal(t, tt.want.Kind(), got.Kind())
		})
	}
}

func TestConvertContainers(t *testing.T) {
	in := map[string]any{
		"list":    []any{"a", 1, []string{"x", "y"}},
		"typed":   []int64{1, 2},
		"nested":  map[string]string{"k": "v"},
		"deep":    map[string][]map[string]int{"rows": {{"n": 1}}},
		"array":   [2]bool{true, false},
		"ptr":     (*int)(nil),
		"already": Object{"inner": List{Int(1)}},
	}

	got, err := Convert(in)
	require.NoError(t, err)

	want := Object{
		"list":    List{String("a"), Int(1), List{String("x"), String("y")}},
		"typed":   List{Int(1), Int(2)},
		"nested":  Object{"k": String("v")},
		"deep":    Object{"rows": List{Object{"n": Int(1)}}},
		"array":   List{Bool(true), Bool(false)},
		"ptr":     Null{},
		"already": Object{"inner": List{Int(1)}},
	}
	assert.True(t, Equal(want, got), "got %#v", got)
}

func TestConvertRejectsUnsupported(t *testing.T) {
	_, err := Convert(map[string]any{"ch": make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `["ch"]`)

	_, err = Convert(map[int]string{1: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported map key type")
}

func TestNativeRoundTrip(t *testing.T) {
	ts := NewTimestamp(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	v := Object{
		"s": String("x"),
		"i": Int(1),
		"f": Float(1.5),
		"b": Bool(false),
		"n": Null{},
		"r": Bytes("ab"),
		"t": ts,
		"l": List{Int(1), Object{"k": String("v")}},
	}

	back, err := Convert(Native(v))
	require.NoError(t, err)
	assert.True(t, Equal(v, back))
}
