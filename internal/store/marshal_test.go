package store

import (
	"testing"

	"github.com/roach88/ingestfilter/internal/event"
)

func TestEventID_Deterministic(t *testing.T) {
	a := createTestEvent(t, map[string]any{"b": 2, "a": "x"})
	b := createTestEvent(t, map[string]any{"a": "x", "b": 2})

	idA, err := EventID(a)
	if err != nil {
		t.Fatalf("EventID() failed: %v", err)
	}
	idB, err := EventID(b)
	if err != nil {
		t.Fatalf("EventID() failed: %v", err)
	}
	if idA != idB {
		t.Errorf("ids differ: %s vs %s", idA, idB)
	}
	if len(idA) != 64 {
		t.Errorf("len(id) = %d, want 64 hex chars", len(idA))
	}
}

func TestEventID_IgnoresCancellation(t *testing.T) {
	e := createTestEvent(t, map[string]any{"a": 1})
	before, _ := EventID(e)
	e.Cancel()
	after, _ := EventID(e)
	if before != after {
		t.Error("cancellation changed the event id")
	}
}

func TestEventID_SensitiveToContent(t *testing.T) {
	a := createTestEvent(t, map[string]any{"a": 1})
	b := createTestEvent(t, map[string]any{"a": 2})
	idA, _ := EventID(a)
	idB, _ := EventID(b)
	if idA == idB {
		t.Error("different events share an id")
	}
}

func TestBatchID(t *testing.T) {
	id1, err := BatchID("node", 1, []string{"x", "y"})
	if err != nil {
		t.Fatalf("BatchID() failed: %v", err)
	}
	id2, _ := BatchID("node", 1, []string{"y", "x"})
	id3, _ := BatchID("node", 2, []string{"x", "y"})
	if id1 == id2 {
		t.Error("input order should change the batch id")
	}
	if id1 == id3 {
		t.Error("sequence number should change the batch id")
	}
}

func TestMarshalEvent_Canonical(t *testing.T) {
	e := createTestEvent(t, map[string]any{"ratio": 2.0, "tags": []any{"b", "a"}})
	if err := e.SetMetadata("source", "s1"); err != nil {
		t.Fatal(err)
	}

	_, data, err := marshalEvent(e)
	if err != nil {
		t.Fatalf("marshalEvent() failed: %v", err)
	}
	want := `{"@metadata":{"source":"s1"},"@timestamp":"2024-06-01T12:00:00Z","ratio":2,"tags":["b","a"]}`
	if data != want {
		t.Errorf("marshalEvent() = %s, want %s", data, want)
	}

	back, err := unmarshalEvent(data)
	if err != nil {
		t.Fatalf("unmarshalEvent() failed: %v", err)
	}
	if got := back.MetadataKeys(); len(got) != 1 || got[0] != "source" {
		t.Errorf("metadata keys = %v", got)
	}
	if !back.Timestamp.Equal(e.Timestamp) {
		t.Errorf("timestamp = %v, want %v", back.Timestamp, e.Timestamp)
	}
}

func TestNewOutcomes_RejectsForeignValues(t *testing.T) {
	e := event.New()
	e.SetRaw("ch", make(chan int))
	if _, err := NewOutcomes("b", []*event.Event{e}); err == nil {
		t.Error("expected error for unconvertible field")
	}
}
