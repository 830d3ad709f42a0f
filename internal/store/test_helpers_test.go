package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/ingestfilter/internal/event"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEvent creates an event with a fixed timestamp and the given fields.
func createTestEvent(t *testing.T, fields map[string]any) *event.Event {
	t.Helper()
	e := event.New()
	e.Timestamp = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for k, v := range fields {
		if err := e.SetField(k, v); err != nil {
			t.Fatalf("SetField(%q) failed: %v", k, err)
		}
	}
	return e
}

// createTestBatch builds a batch and its outcomes for events.
func createTestBatch(t *testing.T, node string, seq int64, events []*event.Event) (Batch, []OutcomeRecord) {
	t.Helper()
	ids := make([]string, len(events))
	dropped := 0
	for i, e := range events {
		id, err := EventID(e)
		if err != nil {
			t.Fatalf("EventID() failed: %v", err)
		}
		ids[i] = id
		if e.IsCancelled() {
			dropped++
		}
	}
	batchID, err := BatchID(node, seq, ids)
	if err != nil {
		t.Fatalf("BatchID() failed: %v", err)
	}
	outcomes, err := NewOutcomes(batchID, events)
	if err != nil {
		t.Fatalf("NewOutcomes() failed: %v", err)
	}
	return Batch{
		ID:       batchID,
		NodeName: node,
		Pipeline: "main",
		Seq:      seq,
		Events:   len(events),
		Dropped:  dropped,
	}, outcomes
}

// verifyPragma checks that a pragma reads back as expected.
func verifyPragma(s *Store, name, expected string) error {
	var got string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&got); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if got != expected {
		return fmt.Errorf("%s = %q, expected %q", name, got, expected)
	}
	return nil
}
