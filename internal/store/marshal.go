package store

import (
	"fmt"

	"github.com/roach88/ingestfilter/internal/codec"
	"github.com/roach88/ingestfilter/internal/event"
	"github.com/roach88/ingestfilter/internal/value"
)

// marshalEvent returns the RFC 8785 canonical JSON of e's record and its
// content-addressed id.
func marshalEvent(e *event.Event) (id string, data string, err error) {
	rec, err := codec.Record(e)
	if err != nil {
		return "", "", fmt.Errorf("marshal event: %w", err)
	}
	canon, err := value.MarshalCanonical(rec)
	if err != nil {
		return "", "", fmt.Errorf("marshal event: %w", err)
	}
	id, err = value.Hash(value.DomainEvent, rec)
	if err != nil {
		return "", "", err
	}
	return id, string(canon), nil
}

// EventID returns the content-addressed id of e. The cancellation flag is
// not part of the identity.
func EventID(e *event.Event) (string, error) {
	id, _, err := marshalEvent(e)
	return id, err
}

// BatchID derives a batch id from the node name, the sequence number and
// the ids of the input events.
func BatchID(node string, seq int64, inputIDs []string) (string, error) {
	ids := make(value.List, len(inputIDs))
	for i, id := range inputIDs {
		ids[i] = value.String(id)
	}
	return value.Hash(value.DomainBatch, value.Object{
		"node":   value.String(node),
		"seq":    value.Int(seq),
		"inputs": ids,
	})
}

// unmarshalEvent parses stored canonical JSON back into an event.
func unmarshalEvent(data string) (*event.Event, error) {
	rec, err := value.ParseJSONObject([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return codec.FromRecord(rec)
}
