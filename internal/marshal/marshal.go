// Package marshal converts between filter events and engine documents.
//
// Relocation rules:
//
//	event.Timestamp        <-> Metadata["timestamp"] (UTC)
//	field "@version"       <-> Source["@version"], copied as stored
//	other fields           <-> Source, deep converted
//	event metadata          -> Metadata, deep converted
//	document metadata       -> event fields (folded into the field namespace)
package marshal

import (
	"fmt"
	"time"

	"github.com/roach88/ingestfilter/internal/event"
	"github.com/roach88/ingestfilter/internal/ingest"
	"github.com/roach88/ingestfilter/internal/value"
)

// TimestampKey is the document metadata key holding the event timestamp.
const TimestampKey = "timestamp"

// ToDocument builds a fresh document from e. e is not modified and shares no
// containers with the result.
func ToDocument(e *event.Event) (*ingest.Document, error) {
	doc := ingest.NewDocument(nil, nil)
	doc.Metadata[TimestampKey] = value.NewTimestamp(e.Timestamp)

	for _, k := range e.Keys() {
		raw, _ := e.RawField(k)
		if k == event.VersionField {
			v, err := verbatim(raw)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			doc.Source[k] = v
			continue
		}
		v, err := value.Convert(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		doc.Source[k] = v
	}

	for _, k := range e.MetadataKeys() {
		raw, _ := e.Metadata(k)
		v, err := value.Convert(raw)
		if err != nil {
			return nil, fmt.Errorf("metadata %q: %w", k, err)
		}
		doc.Metadata[k] = v
	}
	return doc, nil
}

// verbatim keeps a canonical value as is, copied so the document cannot
// reach back into the event. Foreign raw values still have to be lifted into
// the value domain to fit in a document.
func verbatim(raw any) (value.Value, error) {
	if v, ok := raw.(value.Value); ok {
		return value.Clone(v), nil
	}
	return value.Convert(raw)
}

// ToEvent writes doc into e. Source "@version" bypasses normalisation; every
// other source and metadata entry goes through the normal field setter.
func ToEvent(doc *ingest.Document, e *event.Event) error {
	if ts, ok := doc.Metadata[TimestampKey]; ok {
		t, err := toTime(ts)
		if err != nil {
			return err
		}
		e.Timestamp = t
	}

	for _, k := range doc.Source.SortedKeys() {
		v := doc.Source[k]
		if k == event.VersionField {
			e.SetRaw(k, v)
			continue
		}
		if err := e.SetField(k, v); err != nil {
			return err
		}
	}

	for _, k := range doc.Metadata.SortedKeys() {
		if k == TimestampKey {
			continue
		}
		if err := e.SetField(k, doc.Metadata[k]); err != nil {
			return err
		}
	}
	return nil
}

func toTime(v value.Value) (time.Time, error) {
	switch ts := v.(type) {
	case value.Timestamp:
		return ts.Time(), nil
	case value.String:
		t, err := time.Parse(time.RFC3339Nano, string(ts))
		if err != nil {
			return time.Time{}, fmt.Errorf("metadata %q: %w", TimestampKey, err)
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("metadata %q: expected timestamp, got %s", TimestampKey, v.Kind())
}
