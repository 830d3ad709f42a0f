// Package codec reads and writes event streams.
//
// Two encodings share one record layout: a flat object of event fields plus
// the reserved keys "@timestamp" (the event timestamp) and "@metadata" (an
// object of metadata entries, omitted when empty).
//
//	{"@timestamp":"2024-06-01T12:00:00Z","@metadata":{"source":"s1"},"message":"hi"}
//
// JSON streams hold one record per line. MessagePack streams are a plain
// concatenation of encoded maps.
package codec

import (
	"errors"
	"fmt"
	"io"

	"github.com/roach88/ingestfilter/internal/event"
	"github.com/roach88/ingestfilter/internal/value"
)

// MetadataKey holds event metadata inside a record.
const MetadataKey = "@metadata"

// Supported encodings.
const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// Reader decodes events one at a time. Read returns io.EOF after the last
// event.
type Reader interface {
	Read() (*event.Event, error)
}

// Writer encodes events. Flush must be called once writing is done.
type Writer interface {
	Write(e *event.Event) error
	Flush() error
}

// NewReader returns a reader for format.
func NewReader(format string, r io.Reader) (Reader, error) {
	switch format {
	case FormatJSON:
		return NewJSONReader(r), nil
	case FormatMsgpack:
		return NewMsgpackReader(r), nil
	}
	return nil, fmt.Errorf("unknown event format %q", format)
}

// NewWriter returns a writer for format.
func NewWriter(format string, w io.Writer) (Writer, error) {
	switch format {
	case FormatJSON:
		return NewJSONWriter(w), nil
	case FormatMsgpack:
		return NewMsgpackWriter(w), nil
	}
	return nil, fmt.Errorf("unknown event format %q", format)
}

// ReadBatch reads up to n events. It returns io.EOF only when no event was
// read.
func ReadBatch(r Reader, n int) ([]*event.Event, error) {
	batch := make([]*event.Event, 0, n)
	for len(batch) < n {
		e, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		batch = append(batch, e)
	}
	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

// Record converts e into its record layout.
func Record(e *event.Event) (value.Object, error) {
	rec := make(value.Object, e.Len()+2)
	for _, k := range e.Keys() {
		raw, _ := e.RawField(k)
		v, err := value.Convert(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		rec[k] = v
	}
	rec[event.TimestampField] = value.NewTimestamp(e.Timestamp)

	if keys := e.MetadataKeys(); len(keys) > 0 {
		md := make(value.Object, len(keys))
		for _, k := range keys {
			raw, _ := e.Metadata(k)
			v, err := value.Convert(raw)
			if err != nil {
				return nil, fmt.Errorf("metadata %q: %w", k, err)
			}
			md[k] = v
		}
		rec[MetadataKey] = md
	}
	return rec, nil
}

// FromRecord builds an event from a record. "@version" is stored as
// decoded; a record without "@timestamp" is stamped with the current time.
func FromRecord(rec value.Object) (*event.Event, error) {
	e := event.New()
	for _, k := range rec.SortedKeys() {
		v := rec[k]
		switch k {
		case MetadataKey:
			md, ok := v.(value.Object)
			if !ok {
				return nil, fmt.Errorf("%s: expected object, got %s", MetadataKey, v.Kind())
			}
			for _, mk := range md.SortedKeys() {
				if err := e.SetMetadata(mk, md[mk]); err != nil {
					return nil, err
				}
			}
		case event.VersionField:
			e.SetRaw(k, v)
		default:
			if err := e.SetField(k, v); err != nil {
				return nil, err
			}
		}
	}
	return e, nil
}
