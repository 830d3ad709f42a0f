package codec

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/ingestfilter/internal/event"
	"github.com/roach88/ingestfilter/internal/value"
)

// MsgpackReader reads a stream of MessagePack maps. Timestamps use the
// MessagePack timestamp extension; binary values decode as bytes.
type MsgpackReader struct {
	dec   *msgpack.Decoder
	count int
}

// NewMsgpackReader returns a reader over r.
func NewMsgpackReader(r io.Reader) *MsgpackReader {
	return &MsgpackReader{dec: msgpack.NewDecoder(bufio.NewReader(r))}
}

// Read implements Reader.
func (r *MsgpackReader) Read() (*event.Event, error) {
	raw, err := r.dec.DecodeInterfaceLoose()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", r.count, err)
	}
	r.count++

	v, err := value.Convert(raw)
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", r.count-1, err)
	}
	rec, ok := v.(value.Object)
	if !ok {
		return nil, fmt.Errorf("record %d: expected map, got %s", r.count-1, v.Kind())
	}
	return FromRecord(rec)
}

// MsgpackWriter writes events as MessagePack maps with sorted keys.
type MsgpackWriter struct {
	buf *bufio.Writer
	enc *msgpack.Encoder
}

// NewMsgpackWriter returns a writer over w.
func NewMsgpackWriter(w io.Writer) *MsgpackWriter {
	buf := bufio.NewWriter(w)
	enc := msgpack.NewEncoder(buf)
	enc.SetSortMapKeys(true)
	return &MsgpackWriter{buf: buf, enc: enc}
}

// Write implements Writer.
func (w *MsgpackWriter) Write(e *event.Event) error {
	rec, err := Record(e)
	if err != nil {
		return err
	}
	return w.enc.Encode(value.Native(rec))
}

// Flush implements Writer.
func (w *MsgpackWriter) Flush() error {
	return w.buf.Flush()
}
