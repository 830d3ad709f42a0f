package codec

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/roach88/ingestfilter/internal/event"
	"github.com/roach88/ingestfilter/internal/value"
)

// maxLineSize bounds a single JSON line.
const maxLineSize = 16 << 20

// JSONReader reads newline-delimited JSON records. Blank lines are skipped.
type JSONReader struct {
	scanner *bufio.Scanner
	line    int
}

// NewJSONReader returns a reader over r.
func NewJSONReader(r io.Reader) *JSONReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &JSONReader{scanner: s}
}

// Read implements Reader.
func (r *JSONReader) Read() (*event.Event, error) {
	for r.scanner.Scan() {
		r.line++
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		rec, err := value.ParseJSONObject(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.line, err)
		}
		e, err := FromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.line, err)
		}
		return e, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// JSONWriter writes one JSON record per line with sorted keys.
type JSONWriter struct {
	w *bufio.Writer
}

// NewJSONWriter returns a writer over w.
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{w: bufio.NewWriter(w)}
}

// Write implements Writer.
func (w *JSONWriter) Write(e *event.Event) error {
	rec, err := Record(e)
	if err != nil {
		return err
	}
	data, err := value.MarshalJSON(rec)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(data); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Flush implements Writer.
func (w *JSONWriter) Flush() error {
	return w.w.Flush()
}
