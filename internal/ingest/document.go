package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/ingestfilter/internal/value"
)

// Path prefixes selecting a document root.
const (
	IngestPrefix = "_ingest"
	SourcePrefix = "_source"
)

// Document is the engine-side view of one event: transformable source
// fields and ingest metadata.
type Document struct {
	Source   value.Object
	Metadata value.Object
}

// NewDocument returns a document over the given mappings. Nil mappings are
// replaced with empty ones.
func NewDocument(source, metadata value.Object) *Document {
	if source == nil {
		source = value.Object{}
	}
	if metadata == nil {
		metadata = value.Object{}
	}
	return &Document{Source: source, Metadata: metadata}
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	return &Document{Source: d.Source.Clone(), Metadata: d.Metadata.Clone()}
}

// root splits a dotted path into its root object and remaining segments.
// "_ingest.x" addresses Metadata, "_source.x" and bare paths address Source.
func (d *Document) root(path string) (value.Object, []string, error) {
	if path == "" {
		return nil, nil, fmt.Errorf("path cannot be empty")
	}
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, nil, fmt.Errorf("path [%s] has an empty segment", path)
		}
	}
	switch {
	case parts[0] == IngestPrefix && len(parts) > 1:
		return d.Metadata, parts[1:], nil
	case parts[0] == SourcePrefix && len(parts) > 1:
		return d.Source, parts[1:], nil
	}
	return d.Source, parts, nil
}

// Get resolves a dotted path. Numeric segments index into lists.
func (d *Document) Get(path string) (value.Value, bool) {
	root, parts, err := d.root(path)
	if err != nil {
		return nil, false
	}
	var cur value.Value = root
	for _, p := range parts {
		next, ok := child(cur, p)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Has reports whether path resolves.
func (d *Document) Has(path string) bool {
	_, ok := d.Get(path)
	return ok
}

// Set writes v at path, creating intermediate objects as needed.
func (d *Document) Set(path string, v value.Value) error {
	root, parts, err := d.root(path)
	if err != nil {
		return err
	}
	var cur value.Value = root
	for i, p := range parts[:len(parts)-1] {
		next, ok := child(cur, p)
		if !ok {
			obj, isObj := cur.(value.Object)
			if !isObj {
				return fmt.Errorf("cannot set [%s]: [%s] is not an object", path, strings.Join(parts[:i+1], "."))
			}
			next = value.Object{}
			obj[p] = next
		}
		cur = next
	}

	last := parts[len(parts)-1]
	switch c := cur.(type) {
	case value.Object:
		c[last] = v
	case value.List:
		idx, ok := listIndex(c, last)
		if !ok {
			return fmt.Errorf("cannot set [%s]: [%s] is not a valid list index", path, last)
		}
		c[idx] = v
	default:
		return fmt.Errorf("cannot set [%s]: parent is of type [%s]", path, kindName(cur))
	}
	return nil
}

// Remove deletes the entry at path and returns it. Only object entries can
// be removed.
func (d *Document) Remove(path string) (value.Value, bool) {
	root, parts, err := d.root(path)
	if err != nil {
		return nil, false
	}
	var cur value.Value = root
	for _, p := range parts[:len(parts)-1] {
		next, ok := child(cur, p)
		if !ok {
			return nil, false
		}
		cur = next
	}
	obj, ok := cur.(value.Object)
	if !ok {
		return nil, false
	}
	last := parts[len(parts)-1]
	v, ok := obj[last]
	if ok {
		delete(obj, last)
	}
	return v, ok
}

func child(v value.Value, key string) (value.Value, bool) {
	switch c := v.(type) {
	case value.Object:
		next, ok := c[key]
		return next, ok
	case value.List:
		idx, ok := listIndex(c, key)
		if !ok {
			return nil, false
		}
		return c[idx], true
	}
	return nil, false
}

func listIndex(l value.List, key string) (int, bool) {
	idx, err := strconv.Atoi(key)
	if err != nil || idx < 0 || idx >= len(l) {
		return 0, false
	}
	return idx, true
}

func kindName(v value.Value) string {
	if v == nil {
		return "null"
	}
	return v.Kind().String()
}
