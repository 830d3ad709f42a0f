package definition

import (
	"bytes"
	"fmt"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ingestfilter/internal/value"
)

// ErrNoDefinitions is the message used when a document declares no pipelines.
const ErrNoDefinitions = "no pipeline definitions found"

// Parse reads a JSON or YAML definitions document. Pipelines are returned in
// source order; duplicate names are rejected. Valid JSON goes through
// ParseJSON; everything else is read as YAML.
func Parse(data []byte) ([]Definition, error) {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && gjson.ValidBytes(trimmed) {
		return ParseJSON(data)
	}
	return parseYAML(data)
}

func parseYAML(data []byte) ([]Definition, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ConfigError{Message: "parse definitions", Err: err}
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, &ConfigError{Message: ErrNoDefinitions}
	}

	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, &ConfigError{Line: doc.Line, Message: "top level must be an object of pipeline names"}
	}
	if len(doc.Content) == 0 {
		return nil, &ConfigError{Line: doc.Line, Message: ErrNoDefinitions}
	}

	defs := make([]Definition, 0, len(doc.Content)/2)
	seen := make(map[string]int, len(doc.Content)/2)
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, body := doc.Content[i], doc.Content[i+1]
		name := key.Value
		if prev, dup := seen[name]; dup {
			return nil, &ConfigError{
				Line:     key.Line,
				Pipeline: name,
				Message:  fmt.Sprintf("duplicate pipeline name, first defined on line %d", prev),
			}
		}
		seen[name] = key.Line

		procs, err := parseBody(name, body)
		if err != nil {
			return nil, err
		}
		defs = append(defs, Definition{Name: name, Processors: procs})
	}
	return defs, nil
}

func parseBody(name string, body *yaml.Node) ([]ProcessorSpec, error) {
	body = resolveAlias(body)
	if body.Kind != yaml.MappingNode {
		return nil, &ConfigError{Line: body.Line, Pipeline: name, Message: "pipeline body must be an object"}
	}

	var list *yaml.Node
	for i := 0; i+1 < len(body.Content); i += 2 {
		if body.Content[i].Value == "processors" {
			list = resolveAlias(body.Content[i+1])
		}
	}
	if list == nil {
		return nil, &ConfigError{Line: body.Line, Pipeline: name, Message: "missing required key [processors]"}
	}
	if list.Kind != yaml.SequenceNode {
		return nil, &ConfigError{Line: list.Line, Pipeline: name, Message: "[processors] must be an array"}
	}

	var procs []ProcessorSpec
	for idx, entry := range list.Content {
		entry = resolveAlias(entry)
		if entry.Kind != yaml.MappingNode || len(entry.Content) == 0 {
			return nil, &ConfigError{Line: entry.Line, Pipeline: name, Message: fmt.Sprintf("processor %d must be an object with a processor type key", idx)}
		}
		// An entry with several keys contributes one processor per key.
		for i := 0; i+1 < len(entry.Content); i += 2 {
			params, err := nodeValue(entry.Content[i+1])
			if err != nil {
				return nil, &ConfigError{Line: entry.Content[i+1].Line, Pipeline: name, Message: fmt.Sprintf("processor [%s]", entry.Content[i].Value), Err: err}
			}
			procs = append(procs, ProcessorSpec{Type: entry.Content[i].Value, Params: params})
		}
	}
	return procs, nil
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

// nodeValue converts a YAML node into the value domain. String scalars keep
// their text; other scalars are decoded by yaml and then converted.
func nodeValue(n *yaml.Node) (value.Value, error) {
	n = resolveAlias(n)
	switch n.Kind {
	case yaml.ScalarNode:
		if n.ShortTag() == "!!str" {
			return value.String(n.Value), nil
		}
		var x any
		if err := n.Decode(&x); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return value.Convert(x)
	case yaml.SequenceNode:
		list := make(value.List, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := nodeValue(c)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	case yaml.MappingNode:
		obj := make(value.Object, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := nodeValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			obj[n.Content[i].Value] = v
		}
		return obj, nil
	}
	return nil, fmt.Errorf("line %d: unsupported node kind %d", n.Line, n.Kind)
}
