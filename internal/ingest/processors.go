package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/ingestfilter/internal/value"
)

// Builtins returns a fresh factory set with the built-in processors.
func Builtins() Factories {
	return Factories{
		"set":       newSet,
		"append":    newAppend,
		"remove":    newRemove,
		"rename":    newRename,
		"lowercase": stringFactory("lowercase", strings.ToLower),
		"uppercase": stringFactory("uppercase", strings.ToUpper),
		"trim":      stringFactory("trim", strings.TrimSpace),
		"convert":   newConvert,
		"json":      newJSON,
		"drop":      newDrop,
		"fail":      newFail,
	}
}

func notPresent(field string) error {
	return fmt.Errorf("field [%s] not present as part of path [%s]", field, field)
}

func newSet(_ Factories, tag string, cfg value.Object) (Processor, error) {
	r := NewConfigReader("set", tag, cfg)
	field := r.String("field")
	v, hasValue := r.OptionalValue("value")
	copyFrom := r.OptionalString("copy_from", "")
	override := r.Bool("override", true)
	ignoreEmpty := r.Bool("ignore_empty_value", false)
	if hasValue == (copyFrom != "") {
		r.Fail("value", "exactly one of [value] or [copy_from] must be set")
	}
	if err := r.Err(); err != nil {
		return nil, err
	}

	return ProcessorFunc(func(_ context.Context, doc *Document) (*Document, error) {
		val := v
		if copyFrom != "" {
			src, ok := doc.Get(copyFrom)
			if !ok {
				return nil, notPresent(copyFrom)
			}
			val = src
		}
		if ignoreEmpty && isEmpty(val) {
			return doc, nil
		}
		if !override {
			if existing, ok := doc.Get(field); ok && existing.Kind() != value.KindNull {
				return doc, nil
			}
		}
		if err := doc.Set(field, value.Clone(val)); err != nil {
			return nil, err
		}
		return doc, nil
	}), nil
}

func isEmpty(v value.Value) bool {
	switch val := v.(type) {
	case nil, value.Null:
		return true
	case value.String:
		return val == ""
	}
	return false
}

func newAppend(_ Factories, tag string, cfg value.Object) (Processor, error) {
	r := NewConfigReader("append", tag, cfg)
	field := r.String("field")
	raw := r.Value("value")
	allowDuplicates := r.Bool("allow_duplicates", true)
	if err := r.Err(); err != nil {
		return nil, err
	}
	values, ok := raw.(value.List)
	if !ok {
		values = value.List{raw}
	}

	return ProcessorFunc(func(_ context.Context, doc *Document) (*Document, error) {
		var list value.List
		if existing, ok := doc.Get(field); ok {
			if l, isList := existing.(value.List); isList {
				list = append(make(value.List, 0, len(l)+len(values)), l...)
			} else {
				list = value.List{existing}
			}
		}
		for _, v := range values {
			if !allowDuplicates && containsValue(list, v) {
				continue
			}
			list = append(list, value.Clone(v))
		}
		if err := doc.Set(field, list); err != nil {
			return nil, err
		}
		return doc, nil
	}), nil
}

func containsValue(list value.List, v value.Value) bool {
	for _, elem := range list {
		if value.Equal(elem, v) {
			return true
		}
	}
	return false
}

func newRemove(_ Factories, tag string, cfg value.Object) (Processor, error) {
	r := NewConfigReader("remove", tag, cfg)
	fields := r.Strings("field")
	ignoreMissing := r.Bool("ignore_missing", false)
	if err := r.Err(); err != nil {
		return nil, err
	}

	return ProcessorFunc(func(_ context.Context, doc *Document) (*Document, error) {
		for _, f := range fields {
			if _, ok := doc.Remove(f); !ok && !ignoreMissing {
				return nil, notPresent(f)
			}
		}
		return doc, nil
	}), nil
}

func newRename(_ Factories, tag string, cfg value.Object) (Processor, error) {
	r := NewConfigReader("rename", tag, cfg)
	field := r.String("field")
	target := r.String("target_field")
	ignoreMissing := r.Bool("ignore_missing", false)
	if err := r.Err(); err != nil {
		return nil, err
	}

	return ProcessorFunc(func(_ context.Context, doc *Document) (*Document, error) {
		v, ok := doc.Get(field)
		if !ok {
			if ignoreMissing {
				return doc, nil
			}
			return nil, notPresent(field)
		}
		if doc.Has(target) {
			return nil, fmt.Errorf("field [%s] already exists", target)
		}
		doc.Remove(field)
		if err := doc.Set(target, v); err != nil {
			return nil, err
		}
		return doc, nil
	}), nil
}

// stringFactory builds processors that rewrite a string field, or every
// element of a list of strings.
func stringFactory(typ string, fn func(string) string) Factory {
	return func(_ Factories, tag string, cfg value.Object) (Processor, error) {
		r := NewConfigReader(typ, tag, cfg)
		field := r.String("field")
		target := r.OptionalString("target_field", field)
		ignoreMissing := r.Bool("ignore_missing", false)
		if err := r.Err(); err != nil {
			return nil, err
		}

		return ProcessorFunc(func(_ context.Context, doc *Document) (*Document, error) {
			v, ok := doc.Get(field)
			if !ok || v.Kind() == value.KindNull {
				if ignoreMissing {
					return doc, nil
				}
				return nil, notPresent(field)
			}
			out, err := mapStrings(field, v, fn)
			if err != nil {
				return nil, err
			}
			if err := doc.Set(target, out); err != nil {
				return nil, err
			}
			return doc, nil
		}), nil
	}
}

func mapStrings(field string, v value.Value, fn func(string) string) (value.Value, error) {
	switch val := v.(type) {
	case value.String:
		return value.String(fn(string(val))), nil
	case value.List:
		out := make(value.List, len(val))
		for i, elem := range val {
			s, ok := elem.(value.String)
			if !ok {
				return nil, fmt.Errorf("field [%s] contains an element of type [%s], expected [string]", field, kindName(elem))
			}
			out[i] = value.String(fn(string(s)))
		}
		return out, nil
	}
	return nil, fmt.Errorf("field [%s] of type [%s] cannot be cast to [string]", field, kindName(v))
}

func newConvert(_ Factories, tag string, cfg value.Object) (Processor, error) {
	r := NewConfigReader("convert", tag, cfg)
	field := r.String("field")
	typ := r.String("type")
	target := r.OptionalString("target_field", field)
	ignoreMissing := r.Bool("ignore_missing", false)
	if err := r.Err(); err != nil {
		return nil, err
	}
	conv, ok := converters[typ]
	if !ok {
		return nil, &ConfigurationError{ProcessorType: "convert", Tag: tag, Property: "type", Message: fmt.Sprintf("type [%s] not supported", typ)}
	}

	return ProcessorFunc(func(_ context.Context, doc *Document) (*Document, error) {
		v, ok := doc.Get(field)
		if !ok || v.Kind() == value.KindNull {
			if ignoreMissing {
				return doc, nil
			}
			return nil, notPresent(field)
		}
		var out value.Value
		var err error
		if list, isList := v.(value.List); isList {
			converted := make(value.List, len(list))
			for i, elem := range list {
				if converted[i], err = conv(elem); err != nil {
					return nil, fmt.Errorf("field [%s]: %w", field, err)
				}
			}
			out = converted
		} else if out, err = conv(v); err != nil {
			return nil, fmt.Errorf("field [%s]: %w", field, err)
		}
		if err := doc.Set(target, out); err != nil {
			return nil, err
		}
		return doc, nil
	}), nil
}

var converters = map[string]func(value.Value) (value.Value, error){
	"integer": toInt,
	"long":    toInt,
	"float":   toFloat,
	"double":  toFloat,
	"string":  toString,
	"boolean": toBool,
	"auto":    toAuto,
}

func toInt(v value.Value) (value.Value, error) {
	switch val := v.(type) {
	case value.Int:
		return val, nil
	case value.Float:
		return value.Int(int64(val)), nil
	case value.String:
		s := strings.TrimSpace(string(val))
		if n, err := strconv.ParseInt(s, 0, 64); err == nil {
			return value.Int(n), nil
		}
		return nil, fmt.Errorf("unable to convert [%s] to integer", val)
	}
	return nil, fmt.Errorf("unable to convert value of type [%s] to integer", kindName(v))
}

func toFloat(v value.Value) (value.Value, error) {
	switch val := v.(type) {
	case value.Float:
		return val, nil
	case value.Int:
		return value.Float(val), nil
	case value.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(val)), 64)
		if err != nil {
			return nil, fmt.Errorf("unable to convert [%s] to float", val)
		}
		return value.Float(f), nil
	}
	return nil, fmt.Errorf("unable to convert value of type [%s] to float", kindName(v))
}

func toBool(v value.Value) (value.Value, error) {
	switch val := v.(type) {
	case value.Bool:
		return val, nil
	case value.String:
		switch strings.ToLower(string(val)) {
		case "true":
			return value.Bool(true), nil
		case "false":
			return value.Bool(false), nil
		}
		return nil, fmt.Errorf("[%s] is not a boolean value", val)
	}
	return nil, fmt.Errorf("unable to convert value of type [%s] to boolean", kindName(v))
}

func toString(v value.Value) (value.Value, error) {
	switch val := v.(type) {
	case value.String:
		return val, nil
	case value.Int:
		return value.String(strconv.FormatInt(int64(val), 10)), nil
	case value.Float:
		return value.String(strconv.FormatFloat(float64(val), 'f', -1, 64)), nil
	case value.Bool:
		return value.String(strconv.FormatBool(bool(val))), nil
	}
	data, err := value.MarshalJSON(v)
	if err != nil {
		return nil, err
	}
	return value.String(data), nil
}

func toAuto(v value.Value) (value.Value, error) {
	s, ok := v.(value.String)
	if !ok {
		return v, nil
	}
	for _, conv := range []func(value.Value) (value.Value, error){toInt, toFloat, toBool} {
		if out, err := conv(s); err == nil {
			return out, nil
		}
	}
	return s, nil
}

func newDrop(_ Factories, tag string, cfg value.Object) (Processor, error) {
	return ProcessorFunc(func(context.Context, *Document) (*Document, error) {
		return nil, nil
	}), nil
}

func newFail(_ Factories, tag string, cfg value.Object) (Processor, error) {
	r := NewConfigReader("fail", tag, cfg)
	msg := r.String("message")
	if err := r.Err(); err != nil {
		return nil, err
	}
	return ProcessorFunc(func(context.Context, *Document) (*Document, error) {
		return nil, &FailError{Message: msg}
	}), nil
}
