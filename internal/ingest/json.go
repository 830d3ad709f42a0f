package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/roach88/ingestfilter/internal/value"
)

func newJSON(_ Factories, tag string, cfg value.Object) (Processor, error) {
	r := NewConfigReader("json", tag, cfg)
	field := r.String("field")
	_, hasTarget := cfg["target_field"]
	targetField := r.OptionalString("target_field", field)
	addToRoot := r.Bool("add_to_root", false)
	if addToRoot && hasTarget {
		r.Fail("target_field", "cannot set a target field while also setting [add_to_root] to true")
	}
	if err := r.Err(); err != nil {
		return nil, err
	}

	return ProcessorFunc(func(_ context.Context, doc *Document) (*Document, error) {
		v, ok := doc.Get(field)
		if !ok {
			return nil, notPresent(field)
		}
		s, ok := v.(value.String)
		if !ok {
			return nil, fmt.Errorf("field [%s] of type [%s] cannot be cast to [string]", field, kindName(v))
		}
		if !gjson.Valid(string(s)) {
			return nil, fmt.Errorf("field [%s] does not contain valid JSON", field)
		}
		parsed := fromGJSON(gjson.Parse(string(s)))

		if !addToRoot {
			if err := doc.Set(targetField, parsed); err != nil {
				return nil, err
			}
			return doc, nil
		}
		obj, ok := parsed.(value.Object)
		if !ok {
			return nil, fmt.Errorf("cannot add non-map fields to root of document")
		}
		for k, elem := range obj {
			doc.Source[k] = elem
		}
		return doc, nil
	}), nil
}

// fromGJSON converts a parsed gjson result into the value domain. Numbers
// written without a fraction or exponent stay integers when they fit.
func fromGJSON(res gjson.Result) value.Value {
	switch res.Type {
	case gjson.Null:
		return value.Null{}
	case gjson.False:
		return value.Bool(false)
	case gjson.True:
		return value.Bool(true)
	case gjson.String:
		return value.String(res.Str)
	case gjson.Number:
		if !strings.ContainsAny(res.Raw, ".eE") {
			if n, err := strconv.ParseInt(res.Raw, 10, 64); err == nil {
				return value.Int(n)
			}
		}
		return value.Float(res.Num)
	}

	if res.IsArray() {
		list := value.List{}
		res.ForEach(func(_, elem gjson.Result) bool {
			list = append(list, fromGJSON(elem))
			return true
		})
		return list
	}
	obj := value.Object{}
	res.ForEach(func(key, elem gjson.Result) bool {
		obj[key.Str] = fromGJSON(elem)
		return true
	})
	return obj
}
