package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultFactsField is the document field holding the annotation list.
const DefaultFactsField = "texta_facts"

// Document is one raw corpus document. Source holds the stored fields as
// decoded JSON; nested objects are addressed with dotted paths.
type Document struct {
	ID     string
	Source map[string]interface{}
}

// Field resolves a dotted path such as "text_mlp.text" against Source.
// A flat key containing dots is tried before descending.
func (d Document) Field(path string) (interface{}, bool) {
	if d.Source == nil || path == "" {
		return nil, false
	}

	if v, ok := d.Source[path]; ok {
		return v, true
	}

	var current interface{} = d.Source

	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}

		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// Text returns the string value at path. Solr multi-valued fields arrive as
// single-element arrays and are unwrapped.
func (d Document) Text(path string) (string, bool) {
	v, ok := d.Field(path)
	if !ok {
		return "", false
	}

	switch t := v.(type) {
	case string:
		return t, true
	case []interface{}:
		if len(t) == 0 {
			return "", true
		}

		s, ok := t[0].(string)

		return s, ok
	default:
		return "", false
	}
}

// RawFacts returns the annotation objects stored under field. The field may
// hold a JSON array or a JSON-encoded string of one.
func (d Document) RawFacts(field string) ([]map[string]interface{}, error) {
	v, ok := d.Field(field)
	if !ok || v == nil {
		return nil, nil
	}

	var list []interface{}

	switch t := v.(type) {
	case []interface{}:
		list = t
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}

		if err := json.Unmarshal([]byte(t), &list); err != nil {
			return nil, fmt.Errorf("decode %s: %w", field, err)
		}
	default:
		return nil, fmt.Errorf("%s has unexpected type %T", field, v)
	}

	out := make([]map[string]interface{}, 0, len(list))

	for i, item := range list {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%s[%d] has unexpected type %T", field, i, item)
		}

		out = append(out, obj)
	}

	return out, nil
}
