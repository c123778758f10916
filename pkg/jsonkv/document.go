package jsonkv

import (
	"bytes"
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Document is the in-memory content of one backing file: an ordered mapping
// from field name to JSON value.
//
// Values are nil, bool, float64, string, []any or map[string]any. Field order
// is insertion order and survives a write/load round trip. A Document is not
// safe for concurrent use; [Store] serializes access to the one it owns.
type Document struct {
	fields *orderedmap.OrderedMap[string, any]
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{fields: orderedmap.New[string, any]()}
}

// DocumentFrom builds a document from a plain map. Fields are added in map
// iteration order, so callers that care about order should use [Document.Set].
func DocumentFrom(m map[string]any) *Document {
	d := NewDocument()
	for k, v := range m {
		d.fields.Set(k, v)
	}

	return d
}

// Get returns the value of field. The second result is false when the field
// is absent, which is not an error.
func (d *Document) Get(field string) (any, bool) {
	return d.fields.Get(field)
}

// Set stores value under field. Existing fields keep their position.
func (d *Document) Set(field string, value any) {
	d.fields.Set(field, value)
}

// Delete removes field and reports whether it was present.
func (d *Document) Delete(field string) bool {
	_, ok := d.fields.Delete(field)

	return ok
}

// DeleteMany removes every listed field and returns how many were present.
func (d *Document) DeleteMany(fields []string) int {
	n := 0

	for _, f := range fields {
		if d.Delete(f) {
			n++
		}
	}

	return n
}

// Clear removes all fields.
func (d *Document) Clear() {
	d.fields = orderedmap.New[string, any]()
}

// Len returns the number of fields.
func (d *Document) Len() int {
	return d.fields.Len()
}

// Keys returns the field names in order.
func (d *Document) Keys() []string {
	keys := make([]string, 0, d.fields.Len())
	for pair := d.fields.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}

	return keys
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	out := NewDocument()
	for pair := d.fields.Oldest(); pair != nil; pair = pair.Next() {
		out.fields.Set(pair.Key, cloneValue(pair.Value))
	}

	return out
}

// Replace discards all current fields and takes over the content of other.
// It never merges.
func (d *Document) Replace(other *Document) {
	if other == nil {
		d.Clear()

		return
	}

	d.fields = other.Clone().fields
}

// Map returns a deep copy as a plain map.
func (d *Document) Map() map[string]any {
	m := make(map[string]any, d.fields.Len())
	for pair := d.fields.Oldest(); pair != nil; pair = pair.Next() {
		m[pair.Key] = cloneValue(pair.Value)
	}

	return m
}

// MarshalJSON encodes the document as a compact JSON object in field order.
func (d *Document) MarshalJSON() ([]byte, error) {
	return d.fields.MarshalJSON()
}

// Encode returns the on-disk form: an indented JSON object with a trailing
// newline.
func (d *Document) Encode() ([]byte, error) {
	raw, err := d.fields.MarshalJSON()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, err
	}

	buf.WriteByte('\n')

	return buf.Bytes(), nil
}

// UnmarshalJSON replaces the content with the JSON object in data. Anything
// other than an object is rejected and leaves the document unchanged.
func (d *Document) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return fmt.Errorf("%w: top-level value must be an object", ErrCorrupt)
	}

	fields := orderedmap.New[string, any]()
	if err := fields.UnmarshalJSON(trimmed); err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	d.fields = fields

	return nil
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}

		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}

		return s
	default:
		return v
	}
}
