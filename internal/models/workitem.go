// Package models defines the data structures shared by the urdufact pipelines.
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Known field names.
const (
	FieldID           = "id"
	FieldQuestion     = "question"
	FieldAnswer       = "answer"
	FieldClaim        = "claim"
	FieldLabel        = "label"
	FieldQuestionUrdu = "question_urdu"
	FieldAnswerUrdu   = "answer_urdu"
	FieldClaimUrdu    = "claim_urdu"
	FieldLabelUrdu    = "label_urdu"
	FieldResponse     = "response"
	FieldModel        = "model"
	FieldDataset      = "dataset"
)

// ErrMissingID is returned when a record has no usable id field.
var ErrMissingID = errors.New("missing id")

// WorkItem is one dataset record. Every field read from disk is kept in its
// original order and encoding, so fields the pipelines do not know about
// survive a load/enrich/persist cycle untouched.
type WorkItem struct {
	ID string

	keys   []string
	values map[string]json.RawMessage
}

// Field is a single named value produced by a transformer.
type Field struct {
	Name  string
	Value any
}

// Enrichment is the ordered set of fields a transformer adds to an item.
type Enrichment []Field

// Get returns the value of the named field in the enrichment.
func (e Enrichment) Get(name string) (any, bool) {
	for _, f := range e {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// NewWorkItem builds an item from an id and ordered fields.
func NewWorkItem(id string, fields ...Field) (WorkItem, error) {
	item := WorkItem{ID: id, values: make(map[string]json.RawMessage)}
	raw, err := encodeValue(id)
	if err != nil {
		return WorkItem{}, err
	}
	item.set(FieldID, raw)
	for _, f := range fields {
		raw, err := encodeValue(f.Value)
		if err != nil {
			return WorkItem{}, fmt.Errorf("encode field %q: %w", f.Name, err)
		}
		item.set(f.Name, raw)
	}
	return item, nil
}

// Keys returns field names in their stored order.
func (w WorkItem) Keys() []string {
	out := make([]string, len(w.keys))
	copy(out, w.keys)
	return out
}

// Has reports whether the field exists.
func (w WorkItem) Has(name string) bool {
	_, ok := w.values[name]
	return ok
}

// Raw returns the stored JSON encoding of a field.
func (w WorkItem) Raw(name string) (json.RawMessage, bool) {
	v, ok := w.values[name]
	return v, ok
}

// Text returns a field as a string. Non-string scalars are rendered with
// their JSON text; missing or null fields yield "".
func (w WorkItem) Text(name string) string {
	raw, ok := w.values[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	return string(trimmed)
}

// Bool decodes a field as a boolean. String forms "true"/"false" are
// accepted in any case.
func (w WorkItem) Bool(name string) (bool, bool) {
	raw, ok := w.values[name]
	if !ok {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseBool(s); err == nil {
			return v, true
		}
	}
	return false, false
}

// Merge returns a copy of the item with the enrichment applied. Existing
// fields are overwritten in place, new fields are appended in order.
func (w WorkItem) Merge(e Enrichment) (WorkItem, error) {
	out := w.clone()
	for _, f := range e {
		if f.Name == FieldID {
			continue
		}
		raw, err := encodeValue(f.Value)
		if err != nil {
			return WorkItem{}, fmt.Errorf("encode field %q: %w", f.Name, err)
		}
		out.set(f.Name, raw)
	}
	return out, nil
}

func (w WorkItem) clone() WorkItem {
	out := WorkItem{
		ID:     w.ID,
		keys:   make([]string, len(w.keys)),
		values: make(map[string]json.RawMessage, len(w.values)),
	}
	copy(out.keys, w.keys)
	for k, v := range w.values {
		out.values[k] = v
	}
	return out
}

func (w *WorkItem) set(name string, raw json.RawMessage) {
	if w.values == nil {
		w.values = make(map[string]json.RawMessage)
	}
	if _, ok := w.values[name]; !ok {
		w.keys = append(w.keys, name)
	}
	w.values[name] = raw
}

// MarshalJSON writes fields in stored order. Values are not HTML escaped,
// so text stays readable when written through an encoder with
// SetEscapeHTML(false); json.Marshal escapes the result again.
func (w WorkItem) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range w.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := encodeValue(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(w.values[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, keeping key order and raw values.
func (w *WorkItem) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}

	item := WorkItem{values: make(map[string]json.RawMessage)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		item.set(key, raw)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	id, err := decodeID(item.values[FieldID])
	if err != nil {
		return err
	}
	item.ID = id
	*w = item
	return nil
}

// decodeID accepts string or numeric ids.
func decodeID(raw json.RawMessage) (string, error) {
	if raw == nil {
		return "", ErrMissingID
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", ErrMissingID
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("%w: unsupported id %s", ErrMissingID, string(raw))
}

func encodeValue(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
