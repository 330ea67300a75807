package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	FieldID    = "_id"
	FieldTitle = "title"
	FieldText  = "text"
)

// Record is one dataset line kept as its raw JSON object bytes. Fields are read
// with gjson and written with sjson, so key order, formatting and every field
// the pipeline does not touch survive as they were read.
type Record struct {
	raw []byte
}

// ParseRecord copies line into a Record. line must hold a single JSON object.
func ParseRecord(line []byte) (Record, error) {
	if !gjson.ValidBytes(line) {
		return Record{}, fmt.Errorf("%w: malformed JSON", ErrInvalid)
	}
	if !gjson.ParseBytes(line).IsObject() {
		return Record{}, fmt.Errorf("%w: record must be a JSON object", ErrInvalid)
	}
	return Record{raw: bytes.Clone(line)}, nil
}

// Bytes returns the encoded object. The zero Record encodes as {}.
func (r Record) Bytes() []byte {
	if len(r.raw) == 0 {
		return []byte("{}")
	}
	return r.raw
}

func (r Record) Get(key string) gjson.Result {
	return gjson.GetBytes(r.Bytes(), gjson.Escape(key))
}

// String returns the string value stored under key. A missing key or a
// non-string value is an ErrInvalid.
func (r Record) String(key string) (string, error) {
	res := r.Get(key)
	if !res.Exists() {
		return "", fmt.Errorf("%w: record has no %q field", ErrInvalid, key)
	}
	if res.Type != gjson.String {
		return "", fmt.Errorf("%w: field %q is not a string", ErrInvalid, key)
	}
	return res.String(), nil
}

// With returns a copy of r with v stored under key. An existing key keeps its
// position; a new key is appended.
func (r Record) With(key string, v any) (Record, error) {
	value, err := marshalValue(v)
	if err != nil {
		return Record{}, fmt.Errorf("set %q: %w", key, err)
	}
	return r.WithRaw(key, value)
}

// WithRaw is With for a value that is already encoded JSON.
func (r Record) WithRaw(key string, value []byte) (Record, error) {
	out, err := sjson.SetRawBytes(bytes.Clone(r.Bytes()), gjson.Escape(key), value)
	if err != nil {
		return Record{}, fmt.Errorf("set %q: %w", key, err)
	}
	return Record{raw: out}, nil
}

// marshalValue encodes v without HTML escaping so text round-trips as written.
func marshalValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
