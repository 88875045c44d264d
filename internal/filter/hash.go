package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Hash is a JSON object that keeps its keys in insertion order. Filter
// requests are decoded into Hash values so compiled SQL is deterministic and
// knockout merging can scan entries in the order the client sent them.
//
// Values held by a Hash are nil, bool, json.Number (or Go numbers when built
// in code), string, []any or *Hash.
type Hash struct {
	keys   []string
	values map[string]any
}

// NewHash returns an empty Hash.
func NewHash() *Hash {
	return &Hash{values: make(map[string]any)}
}

// HashOf builds a Hash from alternating key/value arguments.
func HashOf(pairs ...any) *Hash {
	if len(pairs)%2 != 0 {
		panic("filter.HashOf: odd number of arguments")
	}
	h := NewHash()
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("filter.HashOf: key %v is not a string", pairs[i]))
		}
		h.Set(key, pairs[i+1])
	}
	return h
}

// Len returns the number of entries.
func (h *Hash) Len() int {
	if h == nil {
		return 0
	}
	return len(h.keys)
}

// Keys returns the keys in insertion order.
func (h *Hash) Keys() []string {
	if h == nil {
		return nil
	}
	out := make([]string, len(h.keys))
	copy(out, h.keys)
	return out
}

// Get returns the value stored under key.
func (h *Hash) Get(key string) (any, bool) {
	if h == nil {
		return nil, false
	}
	v, ok := h.values[key]
	return v, ok
}

// Has reports whether key is present.
func (h *Hash) Has(key string) bool {
	_, ok := h.Get(key)
	return ok
}

// Set stores value under key, keeping the original position of existing keys.
func (h *Hash) Set(key string, value any) {
	if h.values == nil {
		h.values = make(map[string]any)
	}
	if _, ok := h.values[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.values[key] = value
}

// Delete removes key.
func (h *Hash) Delete(key string) {
	if h == nil {
		return
	}
	if _, ok := h.values[key]; !ok {
		return
	}
	delete(h.values, key)
	for i, k := range h.keys {
		if k == key {
			h.keys = append(h.keys[:i], h.keys[i+1:]...)
			break
		}
	}
}

// Each calls fn for every entry in order, stopping at the first error.
func (h *Hash) Each(fn func(key string, value any) error) error {
	if h == nil {
		return nil
	}
	for _, k := range h.keys {
		if err := fn(k, h.values[k]); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy.
func (h *Hash) Clone() *Hash {
	if h == nil {
		return nil
	}
	out := NewHash()
	for _, k := range h.keys {
		out.Set(k, cloneValue(h.values[k]))
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case *Hash:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// MarshalJSON writes the entries in order.
func (h *Hash) MarshalJSON() ([]byte, error) {
	if h == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range h.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(h.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving key order.
func (h *Hash) UnmarshalJSON(data []byte) error {
	v, err := Decode(data)
	if err != nil {
		return err
	}
	decoded, ok := v.(*Hash)
	if !ok {
		return fmt.Errorf("expected a JSON object, got %T", v)
	}
	*h = *decoded
	return nil
}

// Decode parses arbitrary JSON into Hash-based values. Numbers are kept as
// json.Number so integers and decimals survive untouched.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			h := NewHash()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("invalid object key %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				h.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return h, nil
		case '[':
			items := make([]any, 0)
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				items = append(items, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return items, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	default:
		return t, nil
	}
}
