package intent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Params is an insertion-ordered parameter map. Values are string, int, bool
// or []string. The zero value is an empty map ready for Set. Copies share
// storage; use Clone before mutating a map owned by someone else.
type Params struct {
	keys []string
	vals map[string]any
}

// NewParams builds Params from alternating key/value pairs.
func NewParams(kv ...any) Params {
	var p Params
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		p.Set(k, kv[i+1])
	}
	return p
}

// Set stores v under k. An existing key keeps its position.
func (p *Params) Set(k string, v any) {
	if p.vals == nil {
		p.vals = make(map[string]any)
	}
	if _, ok := p.vals[k]; !ok {
		p.keys = append(p.keys, k)
	}
	p.vals[k] = v
}

// Delete removes k.
func (p *Params) Delete(k string) {
	if _, ok := p.vals[k]; !ok {
		return
	}
	delete(p.vals, k)
	for i, key := range p.keys {
		if key == k {
			p.keys = append(p.keys[:i:i], p.keys[i+1:]...)
			break
		}
	}
}

// Get returns the raw value stored under k.
func (p Params) Get(k string) (any, bool) {
	v, ok := p.vals[k]
	return v, ok
}

// Has reports whether k is set.
func (p Params) Has(k string) bool {
	_, ok := p.vals[k]
	return ok
}

// Len is the number of keys.
func (p Params) Len() int { return len(p.keys) }

// Keys returns the keys in insertion order.
func (p Params) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// GetString returns k as a string. Non-string values are formatted; a missing
// key yields "".
func (p Params) GetString(k string) string {
	v, ok := p.vals[k]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return strings.Join(t, "+")
	default:
		return fmt.Sprint(t)
	}
}

// GetInt returns k as an int, parsing numeric strings. ok is false when the key
// is missing or not numeric.
func (p Params) GetInt(k string) (int, bool) {
	switch t := p.vals[k].(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	default:
		return 0, false
	}
}

// GetBool returns k as a bool, parsing "true"/"false" strings.
func (p Params) GetBool(k string) bool {
	switch t := p.vals[k].(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	default:
		return false
	}
}

// GetStrings returns k as a string list. A single string becomes a one
// element list.
func (p Params) GetStrings(k string) []string {
	switch t := p.vals[k].(type) {
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case []any:
		out := make([]string, 0, len(t))
		for _, v := range t {
			out = append(out, fmt.Sprint(v))
		}
		return out
	case string:
		return []string{t}
	default:
		return nil
	}
}

// Clone returns a deep copy.
func (p Params) Clone() Params {
	var out Params
	for _, k := range p.keys {
		v := p.vals[k]
		if list, ok := v.([]string); ok {
			cp := make([]string, len(list))
			copy(cp, list)
			v = cp
		}
		out.Set(k, v)
	}
	return out
}

// String renders the map as space separated key=value pairs in key order.
func (p Params) String() string {
	var b strings.Builder
	for i, k := range p.keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strconv.Quote(p.GetString(k)))
	}
	return b.String()
}

// MarshalJSON writes an object with keys in insertion order.
func (p Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(p.vals[k])
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, keeping the document's key order. Whole
// numbers decode as int, string arrays as []string.
func (p *Params) UnmarshalJSON(data []byte) error {
	*p = Params{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("params: expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("params: expected key, got %v", tok)
		}
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("params %q: %w", key, err)
		}
		p.Set(key, fromJSON(raw))
	}
	_, err = dec.Token()
	return err
}

func fromJSON(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := strconv.Atoi(t.String()); err == nil {
			return n
		}
		f, _ := t.Float64()
		return f
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return t
			}
			out = append(out, s)
		}
		return out
	default:
		return v
	}
}
