package identity_store //nolint:revive // var-naming: using underscores for domain clarity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNone Kind = iota
	KindString
	KindNumber
	KindBool
)

// Value is a scalar field value: string, number or boolean. The zero Value
// holds nothing and is always blank.
type Value struct {
	kind Kind
	str  string
	num  float64
	flag bool
}

func String(s string) Value  { return Value{kind: KindString, str: s} }
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value      { return Value{kind: KindBool, flag: b} }

func (v Value) Kind() Kind { return v.kind }

// String renders the value the way merge compares it for blankness.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.flag)
	default:
		return ""
	}
}

// Blank reports whether v carries no usable observation: absent, or a
// string form that is empty after trimming.
func (v Value) Blank() bool {
	return v.kind == KindNone || strings.TrimSpace(v.String()) == ""
}

// Interface returns the Go value behind v, nil for the zero Value.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.flag
	default:
		return nil
	}
}

func (v Value) Equal(o Value) bool {
	return v == o
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON accepts any JSON value. Objects and arrays are kept as
// their compact JSON text so nothing from an imported document is lost.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty field value")
	}
	switch data[0] {
	case 'n':
		*v = Value{}
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return err
		}
		*v = String(buf.String())
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = Number(n)
	}
	return nil
}

// Fields is an insertion-ordered mapping of attribute name to Value. The
// zero Fields is an empty mapping ready to use.
type Fields struct {
	keys   []string
	values map[string]Value
}

// FieldsOf builds Fields from alternating key, value pairs.
func FieldsOf(pairs ...any) Fields {
	var f Fields
	for i := 0; i+1 < len(pairs); i += 2 {
		key, _ := pairs[i].(string)
		switch val := pairs[i+1].(type) {
		case Value:
			f.Set(key, val)
		case string:
			f.Set(key, String(val))
		case bool:
			f.Set(key, Bool(val))
		case int:
			f.Set(key, Number(float64(val)))
		case float64:
			f.Set(key, Number(val))
		}
	}
	return f
}

func (f Fields) Len() int { return len(f.keys) }

func (f Fields) Get(key string) (Value, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Set inserts or overwrites key. Overwriting keeps the original position.
func (f *Fields) Set(key string, v Value) {
	if f.values == nil {
		f.values = make(map[string]Value)
	}
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = v
}

// Keys returns the keys in insertion order.
func (f Fields) Keys() []string {
	return append([]string(nil), f.keys...)
}

// Range calls fn for each entry in insertion order until fn returns false.
func (f Fields) Range(fn func(key string, v Value) bool) {
	for _, k := range f.keys {
		if !fn(k, f.values[k]) {
			return
		}
	}
}

func (f Fields) Clone() Fields {
	out := Fields{keys: append([]string(nil), f.keys...), values: make(map[string]Value, len(f.values))}
	for k, v := range f.values {
		out.values[k] = v
	}
	return out
}

// Equal compares content only; insertion order is irrelevant.
func (f Fields) Equal(o Fields) bool {
	if len(f.keys) != len(o.keys) {
		return false
	}
	for k, v := range f.values {
		if ov, ok := o.values[k]; !ok || !ov.Equal(v) {
			return false
		}
	}
	return true
}

// Map returns a plain map copy, mostly for rendering.
func (f Fields) Map() map[string]any {
	out := make(map[string]any, len(f.keys))
	for k, v := range f.values {
		out[k] = v.Interface()
	}
	return out
}

func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := f.values[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object preserving document key order. Null reads
// as an empty mapping.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	*f = Fields{}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("fields must be a JSON object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		f.Set(key, v)
	}
	_, err = dec.Token()
	return err
}

// Merge folds an incoming observation into existing fields. The result
// starts as a copy of existing; an incoming value overwrites its key only
// when it is not blank. Nothing is ever removed.
func Merge(existing, incoming Fields) Fields {
	out := existing.Clone()
	incoming.Range(func(k string, v Value) bool {
		if !v.Blank() {
			out.Set(k, v)
		}
		return true
	})
	return out
}
