package extraction

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
	"github.com/yosuke-furukawa/json5/encoding/json5"

	"github.com/lewisedginton/npc_registry/internal/identity_store"
)

// Pair is one key of a flat extraction payload.
type Pair struct {
	Key   string
	Value identity_store.Value
}

// Payload is a flat key/scalar mapping in document order.
type Payload []Pair

// PayloadFromJSON reads a flat JSON object, keeping its key order. Input
// that is not strict JSON is retried as JSON5; its keys come back sorted.
// Nested objects and arrays are kept as compact JSON text.
func PayloadFromJSON(raw []byte) (Payload, error) {
	if !gjson.ValidBytes(raw) {
		var loose any
		if err := json5.Unmarshal(raw, &loose); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		m, ok := loose.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("payload must be an object, got %T", loose)
		}
		return PayloadFromMap(m), nil
	}

	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, fmt.Errorf("payload must be an object, got %s", doc.Type)
	}
	var p Payload
	doc.ForEach(func(key, value gjson.Result) bool {
		p = append(p, Pair{Key: key.String(), Value: valueOf(value)})
		return true
	})
	return p, nil
}

func valueOf(r gjson.Result) identity_store.Value {
	switch r.Type {
	case gjson.String:
		return identity_store.String(r.Str)
	case gjson.Number:
		return identity_store.Number(r.Num)
	case gjson.True, gjson.False:
		return identity_store.Bool(r.Bool())
	case gjson.JSON:
		return identity_store.String(compact(r.Raw))
	default:
		return identity_store.Value{}
	}
}

func compact(raw string) string {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return string(out)
}

// PayloadFromMap converts a decoded mapping. Keys are sorted since map
// order is undefined.
func PayloadFromMap(m map[string]any) Payload {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := make(Payload, 0, len(keys))
	for _, k := range keys {
		p = append(p, Pair{Key: k, Value: scalar(m[k])})
	}
	return p
}

func scalar(v any) identity_store.Value {
	switch t := v.(type) {
	case nil:
		return identity_store.Value{}
	case identity_store.Value:
		return t
	case string:
		return identity_store.String(t)
	case bool:
		return identity_store.Bool(t)
	case float64:
		return identity_store.Number(t)
	case float32:
		return identity_store.Number(float64(t))
	case int:
		return identity_store.Number(float64(t))
	case int64:
		return identity_store.Number(float64(t))
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return identity_store.Number(f)
		}
		return identity_store.String(t.String())
	default:
		out, err := json.Marshal(t)
		if err != nil {
			return identity_store.String(fmt.Sprint(t))
		}
		return identity_store.String(string(out))
	}
}
