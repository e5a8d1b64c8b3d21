package schema

import (
	"encoding/json"
	"time"
)

// timeTag marks an encoded timestamp. JSON has no timestamp type, so
// time.Time values travel as {"__time": "<RFC3339Nano>"} on disk and on the wire.
const timeTag = "__time"

// EncodeValue prepares a document value for JSON, tagging timestamps.
func EncodeValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return map[string]any{timeTag: t.UTC().Format(time.RFC3339Nano)}
	case *time.Time:
		if t == nil {
			return nil
		}
		return map[string]any{timeTag: t.UTC().Format(time.RFC3339Nano)}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = EncodeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = EncodeValue(val)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = EncodeValue(val)
		}
		return out
	default:
		return v
	}
}

// DecodeValue reverses EncodeValue on a value produced by json.Unmarshal.
func DecodeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 1 {
			if s, ok := t[timeTag].(string); ok {
				if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
					return ts
				}
			}
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = DecodeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = DecodeValue(val)
		}
		return out
	default:
		return v
	}
}

// MarshalDocument encodes a document, preserving timestamps.
func MarshalDocument(doc map[string]any) ([]byte, error) {
	return json.Marshal(EncodeValue(doc))
}

// UnmarshalDocument decodes bytes produced by MarshalDocument.
func UnmarshalDocument(b []byte) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	doc, _ := DecodeValue(raw).(map[string]any)
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// Normalize deep-copies a document into plain JSON types (maps, slices,
// float64, string, bool) while keeping timestamps as time.Time.
func Normalize(doc map[string]any) (map[string]any, error) {
	b, err := MarshalDocument(doc)
	if err != nil {
		return nil, err
	}
	return UnmarshalDocument(b)
}
