// Package codec converts event and bucket documents between their in-memory
// map form and the representations the storage backends persist. Event
// payloads are Snappy-compressed JSON; bucket and user documents stay plain
// JSON because they are small and read rarely.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"
)

// MarshalDocument serializes a document to JSON. A nil document is written
// as an empty object so readers never see JSON null.
func MarshalDocument(doc map[string]any) ([]byte, error) {
	if doc == nil {
		doc = map[string]any{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("codec: failed to marshal document: %w", err)
	}
	return data, nil
}

// UnmarshalDocument parses a JSON document. Empty or missing input yields an
// empty map rather than nil.
func UnmarshalDocument(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("codec: failed to unmarshal document: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// EncodePayload serializes an event data document and compresses it with
// Snappy for storage as a BLOB.
func EncodePayload(doc map[string]any) ([]byte, error) {
	raw, err := MarshalDocument(doc)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

// DecodePayload decompresses and parses an event data document produced by
// EncodePayload.
func DecodePayload(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("codec: failed to decompress payload: %w", err)
	}
	return UnmarshalDocument(raw)
}

// CloneDocument returns a deep copy of a document. Backends that keep
// documents in memory hand out clones so callers cannot mutate stored state.
func CloneDocument(doc map[string]any) map[string]any {
	if doc == nil {
		return map[string]any{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		// Documents come from JSON in the first place, so this only
		// happens for values that were never marshalable to begin with.
		cp := make(map[string]any, len(doc))
		for k, v := range doc {
			cp[k] = v
		}
		return cp
	}
	var cp map[string]any
	if err := json.Unmarshal(raw, &cp); err != nil || cp == nil {
		cp = map[string]any{}
	}
	return cp
}
