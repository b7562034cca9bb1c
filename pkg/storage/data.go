package storage

import (
	"encoding/json"
	"fmt"
)

// encodeData serializes an idea payload. nil payloads encode as JSON null.
func encodeData(data any) ([]byte, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return b, nil
}

// decodeData deserializes an idea payload into JSON-native Go values
// (map[string]any, []any, float64, string, bool, nil).
func decodeData(b []byte) (any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return v, nil
}

// normalizeData converts arbitrary caller values into the same JSON-native
// shape every engine returns, so memory and badger stores agree on types.
func normalizeData(data any) (any, error) {
	if data == nil {
		return nil, nil
	}
	b, err := encodeData(data)
	if err != nil {
		return nil, err
	}
	return decodeData(b)
}

// copyData deep-copies a JSON-native value.
func copyData(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = copyData(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = copyData(val)
		}
		return out
	default:
		return v
	}
}
