package signature

import (
	"encoding/json"
	"sort"
)

// canonicalize produces a deterministic JSON representation of a normalized
// value. Maps are written in sorted key order.
func canonicalize(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case map[string]any:
		return canonicalizeMap(val)
	case []any:
		return canonicalizeSlice(val)
	default:
		return json.Marshal(v)
	}
}

func canonicalizeMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := []byte("{")
	for i, k := range keys {
		if i > 0 {
			result = append(result, ',')
		}

		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		result = append(result, keyBytes...)
		result = append(result, ':')

		valBytes, err := canonicalize(m[k])
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, '}')

	return result, nil
}

func canonicalizeSlice(s []any) ([]byte, error) {
	result := []byte("[")
	for i, v := range s {
		if i > 0 {
			result = append(result, ',')
		}

		valBytes, err := canonicalize(v)
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, ']')

	return result, nil
}
