package gate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Fingerprint computes the deterministic cache key for a provider call.
// The request is normalized to canonical JSON (map keys sorted, no
// insignificant whitespace) so identical logical requests always map to
// the same key regardless of field ordering.
func Fingerprint(provider string, request interface{}) (string, error) {
	normalized, err := canonicalJSON(request)
	if err != nil {
		return "", fmt.Errorf("failed to normalize request for fingerprint: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write(normalized)
	return provider + ":" + hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalJSON marshals a value with all object keys sorted at every
// nesting level. encoding/json already sorts map keys, so the value is
// round-tripped through generic maps to normalize struct field order
// and formatting too.
func canonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	return marshalCanonical(generic)
}

func marshalCanonical(v interface{}) ([]byte, error) {
	switch value := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(value))
		for k := range value {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			valJSON, err := marshalCanonical(value[k])
			if err != nil {
				return nil, err
			}
			out = append(out, keyJSON...)
			out = append(out, ':')
			out = append(out, valJSON...)
		}
		return append(out, '}'), nil

	case []interface{}:
		out := []byte{'['}
		for i, item := range value {
			if i > 0 {
				out = append(out, ',')
			}
			itemJSON, err := marshalCanonical(item)
			if err != nil {
				return nil, err
			}
			out = append(out, itemJSON...)
		}
		return append(out, ']'), nil

	default:
		return json.Marshal(value)
	}
}
