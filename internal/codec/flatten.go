// Package codec holds the field codec shared by the enqueue and
// dequeue paths. The queue transport is string-only, so nested records
// are flattened into dot-delimited keys with stringified values before
// they hit the wire and expanded back afterwards.
package codec

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const keyDelimiter = "."

// Flatten collapses a nested record into a flat key/value map. Child
// keys are joined to their parent with a dot; values are coerced to
// strings, nil becoming the empty string.
func Flatten(data map[string]any) map[string]string {
	result := make(map[string]string, len(data))
	flattenInto(result, data, "")
	return result
}

func flattenInto(dst map[string]string, data map[string]any, prefix string) {
	for key, value := range data {
		flatKey := key
		if prefix != "" {
			flatKey = prefix + keyDelimiter + key
		}

		if nested, ok := value.(map[string]any); ok && len(nested) > 0 {
			flattenInto(dst, nested, flatKey)
			continue
		}

		dst[flatKey] = stringify(value)
	}
}

// Expand rebuilds the nesting that Flatten removed. Values stay
// strings; only the key structure is reconstructed.
func Expand(flat map[string]string) map[string]any {
	result := make(map[string]any, len(flat))

	for flatKey, value := range flat {
		parts := strings.Split(flatKey, keyDelimiter)
		node := result
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = value
	}

	return result
}

// MapToPairs converts a flat record into the alternating name/value
// sequence the store's hash and stream commands take. Keys are sorted
// so the output is deterministic.
func MapToPairs(flat map[string]string) []any {
	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]any, 0, len(flat)*2)
	for _, key := range keys {
		pairs = append(pairs, key, flat[key])
	}
	return pairs
}

// PairsToMap decodes an alternating name/value sequence. A trailing
// unpaired field is dropped.
func PairsToMap(pairs []string) map[string]string {
	result := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		result[pairs[i]] = pairs[i+1]
	}
	return result
}

// ValuesToMap stringifies a decoded field mapping as delivered by the
// stream transport.
func ValuesToMap(values map[string]any) map[string]string {
	result := make(map[string]string, len(values))
	for key, value := range values {
		result[key] = stringify(value)
	}
	return result
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
