package cache

import (
	"encoding/json"
	"sort"
)

// canonicalJSON serializes v with map keys sorted at every nesting depth
// and no insignificant whitespace, per §4.D's fingerprint recipe.
// encoding/json already sorts keys for map[string]T at the top level of
// a single Marshal call, but nested map[string]any values are not
// guaranteed to come out sorted across separate encodings, so the value
// is first walked and rebuilt as an ordered structure.
func canonicalJSON(v any) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}

// normalize round-trips v through JSON to fold it into
// map[string]any/[]any/primitive form, then rebuilds maps as
// sorted-key ordered pair lists so Marshal emits a deterministic order.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return sortValue(decoded), nil
}

func sortValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make([]orderedPair, 0, len(keys))
		for _, k := range keys {
			ordered = append(ordered, orderedPair{Key: k, Value: sortValue(val[k])})
		}
		return orderedMap(ordered)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sortValue(item)
		}
		return out
	default:
		return val
	}
}

type orderedPair struct {
	Key   string
	Value any
}

// orderedMap marshals as a JSON object preserving the slice's order,
// which sortValue has already sorted by key.
type orderedMap []orderedPair

func (m orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, pair := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(pair.Key)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(pair.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}
