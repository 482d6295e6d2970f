package rules

import "strings"

const SplitToken = "."

// Resolve walks entity by a dotted path. It returns false when a segment is
// missing or an intermediate value is not a map.
func Resolve(entity map[string]any, path string) (any, bool) {
	if entity == nil || path == "" {
		return nil, false
	}

	var current any = entity
	for _, segment := range strings.Split(path, SplitToken) {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	default:
		return nil, false
	}
}
