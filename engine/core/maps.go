package core

import (
	"maps"

	"github.com/mohae/deepcopy"
)

// CloneMap returns a deep copy of m. A nil map yields an empty map.
func CloneMap(m map[string]any) map[string]any {
	if len(m) == 0 {
		return make(map[string]any)
	}
	if copied, ok := deepcopy.Copy(m).(map[string]any); ok {
		return copied
	}
	return maps.Clone(m)
}

// CopyMaps merges the given maps into a new map. Later maps win on conflicts.
func CopyMaps(src ...map[string]any) map[string]any {
	size := 0
	for _, m := range src {
		size += len(m)
	}
	out := make(map[string]any, size)
	for _, m := range src {
		maps.Copy(out, m)
	}
	return out
}
