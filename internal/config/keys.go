package config

import (
	"slices"
	"strings"
)

// Sections are the top-level keys of config.yaml.
var Sections = []string{"gateway", "logging", "store", "stream", "pipeline", "chatConfigs", "llm", "hooks"}

// ParseConfigPath splits a dotted key such as "gateway.rateLimit.burst".
// The first segment must name one of Sections.
func ParseConfigPath(raw string) ([]string, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	if slices.Contains(parts, "") {
		return nil, &ConfigError{Message: "config path contains empty segment: " + raw}
	}
	if !slices.Contains(Sections, parts[0]) {
		return nil, &ConfigError{Message: "unknown config section " + parts[0] + " (one of " + strings.Join(Sections, ", ") + ")"}
	}
	return parts, nil
}

// parent walks to the map holding the last segment of path. With create,
// missing or non-map intermediates are replaced by empty maps.
func parent(root map[string]any, path []string, create bool) (map[string]any, bool) {
	m := root
	for _, key := range path[:len(path)-1] {
		next, ok := m[key].(map[string]any)
		if !ok {
			if !create {
				return nil, false
			}
			next = map[string]any{}
			m[key] = next
		}
		m = next
	}
	return m, true
}

// GetValueAtPath returns the value stored at path.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	m, ok := parent(root, path, false)
	if !ok {
		return nil, false
	}
	v, ok := m[path[len(path)-1]]
	return v, ok
}

// SetValueAtPath stores value at path, creating intermediate maps.
func SetValueAtPath(root map[string]any, path []string, value any) {
	if len(path) == 0 {
		return
	}
	m, _ := parent(root, path, true)
	m[path[len(path)-1]] = value
}

// UnsetValueAtPath removes the value at path and any maps left empty by
// the removal. It reports whether anything was removed.
func UnsetValueAtPath(root map[string]any, path []string) bool {
	if len(path) == 0 {
		return false
	}
	m, ok := parent(root, path, false)
	if !ok {
		return false
	}
	last := path[len(path)-1]
	if _, ok := m[last]; !ok {
		return false
	}
	delete(m, last)
	if len(m) == 0 && len(path) > 1 {
		UnsetValueAtPath(root, path[:len(path)-1])
	}
	return true
}
