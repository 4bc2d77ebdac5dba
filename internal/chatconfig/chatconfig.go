// Package chatconfig loads named chat configurations and caches them.
package chatconfig

import (
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/soyeahso/botrelay/internal/resolve"
)

// DefaultName is used when a request names no config.
const DefaultName = "default"

// ChatConfig is a named, loosely typed set of chat settings.
type ChatConfig map[string]any

// Name returns the config's name, falling back to its id.
func (c ChatConfig) Name() string {
	if s, ok := c["name"].(string); ok && s != "" {
		return s
	}
	if s, ok := c["id"].(string); ok && s != "" {
		return s
	}
	return "?"
}

// Has reports whether key is set in the config itself.
func (c ChatConfig) Has(key string) bool {
	_, ok := c[key]
	return ok
}

func (c ChatConfig) chain() resolve.Chain {
	return resolve.Chain{resolve.Map{Label: "config", Data: c}, resolve.Env{}}
}

// Value returns the config value for key, then the environment value for
// the upper-cased key, then def.
func (c ChatConfig) Value(key string, def any) any {
	return c.chain().Get(key, def)
}

// String returns the value as a string. Scalars are formatted.
func (c ChatConfig) String(key, def string) string {
	v := c.Value(key, nil)
	if v == nil {
		return def
	}
	switch t := v.(type) {
	case string:
		return t
	case bool, int, int64, float64:
		return fmt.Sprint(t)
	default:
		return def
	}
}

// Bool accepts true/yes/1 (case-insensitive) as true.
func (c ChatConfig) Bool(key string, def bool) bool {
	v := c.Value(key, nil)
	if v == nil {
		return def
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return ParseBool(fmt.Sprint(v))
}

// Int returns the value as an int, or def when absent or malformed.
func (c ChatConfig) Int(key string, def int) int {
	s := c.String(key, "")
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil {
			return int(f)
		}
		return def
	}
	return n
}

// Strings returns a list value. Comma separated strings are split.
func (c ChatConfig) Strings(key string) []string {
	switch t := c[key].(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, v := range t {
			out = append(out, fmt.Sprint(v))
		}
		return out
	case string:
		var out []string
		for _, p := range strings.Split(t, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}

// Clone returns a shallow copy.
func (c ChatConfig) Clone() ChatConfig {
	if c == nil {
		return ChatConfig{}
	}
	return maps.Clone(c)
}

// ParseBool reports whether s is one of true, yes or 1.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1":
		return true
	}
	return false
}
