// Package resolve looks values up across an ordered list of sources and
// returns the first hit.
package resolve

import (
	"net/http"
	"net/url"
	"os"
	"strings"
)

// Source is one place a value may come from.
type Source interface {
	Name() string
	Lookup(key string) (any, bool)
}

// Chain evaluates sources in order.
type Chain []Source

// Lookup returns the first non-nil value found and the name of the source
// that produced it.
func (c Chain) Lookup(key string) (any, string, bool) {
	for _, s := range c {
		if s == nil {
			continue
		}
		if v, ok := s.Lookup(key); ok && v != nil {
			return v, s.Name(), true
		}
	}
	return nil, "", false
}

// Get returns the resolved value or def.
func (c Chain) Get(key string, def any) any {
	if v, _, ok := c.Lookup(key); ok {
		return v
	}
	return def
}

// String returns the resolved value as a string. Non-string values are
// treated as absent.
func (c Chain) String(key, def string) string {
	if v, _, ok := c.Lookup(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Map serves values from a decoded JSON object or a config map.
type Map struct {
	Label string
	Data  map[string]any
}

func (m Map) Name() string { return m.Label }

func (m Map) Lookup(key string) (any, bool) {
	if m.Data == nil {
		return nil, false
	}
	v, ok := m.Data[key]
	return v, ok
}

// Values serves the first value of a multi-valued map (query or route params).
type Values struct {
	Label string
	Data  url.Values
}

func (v Values) Name() string { return v.Label }

func (v Values) Lookup(key string) (any, bool) {
	vals, ok := v.Data[key]
	if !ok || len(vals) == 0 {
		return nil, false
	}
	return vals[0], true
}

// Headers serves HTTP header values, trying the key as given, lower-cased
// and title-cased before falling back to canonical form.
type Headers struct {
	Data http.Header
}

func (Headers) Name() string { return "headers" }

func (h Headers) Lookup(key string) (any, bool) {
	for _, k := range []string{key, strings.ToLower(key), titleCase(key)} {
		if vals, ok := h.Data[k]; ok && len(vals) > 0 {
			return vals[0], true
		}
	}
	if v := h.Data.Get(key); v != "" {
		return v, true
	}
	return nil, false
}

// Env serves process environment variables. The key is upper-cased, then
// retried with dashes replaced by underscores.
type Env struct{}

func (Env) Name() string { return "env" }

func (Env) Lookup(key string) (any, bool) {
	upper := strings.ToUpper(key)
	if v, ok := os.LookupEnv(upper); ok {
		return v, true
	}
	if alt := strings.ReplaceAll(upper, "-", "_"); alt != upper {
		if v, ok := os.LookupEnv(alt); ok {
			return v, true
		}
	}
	return nil, false
}

// titleCase upper-cases the first letter of each dash or space separated word.
func titleCase(s string) string {
	b := []byte(strings.ToLower(s))
	upper := true
	for i, c := range b {
		if upper && c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
		upper = c == '-' || c == ' ' || c == '_'
	}
	return string(b)
}
