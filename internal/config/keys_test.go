package config

import (
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigPath(t *testing.T) {
	tests := []struct {
		input   string
		want    []string
		wantErr bool
	}{
		{"gateway", []string{"gateway"}, false},
		{"gateway.port", []string{"gateway", "port"}, false},
		{"stream.redis.addr", []string{"stream", "redis", "addr"}, false},
		{"chatConfigs.inline.support.bot-name", []string{"chatConfigs", "inline", "support", "bot-name"}, false},
		{"", nil, true},
		{"gateway..port", nil, true},
		{".gateway", nil, true},
		{"gateway.", nil, true},
		{"session.store", nil, true},
		{"Gateway.port", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseConfigPath(tt.input)
			if tt.wantErr {
				var ce *ConfigError
				assert.ErrorAs(t, err, &ce)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSectionsMatchConfigKeys(t *testing.T) {
	var tags []string
	typ := reflect.TypeOf(Config{})
	for i := range typ.NumField() {
		name, _, _ := strings.Cut(typ.Field(i).Tag.Get("yaml"), ",")
		tags = append(tags, name)
	}
	assert.ElementsMatch(t, tags, Sections)
}

func TestGetValueAtPath(t *testing.T) {
	root := map[string]any{
		"gateway": map[string]any{
			"port":      18790,
			"rateLimit": map[string]any{"burst": 5},
		},
		"llm": "ollama",
	}

	tests := []struct {
		name   string
		path   []string
		want   any
		wantOK bool
	}{
		{"leaf", []string{"gateway", "port"}, 18790, true},
		{"nested leaf", []string{"gateway", "rateLimit", "burst"}, 5, true},
		{"section", []string{"gateway", "rateLimit"}, map[string]any{"burst": 5}, true},
		{"missing leaf", []string{"gateway", "bind"}, nil, false},
		{"missing section", []string{"store", "driver"}, nil, false},
		{"through scalar", []string{"llm", "provider"}, nil, false},
		{"empty path", nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := GetValueAtPath(root, tt.path)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetValueAtPath(t *testing.T) {
	root := map[string]any{
		"gateway": map[string]any{"port": 18790},
		"llm":     "ollama",
	}

	SetValueAtPath(root, []string{"gateway", "port"}, 9999)
	SetValueAtPath(root, []string{"stream", "redis", "addr"}, "redis:6379")
	SetValueAtPath(root, []string{"llm", "provider"}, "ollama")

	assert.Equal(t, map[string]any{
		"gateway": map[string]any{"port": 9999},
		"stream":  map[string]any{"redis": map[string]any{"addr": "redis:6379"}},
		"llm":     map[string]any{"provider": "ollama"},
	}, root)
}

func TestUnsetValueAtPath(t *testing.T) {
	root := map[string]any{
		"gateway": map[string]any{"port": 18790, "bind": "loopback"},
		"stream":  map[string]any{"redis": map[string]any{"addr": "redis:6379"}},
	}

	assert.True(t, UnsetValueAtPath(root, []string{"gateway", "port"}))
	assert.Equal(t, map[string]any{"bind": "loopback"}, root["gateway"])

	// emptied parents go too
	assert.True(t, UnsetValueAtPath(root, []string{"stream", "redis", "addr"}))
	_, ok := root["stream"]
	assert.False(t, ok)

	assert.False(t, UnsetValueAtPath(root, []string{"gateway", "port"}))
	assert.False(t, UnsetValueAtPath(root, []string{"store", "driver"}))
	assert.False(t, UnsetValueAtPath(root, []string{"gateway", "bind", "x"}))
	assert.False(t, UnsetValueAtPath(root, nil))
}
