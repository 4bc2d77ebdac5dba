package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, DefaultPort, cfg.Gateway.Port)
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
	assert.Equal(t, 2.0, cfg.Gateway.RateLimit.PerSecond)
	assert.Equal(t, 5, cfg.Gateway.RateLimit.Burst)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "pretty", cfg.Logging.ConsoleStyle)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "hub", cfg.Stream.Mode)
	assert.Equal(t, "gochannel", cfg.Stream.Bus)
	assert.Equal(t, "botrelay", cfg.Stream.Redis.Group)
	assert.Equal(t, DefaultStreamTopic, cfg.Stream.Topic)
	assert.Equal(t, DefaultPipelineTopic, cfg.Pipeline.Topic)
	assert.Equal(t, DefaultRefreshSeconds, cfg.ChatConfigs.RefreshSeconds)
	assert.Equal(t, "none", cfg.LLM.Provider)
	assert.True(t, cfg.Pipeline.SuggestionsEnabled())
	assert.False(t, cfg.Pipeline.Sentiment)
}

func TestLoad(t *testing.T) {
	t.Run("missing file gives defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Defaults(), cfg)
	})

	t.Run("empty file gives defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, ""))
		require.NoError(t, err)
		assert.Equal(t, Defaults(), cfg)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "{{invalid yaml"))
		var cerr *ConfigError
		require.ErrorAs(t, err, &cerr)
		assert.Contains(t, cerr.Message, "failed to parse config")
	})

	t.Run("unreadable path", func(t *testing.T) {
		_, err := Load(t.TempDir())
		assert.Error(t, err)
	})
}

func TestLoadSections(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
gateway:
  port: 9999
  bind: lan
  publicUrl: https://relay.example.com
  allowedOrigins:
    - https://chat.example.com
logging:
  level: debug
  consoleStyle: json
stream:
  mode: bus
  bus: redis
  redis:
    addr: redis:6379
pipeline:
  suggestions: false
  sentiment: true
chatConfigs:
  dir: /etc/botrelay/chats
  inline:
    support:
      type: echo
llm:
  provider: ollama
  model: llama3
`))
	require.NoError(t, err)

	gw := cfg.Gateway
	assert.Equal(t, 9999, gw.Port)
	assert.Equal(t, "lan", gw.Bind)
	assert.Equal(t, "https://relay.example.com", gw.PublicURL)
	assert.Equal(t, []string{"https://chat.example.com"}, gw.AllowedOrigins)
	assert.Equal(t, 5, gw.RateLimit.Burst, "unset nested field keeps its default")

	assert.Equal(t, LoggingConfig{Level: "debug", ConsoleStyle: "json"}, cfg.Logging)

	assert.Equal(t, "bus", cfg.Stream.Mode)
	assert.Equal(t, "redis", cfg.Stream.Bus)
	assert.Equal(t, "redis:6379", cfg.Stream.Redis.Addr)
	assert.Equal(t, "botrelay", cfg.Stream.Redis.Group)

	assert.False(t, cfg.Pipeline.SuggestionsEnabled())
	assert.True(t, cfg.Pipeline.Sentiment)

	assert.Equal(t, "/etc/botrelay/chats", cfg.ChatConfigs.Dir)
	assert.Equal(t, "echo", cfg.ChatConfigs.Inline["support"]["type"])
	assert.Equal(t, DefaultRefreshSeconds, cfg.ChatConfigs.RefreshSeconds)

	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "llama3", cfg.LLM.Model)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "gateway:\n  port: 9000\nstore:\n  driver: sqlite\n")
	env := map[string]string{
		"BOTRELAY_PORT":         "12345",
		"BOTRELAY_BIND":         "lan",
		"BOTRELAY_LOG_LEVEL":    "TRACE",
		"BOTRELAY_STREAM_MODE":  "bus",
		"BOTRELAY_STREAM_BUS":   "redis",
		"BOTRELAY_REDIS_ADDR":   "cache:6380",
		"BOTRELAY_STORE_DRIVER": " memory ",
		"BOTRELAY_LLM_PROVIDER": "ollama",
		"BOTRELAY_LLM_MODEL":    "llama3",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 12345, cfg.Gateway.Port, "env wins over the file")
	assert.Equal(t, "lan", cfg.Gateway.Bind)
	assert.Equal(t, "trace", cfg.Logging.Level)
	assert.Equal(t, "bus", cfg.Stream.Mode)
	assert.Equal(t, "redis", cfg.Stream.Bus)
	assert.Equal(t, "cache:6380", cfg.Stream.Redis.Addr)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "llama3", cfg.LLM.Model)
}

func TestLoadEnvBadPortIgnored(t *testing.T) {
	t.Setenv("BOTRELAY_PORT", "not-a-port")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Gateway.Port)
}

func TestLoadExpandsSecrets(t *testing.T) {
	t.Setenv("BOTRELAY_TEST_REDIS_PW", "s3cret")
	t.Setenv("BOTRELAY_TEST_OLLAMA", "gpu-box")

	cfg, err := Load(writeConfig(t, `
stream:
  redis:
    password: ${BOTRELAY_TEST_REDIS_PW}
llm:
  endpoint: http://${BOTRELAY_TEST_OLLAMA}:11434
  apiKey: ${BOTRELAY_TEST_UNSET_XYZ}
`))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Stream.Redis.Password)
	assert.Equal(t, "http://gpu-box:11434", cfg.LLM.Endpoint)
	assert.Equal(t, "${BOTRELAY_TEST_UNSET_XYZ}", cfg.LLM.APIKey)
}

func TestRawRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	raw, err := LoadRaw(path)
	require.NoError(t, err)
	assert.Empty(t, raw)

	SetValueAtPath(raw, []string{"gateway", "port"}, 9999)
	require.NoError(t, SaveRaw(path, raw))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadRaw(path)
	require.NoError(t, err)
	val, ok := GetValueAtPath(loaded, []string{"gateway", "port"})
	assert.True(t, ok)
	assert.Equal(t, 9999, val)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Gateway.Port)
}

func TestLoadRawMalformed(t *testing.T) {
	_, err := LoadRaw(writeConfig(t, "gateway: [unclosed"))
	assert.Error(t, err)
}
