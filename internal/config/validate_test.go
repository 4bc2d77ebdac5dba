package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func issuePaths(issues []ValidationIssue) []string {
	var paths []string
	for _, i := range issues {
		paths = append(paths, i.Path)
	}
	return paths
}

func TestValidate_ValidDefaults(t *testing.T) {
	cfg := Defaults()
	issues := Validate(&cfg)
	assert.Empty(t, issues)
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()

	cfg.Gateway.Port = -1
	issues := Validate(&cfg)
	assert.NotEmpty(t, issues)
	assert.Contains(t, issues[0].Path, "gateway.port")

	cfg.Gateway.Port = 70000
	issues = Validate(&cfg)
	assert.NotEmpty(t, issues)
}

func TestValidate_ValidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Port = 0
	assert.Empty(t, Validate(&cfg))

	cfg.Gateway.Port = 65535
	assert.Empty(t, Validate(&cfg))

	cfg.Gateway.Port = 8080
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_InvalidBind(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Bind = "tailnet"
	issues := Validate(&cfg)
	assert.Contains(t, issuePaths(issues), "gateway.bind")
}

func TestValidate_CustomBindNeedsHost(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Bind = "custom"
	assert.Contains(t, issuePaths(Validate(&cfg)), "gateway.customBindHost")

	cfg.Gateway.CustomBindHost = "10.0.0.5"
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_NegativeRateLimit(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.RateLimit.Burst = -1
	assert.Contains(t, issuePaths(Validate(&cfg)), "gateway.rateLimit")
}

func TestValidate_LogLevels(t *testing.T) {
	for _, lvl := range []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"} {
		cfg := Defaults()
		cfg.Logging.Level = lvl
		assert.Empty(t, Validate(&cfg), "level %q should be valid", lvl)
	}

	cfg := Defaults()
	cfg.Logging.Level = "verbose"
	assert.Contains(t, issuePaths(Validate(&cfg)), "logging.level")
}

func TestValidate_ConsoleStyle(t *testing.T) {
	cfg := Defaults()
	cfg.Logging.ConsoleStyle = "compact"
	assert.Contains(t, issuePaths(Validate(&cfg)), "logging.consoleStyle")
}

func TestValidate_StoreDriver(t *testing.T) {
	cfg := Defaults()
	cfg.Store.Driver = "postgres"
	assert.Contains(t, issuePaths(Validate(&cfg)), "store.driver")

	cfg.Store.Driver = "memory"
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_Stream(t *testing.T) {
	cfg := Defaults()
	cfg.Stream.Mode = "sse"
	cfg.Stream.Bus = "kafka"
	paths := issuePaths(Validate(&cfg))
	assert.Contains(t, paths, "stream.mode")
	assert.Contains(t, paths, "stream.bus")
}

func TestValidate_RedisNeedsAddr(t *testing.T) {
	cfg := Defaults()
	cfg.Stream.Bus = "redis"
	cfg.Stream.Redis.Addr = ""
	assert.Contains(t, issuePaths(Validate(&cfg)), "stream.redis.addr")
}

func TestValidate_NegativeRefresh(t *testing.T) {
	cfg := Defaults()
	cfg.ChatConfigs.RefreshSeconds = -5
	assert.Contains(t, issuePaths(Validate(&cfg)), "chatConfigs.refreshSeconds")
}

func TestValidate_LLM(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.Provider = "gemini"
	assert.Contains(t, issuePaths(Validate(&cfg)), "llm.provider")

	cfg.LLM.Provider = "ollama"
	assert.Contains(t, issuePaths(Validate(&cfg)), "llm.model")

	cfg.LLM.Model = "llama3"
	assert.Empty(t, Validate(&cfg))
}

func TestValidationIssue_String(t *testing.T) {
	issue := ValidationIssue{Path: "gateway.port", Message: "bad"}
	assert.Equal(t, "gateway.port: bad", issue.String())
}
