package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}

	validBinds := []string{"lan", "loopback", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Gateway.Bind),
		})
	}
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.customBindHost",
			Message: "required when bind: custom",
		})
	}
	if cfg.Gateway.RateLimit.PerSecond < 0 || cfg.Gateway.RateLimit.Burst < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.rateLimit",
			Message: "perSecond and burst must not be negative",
		})
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validConsoleStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	// Store validation
	validDrivers := []string{"sqlite", "memory"}
	if cfg.Store.Driver != "" && !slices.Contains(validDrivers, cfg.Store.Driver) {
		issues = append(issues, ValidationIssue{
			Path:    "store.driver",
			Message: fmt.Sprintf("must be one of %v, got %q", validDrivers, cfg.Store.Driver),
		})
	}

	// Stream validation
	validStreamModes := []string{"hub", "bus"}
	if cfg.Stream.Mode != "" && !slices.Contains(validStreamModes, cfg.Stream.Mode) {
		issues = append(issues, ValidationIssue{
			Path:    "stream.mode",
			Message: fmt.Sprintf("must be one of %v, got %q", validStreamModes, cfg.Stream.Mode),
		})
	}
	validBuses := []string{"gochannel", "redis"}
	if cfg.Stream.Bus != "" && !slices.Contains(validBuses, cfg.Stream.Bus) {
		issues = append(issues, ValidationIssue{
			Path:    "stream.bus",
			Message: fmt.Sprintf("must be one of %v, got %q", validBuses, cfg.Stream.Bus),
		})
	}
	if cfg.Stream.Bus == "redis" && cfg.Stream.Redis.Addr == "" {
		issues = append(issues, ValidationIssue{
			Path:    "stream.redis.addr",
			Message: "required when bus: redis",
		})
	}

	if cfg.ChatConfigs.RefreshSeconds < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "chatConfigs.refreshSeconds",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.ChatConfigs.RefreshSeconds),
		})
	}

	// LLM validation
	validProviders := []string{"none", "ollama"}
	if cfg.LLM.Provider != "" && !slices.Contains(validProviders, cfg.LLM.Provider) {
		issues = append(issues, ValidationIssue{
			Path:    "llm.provider",
			Message: fmt.Sprintf("must be one of %v, got %q", validProviders, cfg.LLM.Provider),
		})
	}
	if cfg.LLM.Provider == "ollama" && cfg.LLM.Model == "" {
		issues = append(issues, ValidationIssue{
			Path:    "llm.model",
			Message: "required when provider: ollama",
		})
	}

	return issues
}
