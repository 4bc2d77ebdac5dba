package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultPort           = 18790
	DefaultStreamTopic    = "botrelay.activities"
	DefaultPipelineTopic  = "botrelay.pipeline"
	DefaultRefreshSeconds = 20
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultPort
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Gateway.RateLimit.PerSecond == 0 {
		cfg.Gateway.RateLimit.PerSecond = 2
	}
	if cfg.Gateway.RateLimit.Burst == 0 {
		cfg.Gateway.RateLimit.Burst = 5
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Stream.Mode == "" {
		cfg.Stream.Mode = "hub"
	}
	if cfg.Stream.Bus == "" {
		cfg.Stream.Bus = "gochannel"
	}
	if cfg.Stream.Topic == "" {
		cfg.Stream.Topic = DefaultStreamTopic
	}
	if cfg.Stream.Redis.Addr == "" {
		cfg.Stream.Redis.Addr = "localhost:6379"
	}
	if cfg.Stream.Redis.Group == "" {
		cfg.Stream.Redis.Group = "botrelay"
	}
	if cfg.Pipeline.Topic == "" {
		cfg.Pipeline.Topic = DefaultPipelineTopic
	}
	if cfg.ChatConfigs.RefreshSeconds == 0 {
		cfg.ChatConfigs.RefreshSeconds = DefaultRefreshSeconds
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "none"
	}
}
