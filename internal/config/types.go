package config

// Config is the root configuration for botrelay.
type Config struct {
	Gateway     GatewayConfig     `yaml:"gateway,omitempty"`
	Logging     LoggingConfig     `yaml:"logging,omitempty"`
	Store       StoreConfig       `yaml:"store,omitempty"`
	Stream      StreamConfig      `yaml:"stream,omitempty"`
	Pipeline    PipelineConfig    `yaml:"pipeline,omitempty"`
	ChatConfigs ChatConfigsConfig `yaml:"chatConfigs,omitempty"`
	LLM         LLMConfig         `yaml:"llm,omitempty"`
	Hooks       HooksConfig       `yaml:"hooks,omitempty"`
}

// GatewayConfig controls the HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int             `yaml:"port,omitempty"`
	Bind           string          `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string          `yaml:"customBindHost,omitempty"`
	PublicURL      string          `yaml:"publicUrl,omitempty"` // used to build stream URLs
	AllowedOrigins []string        `yaml:"allowedOrigins,omitempty"`
	RateLimit      RateLimitConfig `yaml:"rateLimit,omitempty"`
}

// RateLimitConfig throttles activity posts per client IP.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"perSecond,omitempty"`
	Burst     int     `yaml:"burst,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// StoreConfig selects where history and pipeline checkpoints live.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" | "memory"
	Path   string `yaml:"path,omitempty"`
}

// StreamConfig selects the activity delivery transport.
type StreamConfig struct {
	Mode  string      `yaml:"mode,omitempty"` // "hub" | "bus"
	Bus   string      `yaml:"bus,omitempty"`  // "gochannel" | "redis"
	Topic string      `yaml:"topic,omitempty"`
	Redis RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig configures the redis streams backend.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	Group    string `yaml:"group,omitempty"`
	Consumer string `yaml:"consumer,omitempty"`
}

// PipelineConfig controls the conversation pipeline.
type PipelineConfig struct {
	Topic       string `yaml:"topic,omitempty"`
	Suggestions *bool  `yaml:"suggestions,omitempty"` // defaults to true
	Sentiment   bool   `yaml:"sentiment,omitempty"`
}

// SuggestionsEnabled reports whether the suggestions step runs.
func (p PipelineConfig) SuggestionsEnabled() bool {
	return p.Suggestions == nil || *p.Suggestions
}

// ChatConfigsConfig locates named chat configs.
type ChatConfigsConfig struct {
	Dir            string                    `yaml:"dir,omitempty"`
	RefreshSeconds int                       `yaml:"refreshSeconds,omitempty"`
	Inline         map[string]map[string]any `yaml:"inline,omitempty"`
}

// LLMConfig selects the model backend used by the reference orchestrator and agents.
type LLMConfig struct {
	Provider string `yaml:"provider,omitempty"` // "ollama" | "none"
	Endpoint string `yaml:"endpoint,omitempty"`
	Model    string `yaml:"model,omitempty"`
	APIKey   string `yaml:"apiKey,omitempty"`
}

// HooksConfig defines shell commands run on lifecycle events.
type HooksConfig struct {
	ConversationStarted []HookEntry `yaml:"conversationStarted,omitempty"`
	PipelineCompleted   []HookEntry `yaml:"pipelineCompleted,omitempty"`
	GatewayStart        []HookEntry `yaml:"gatewayStart,omitempty"`
	GatewayStop         []HookEntry `yaml:"gatewayStop,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}
