package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${NAME} references. Unknown names stay as written.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		if v, ok := os.LookupEnv(envRef.FindStringSubmatch(ref)[1]); ok {
			return v
		}
		return ref
	})
}

// expandSecrets resolves ${ENV} references in credential fields.
func expandSecrets(cfg *Config) {
	for _, field := range []*string{&cfg.Stream.Redis.Password, &cfg.LLM.APIKey, &cfg.LLM.Endpoint} {
		*field = expandEnv(*field)
	}
}

// readConfig returns the file contents, or nil when it does not exist.
func readConfig(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func parseError(err error) error {
	return &ConfigError{Message: "failed to parse config: " + err.Error()}
}

// Load builds the effective Config: defaults, then the file at path if
// present, then BOTRELAY_* overrides.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := readConfig(path)
	if err != nil {
		return cfg, err
	}
	if data != nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, parseError(err)
		}
		applyDefaults(&cfg)
		expandSecrets(&cfg)
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// LoadRaw returns the file as a generic map for key-path editing. A missing
// or empty file yields an empty map.
func LoadRaw(path string) (map[string]any, error) {
	raw := map[string]any{}
	data, err := readConfig(path)
	if err != nil || data == nil {
		return raw, err
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, parseError(err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// envOverrides maps BOTRELAY_* variables onto config fields. They win over
// the file.
var envOverrides = []struct {
	name  string
	apply func(cfg *Config, v string)
}{
	{"BOTRELAY_PORT", func(cfg *Config, v string) {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}},
	{"BOTRELAY_BIND", func(cfg *Config, v string) { cfg.Gateway.Bind = v }},
	{"BOTRELAY_PUBLIC_URL", func(cfg *Config, v string) { cfg.Gateway.PublicURL = v }},
	{"BOTRELAY_LOG_LEVEL", func(cfg *Config, v string) { cfg.Logging.Level = strings.ToLower(v) }},
	{"BOTRELAY_STORE_DRIVER", func(cfg *Config, v string) { cfg.Store.Driver = v }},
	{"BOTRELAY_STREAM_MODE", func(cfg *Config, v string) { cfg.Stream.Mode = v }},
	{"BOTRELAY_STREAM_BUS", func(cfg *Config, v string) { cfg.Stream.Bus = v }},
	{"BOTRELAY_REDIS_ADDR", func(cfg *Config, v string) { cfg.Stream.Redis.Addr = v }},
	{"BOTRELAY_LLM_PROVIDER", func(cfg *Config, v string) { cfg.LLM.Provider = v }},
	{"BOTRELAY_LLM_ENDPOINT", func(cfg *Config, v string) { cfg.LLM.Endpoint = v }},
	{"BOTRELAY_LLM_MODEL", func(cfg *Config, v string) { cfg.LLM.Model = v }},
}

func applyEnvOverrides(cfg *Config) {
	for _, o := range envOverrides {
		if v := strings.TrimSpace(os.Getenv(o.name)); v != "" {
			o.apply(cfg, v)
		}
	}
}
