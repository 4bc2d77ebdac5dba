package config

import (
	"os"
	"path/filepath"
)

const defaultBaseDir = ".botrelay"

// Paths holds resolved filesystem paths for botrelay data.
type Paths struct {
	Base        string // ~/.botrelay
	Config      string // ~/.botrelay/config.yaml
	ChatConfigs string // ~/.botrelay/chat-configs
	Logs        string // ~/.botrelay/logs
	Data        string // ~/.botrelay/data
}

// ResolvePaths computes all standard paths from the home directory.
// If BOTRELAY_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("BOTRELAY_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:        base,
		Config:      filepath.Join(base, "config.yaml"),
		ChatConfigs: filepath.Join(base, "chat-configs"),
		Logs:        filepath.Join(base, "logs"),
		Data:        filepath.Join(base, "data"),
	}, nil
}

// Database returns the default sqlite path.
func (p Paths) Database() string {
	return filepath.Join(p.Data, "botrelay.db")
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	dirs := []string{p.Base, p.ChatConfigs, p.Logs, p.Data}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}
