package chatconfig

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when no source knows a config name.
var ErrNotFound = errors.New("chat config not found")

// Source loads a named config.
type Source interface {
	Load(ctx context.Context, name string) (ChatConfig, error)
}

// FileSource reads <Dir>/<name>.yaml or <Dir>/<name>.yml.
type FileSource struct {
	Dir string
}

func (s FileSource) Load(_ context.Context, name string) (ChatConfig, error) {
	if s.Dir == "" {
		return nil, ErrNotFound
	}
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("invalid chat config name %q", name)
	}

	for _, ext := range []string{".yaml", ".yml"} {
		data, err := os.ReadFile(filepath.Join(s.Dir, name+ext))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading chat config %s: %w", name, err)
		}

		var cfg ChatConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing chat config %s: %w", name, err)
		}
		if cfg == nil {
			cfg = ChatConfig{}
		}
		if _, ok := cfg["name"]; !ok {
			cfg["name"] = name
		}
		return cfg, nil
	}
	return nil, ErrNotFound
}

// MapSource serves configs defined inline in the process config.
type MapSource map[string]map[string]any

func (s MapSource) Load(_ context.Context, name string) (ChatConfig, error) {
	raw, ok := s[name]
	if !ok {
		return nil, ErrNotFound
	}
	cfg := ChatConfig(raw).Clone()
	if _, ok := cfg["name"]; !ok {
		cfg["name"] = name
	}
	return cfg, nil
}

// ChainSource tries each source in order, skipping ErrNotFound.
type ChainSource []Source

func (s ChainSource) Load(ctx context.Context, name string) (ChatConfig, error) {
	for _, src := range s {
		cfg, err := src.Load(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return cfg, err
	}
	return nil, ErrNotFound
}

// Lister is implemented by sources that can enumerate their config names.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// List returns the names of the yaml files in Dir.
func (s FileSource) List(_ context.Context) ([]string, error) {
	if s.Dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing chat configs: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, strings.TrimSuffix(e.Name(), ext))
		}
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

func (s MapSource) List(_ context.Context) ([]string, error) {
	return slices.Sorted(maps.Keys(s)), nil
}

// List merges the names of every source that can list.
func (s ChainSource) List(ctx context.Context) ([]string, error) {
	var names []string
	for _, src := range s {
		l, ok := src.(Lister)
		if !ok {
			continue
		}
		more, err := l.List(ctx)
		if err != nil {
			return nil, err
		}
		names = append(names, more...)
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}
