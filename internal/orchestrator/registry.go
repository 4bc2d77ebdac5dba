package orchestrator

import (
	"context"
	"slices"
	"sync"

	"github.com/pkg/errors"

	"github.com/soyeahso/botrelay/internal/chatconfig"
	"github.com/soyeahso/botrelay/internal/llm"
	"github.com/soyeahso/botrelay/internal/logging"
)

// ErrUnknownType is returned by Load for an unregistered orchestrator type.
var ErrUnknownType = errors.New("unknown orchestrator")

// DefaultType is the alias resolved when a config names no type.
const DefaultType = "default"

// Deps are the shared services orchestrators are built with.
type Deps struct {
	LLM llm.Client
	Log *logging.Logger
}

// Factory builds an orchestrator from its config.
type Factory func(cfg chatconfig.ChatConfig, deps Deps) (Orchestrator, error)

// Registry builds orchestrators by type and caches them by config name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	aliases   map[string]string
	cache     map[string]Orchestrator
	deps      Deps
	log       *logging.Logger
}

// NewRegistry creates a registry with the completion and echo types.
// "default" resolves to completion when an LLM is configured, else echo.
func NewRegistry(deps Deps) *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		aliases:   make(map[string]string),
		cache:     make(map[string]Orchestrator),
		deps:      deps,
		log:       deps.Log.Sub("orchestrator"),
	}
	r.Register(TypeCompletion, NewCompletion)
	r.Register(TypeEcho, NewEcho)
	if deps.LLM != nil {
		r.Alias(DefaultType, TypeCompletion)
	} else {
		r.Alias(DefaultType, TypeEcho)
	}
	return r
}

// Register adds a factory under typ.
func (r *Registry) Register(typ string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typ] = f
}

// Alias makes name resolve to the factory registered as typ.
func (r *Registry) Alias(name, typ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[name] = typ
}

// Has reports whether typ (or an alias of it) is registered.
func (r *Registry) Has(typ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factoryLocked(typ)
	return ok
}

func (r *Registry) factoryLocked(typ string) (Factory, bool) {
	if f, ok := r.factories[typ]; ok {
		return f, true
	}
	if target, ok := r.aliases[typ]; ok {
		f, ok := r.factories[target]
		return f, ok
	}
	return nil, false
}

// Types returns the registered type names and aliases, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories)+len(r.aliases))
	for t := range r.factories {
		out = append(out, t)
	}
	for a := range r.aliases {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// Load returns the orchestrator for cfg, building it on first use. The
// config's "type" selects the factory; a missing type means "default".
func (r *Registry) Load(cfg chatconfig.ChatConfig) (Orchestrator, error) {
	name := cfg.Name()
	typ := cfg.String("type", DefaultType)

	r.mu.RLock()
	o, ok := r.cache[name]
	f, known := r.factoryLocked(typ)
	r.mu.RUnlock()
	if ok {
		return o, nil
	}
	if !known {
		return nil, errors.Wrapf(ErrUnknownType, "type %q for %s", typ, name)
	}

	o, err := f(cfg, r.deps)
	if err != nil {
		return nil, errors.Wrapf(err, "building orchestrator %s", name)
	}

	r.mu.Lock()
	r.cache[name] = o
	r.mu.Unlock()
	r.log.Debug().Str("name", name).Str("type", typ).Msg("orchestrator loaded")
	return o, nil
}

// Reset drops every cached orchestrator so the next Load sees fresh config.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.cache)
}

// Info describes an orchestrator offered to web chat users.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Pattern     string `json:"pattern"`
	Default     bool   `json:"default"`
}

// Public lists the chat configs that are orchestrators of a registered type
// and not marked "public: false". defaultName is flagged as the default.
func (r *Registry) Public(ctx context.Context, configs *chatconfig.Cache, defaultName string) ([]Info, error) {
	names, err := configs.Available(ctx)
	if err != nil {
		return nil, err
	}
	out := []Info{}
	for _, name := range names {
		cfg, err := configs.Get(ctx, name)
		if err != nil {
			r.log.Warn().Err(err).Str("config", name).Msg("skipping unreadable chat config")
			continue
		}
		typ := cfg.String("type", "")
		if typ == "" || !r.Has(typ) || !cfg.Bool("public", true) {
			continue
		}
		out = append(out, Info{
			Name:        name,
			Description: cfg.String("description", ""),
			Pattern:     typ,
			Default:     name == defaultName,
		})
	}
	return out, nil
}
