package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/soyeahso/botrelay/internal/logging"
)

// Registry manages plugin lifecycle.
type Registry struct {
	mu      sync.Mutex
	plugins map[string]Plugin
	order   []string // registration order
	started []string // initialised, in init order
	api     API
	log     *logging.Logger
}

// NewRegistry creates a plugin registry that hands api to every plugin.
func NewRegistry(api API, log *logging.Logger) *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
		api:     api,
		log:     log.Sub("plugins"),
	}
}

// Register adds a plugin without initialising it.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[p.ID()]; exists {
		return fmt.Errorf("plugin already registered: %s", p.ID())
	}
	r.plugins[p.ID()] = p
	r.order = append(r.order, p.ID())
	r.log.Debug().Str("id", p.ID()).Msg("plugin registered")
	return nil
}

// InitAll initialises plugins in registration order. If one fails, the
// plugins already initialised are closed again.
func (r *Registry) InitAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		if r.isStarted(id) {
			continue
		}
		api := r.api
		api.Log = r.log.Sub(id)
		if err := r.plugins[id].Init(ctx, api); err != nil {
			r.closeLocked()
			return fmt.Errorf("init plugin %s: %w", id, err)
		}
		r.started = append(r.started, id)
		r.log.Info().Str("id", id).Msg("plugin initialised")
	}
	return nil
}

func (r *Registry) isStarted(id string) bool {
	for _, s := range r.started {
		if s == id {
			return true
		}
	}
	return false
}

// CloseAll closes initialised plugins in reverse order.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

func (r *Registry) closeLocked() {
	for i := len(r.started) - 1; i >= 0; i-- {
		id := r.started[i]
		if err := r.plugins[id].Close(); err != nil {
			r.log.Error().Err(err).Str("id", id).Msg("plugin close error")
		}
	}
	r.started = nil
}

// List returns the registered plugin ids in registration order.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
