// Package plugin installs extensions into the relay at startup. A plugin
// can subscribe to lifecycle hooks and register orchestrator types and
// post-processing agents.
package plugin

import (
	"context"

	"github.com/soyeahso/botrelay/internal/agents"
	"github.com/soyeahso/botrelay/internal/hooks"
	"github.com/soyeahso/botrelay/internal/logging"
	"github.com/soyeahso/botrelay/internal/orchestrator"
)

// Plugin is an extension initialised once when the relay starts.
type Plugin interface {
	// ID returns a unique identifier for the plugin (e.g., "event-log").
	ID() string

	// Init installs the plugin through api.
	Init(ctx context.Context, api API) error

	// Close releases whatever Init acquired.
	Close() error
}

// API is what a plugin may extend. Any field may be nil when the relay
// runs without that service.
type API struct {
	Hooks         *hooks.Manager
	Orchestrators *orchestrator.Registry
	Agents        *agents.Registry
	Log           *logging.Logger
}

// Func is a plugin with no resources to release.
type Func struct {
	Name   string
	OnInit func(ctx context.Context, api API) error
}

func (f Func) ID() string { return f.Name }

func (f Func) Init(ctx context.Context, api API) error {
	if f.OnInit == nil {
		return nil
	}
	return f.OnInit(ctx, api)
}

func (Func) Close() error { return nil }
