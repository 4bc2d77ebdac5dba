package plugin

import (
	"context"

	"github.com/soyeahso/botrelay/internal/config"
)

// EventLog writes every lifecycle event to the debug log.
func EventLog() Plugin {
	return Func{Name: "event-log", OnInit: func(_ context.Context, api API) error {
		if api.Hooks != nil {
			api.Hooks.LogAll(api.Log)
		}
		return nil
	}}
}

// CommandHooks runs the shell commands configured for lifecycle events.
func CommandHooks(cfg config.HooksConfig) Plugin {
	return Func{Name: "command-hooks", OnInit: func(_ context.Context, api API) error {
		if api.Hooks == nil {
			return nil
		}
		if n := api.Hooks.RegisterCommands(cfg); n > 0 {
			api.Log.Info().Int("commands", n).Msg("command hooks registered")
		}
		return nil
	}}
}
