package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/soyeahso/botrelay/internal/config"
)

// DefaultCommandTimeout bounds a hook command without its own timeout.
const DefaultCommandTimeout = 10 * time.Second

// CommandHandler runs entry.Command through the shell. The payload is
// written to stdin as JSON and the event name is exported as
// BOTRELAY_EVENT.
func CommandHandler(entry config.HookEntry) Handler {
	timeout := DefaultCommandTimeout
	if entry.Timeout > 0 {
		timeout = time.Duration(entry.Timeout) * time.Millisecond
	}
	return func(ctx context.Context, p Payload) error {
		input, err := json.Marshal(p)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "/bin/sh", "-c", entry.Command)
		cmd.Stdin = bytes.NewReader(input)
		cmd.Env = append(os.Environ(), "BOTRELAY_EVENT="+p.Event)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("hook command %q: %w: %s", entry.Command, err, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil
	}
}

// RegisterCommands subscribes the configured shell hooks and returns how
// many were registered.
func (m *Manager) RegisterCommands(cfg config.HooksConfig) int {
	sets := []struct {
		event   string
		entries []config.HookEntry
	}{
		{EventConversationStarted, cfg.ConversationStarted},
		{EventPipelineCompleted, cfg.PipelineCompleted},
		{EventGatewayStart, cfg.GatewayStart},
		{EventGatewayStop, cfg.GatewayStop},
	}
	n := 0
	for _, set := range sets {
		for i, entry := range set.entries {
			if entry.Command == "" {
				continue
			}
			m.On(set.event, fmt.Sprintf("command-%d", i), CommandHandler(entry))
			n++
		}
	}
	return n
}
