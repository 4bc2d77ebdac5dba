package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/botrelay/internal/chatconfig"
	"github.com/soyeahso/botrelay/internal/config"
	"github.com/soyeahso/botrelay/internal/version"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the configuration summary and validation issues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, version.Info())
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:    %s\n", paths.Logs)
			fmt.Fprintln(out)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}
			printSummary(cmd.Context(), out, cfg)

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
			}
			return nil
		},
	}
}

func printSummary(ctx context.Context, out io.Writer, cfg config.Config) {
	fmt.Fprintf(out, "Gateway: port=%d bind=%s rate=%g/s burst=%d\n",
		cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.RateLimit.PerSecond, cfg.Gateway.RateLimit.Burst)

	storePath := cfg.Store.Path
	if storePath == "" && cfg.Store.Driver != "memory" {
		storePath = paths.Database()
	}
	fmt.Fprintf(out, "Store:   driver=%s %s\n", cfg.Store.Driver, storePath)

	streamLine := fmt.Sprintf("mode=%s bus=%s", cfg.Stream.Mode, cfg.Stream.Bus)
	if cfg.Stream.Bus == "redis" {
		streamLine += " redis=" + cfg.Stream.Redis.Addr
	}
	fmt.Fprintf(out, "Stream:  %s\n", streamLine)

	if cfg.LLM.Provider == "none" {
		fmt.Fprintln(out, "LLM:     (none, echo orchestrators only)")
	} else {
		fmt.Fprintf(out, "LLM:     provider=%s model=%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	}

	dir := cfg.ChatConfigs.Dir
	if dir == "" {
		dir = paths.ChatConfigs
	}
	src := chatconfig.ChainSource{chatconfig.FileSource{Dir: dir}, chatconfig.MapSource(cfg.ChatConfigs.Inline)}
	names, err := src.List(ctx)
	switch {
	case err != nil:
		fmt.Fprintf(out, "Chats:   error listing %s: %v\n", dir, err)
	case len(names) == 0:
		fmt.Fprintf(out, "Chats:   (none in %s, built-in defaults apply)\n", dir)
	default:
		fmt.Fprintf(out, "Chats:   %s\n", strings.Join(names, ", "))
	}

	fmt.Fprintf(out, "Hooks:   %d command hook(s)\n", countHooks(cfg.Hooks))
}

func countHooks(h config.HooksConfig) int {
	return len(h.ConversationStarted) + len(h.PipelineCompleted) + len(h.GatewayStart) + len(h.GatewayStop)
}
