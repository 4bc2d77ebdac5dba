// Package cli implements the botrelay command line.
package cli

import (
	"cmp"
	"context"

	"github.com/spf13/cobra"

	"github.com/soyeahso/botrelay/internal/config"
	"github.com/soyeahso/botrelay/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	// set before any subcommand runs
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "botrelay",
		Short: "Relay web chat conversations to bot orchestrators",
		Long: "botrelay accepts web chat activities, hands prompts to a configured orchestrator " +
			"through a checkpointed pipeline, and streams the replies back over websockets.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			p, err := config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				p.Config = cfgFile
			}
			paths = p
			// one-shot commands stay quiet unless asked
			log = logging.New(cmd.ErrOrStderr(), cmp.Or(logLevel, "warn"))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $BOTRELAY_HOME/config.yaml or ~/.botrelay/config.yaml)")
	flags.StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(
		newServeCmd(),
		newConfigCmd(),
		newPipelineCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().ExecuteContext(context.Background())
}
