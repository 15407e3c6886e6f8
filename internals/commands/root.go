// Package commands holds the funnel CLI: serve, migrate and plans.
package commands

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"funnel_backend/internals/configs"
)

// NewRootCmd builds the command tree. Config and logger are resolved once,
// before any subcommand runs.
func NewRootCmd() *cobra.Command {
	var (
		cfg configs.Config
		log zerolog.Logger
	)

	root := &cobra.Command{
		Use:           "funnel",
		Short:         "Donation funnel backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg = configs.LoadEnv()
			log = configs.NewLogger(cfg.AppEnv)
		},
	}

	env := func() (configs.Config, zerolog.Logger) { return cfg, log }
	root.AddCommand(
		newServeCmd(env),
		newMigrateCmd(env),
		newPlansCmd(),
	)
	return root
}

type envFunc func() (configs.Config, zerolog.Logger)
