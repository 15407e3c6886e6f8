package commands

import (
	"github.com/spf13/cobra"

	database "funnel_backend/internals/databases"
)

func newMigrateCmd(env envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the funnel tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := env()
			db, err := database.ConnectDB(cfg, log)
			if err != nil {
				return err
			}
			defer database.Close(db)

			if err := database.Migrate(db); err != nil {
				return err
			}
			log.Info().Msg("migration done")
			return nil
		},
	}
}
