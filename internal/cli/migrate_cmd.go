package cli

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// MigrateCmd returns the migrate command: apply the schema and exit. Serve and
// worker also migrate on startup; this exists for deploy pipelines that want
// the schema settled before rolling processes.
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			if _, err := openDB(cfg); err != nil {
				return err
			}
			log.Info().Str("db", cfg.DBPath).Msg("migrations applied")
			return nil
		},
	}
}
