package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/notesync/internal/config"
	"github.com/mschirtzinger/notesync/internal/remote/sqlstore"
	"github.com/mschirtzinger/notesync/internal/ui"
)

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	GroupID: "ops",
	Short:   "Create or upgrade the remote store schema",
	Long: `Create or upgrade the remote store schema.

Postgres databases are migrated with the embedded migrations. SQLite and
libSQL databases get their tables created if missing; this also happens
automatically the first time any command opens them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appConfig
		if cfg.Remote.Driver == config.DriverMemory {
			fmt.Println(ui.RenderMuted("The memory remote has no schema."))
			return nil
		}
		db, err := sqlstore.Open(cmd.Context(), cfg.Remote.Driver, cfg.Remote.DSN)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		if err := db.Migrate(cmd.Context()); err != nil {
			return err
		}
		appLog.Info().Str("driver", cfg.Remote.Driver).Msg("schema up to date")
		fmt.Printf("%s Schema up to date (%s)\n", ui.RenderPass("✓"), cfg.Remote.Driver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
