// Command notesync is a terminal client for the notes sync engine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/notesync/internal/classify"
	"github.com/mschirtzinger/notesync/internal/config"
	"github.com/mschirtzinger/notesync/internal/logging"
	"github.com/mschirtzinger/notesync/internal/ui"
)

var (
	configPath string
	overrides  struct {
		driver   string
		dsn      string
		user     string
		logLevel string
	}

	appConfig *config.Config
	appLog    *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "notesync",
	Short: "Notes, folders and AI prompts with optimistic sync",
	Long: `notesync keeps a local cache of your notes, folders and prompts in sync
with a remote store.

Every change is applied to the cache immediately and confirmed with the
remote store in the background. Transient failures are retried with
exponential backoff; anything that still fails is rolled back and reported.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.Init(os.Stdout)

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if overrides.driver != "" {
			cfg.Remote.Driver = overrides.driver
		}
		if overrides.dsn != "" {
			cfg.Remote.DSN = overrides.dsn
		}
		if overrides.user != "" {
			cfg.Session.UserID = overrides.user
		}
		if overrides.logLevel != "" {
			cfg.Log.Level = overrides.logLevel
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		log, err := logging.New(cfg.Log, os.Stderr)
		if err != nil {
			return err
		}
		appConfig, appLog = cfg, log
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if appLog != nil {
			_ = appLog.Close()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "data", Title: "Notes, folders and prompts:"},
		&cobra.Group{ID: "ai", Title: "AI:"},
		&cobra.Group{ID: "ops", Title: "Operations:"},
	)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "config file (default: .notesync/notesync.toml or ~/.config/notesync)")
	pf.StringVar(&overrides.driver, "remote", "", "remote store driver: memory, sqlite, libsql, pgx or postgres")
	pf.StringVar(&overrides.dsn, "dsn", "", "remote store DSN (file path for sqlite)")
	pf.StringVar(&overrides.user, "user", "", "user id to act as")
	pf.StringVar(&overrides.logLevel, "log-level", "", "log level: debug, info, warn or error")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		// Classified errors were already shown through the notification sink.
		if _, ok := classify.As(err); !ok {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
		}
		os.Exit(1)
	}
}
