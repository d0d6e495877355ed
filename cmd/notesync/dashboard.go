package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/notesync/internal/config"
	"github.com/mschirtzinger/notesync/internal/dashboard"
	"github.com/mschirtzinger/notesync/internal/engine"
	"github.com/mschirtzinger/notesync/internal/notify"
	"github.com/mschirtzinger/notesync/internal/ui"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "ops",
	Short:   "Serve a live view of the sync engine over WebSocket",
	Long: `Serve a live view of the sync engine.

Clients connecting to ws://<addr>/ws receive notifications, telemetry,
cache operations and collection statistics as JSON messages. Collections
are reloaded from the remote store in the background, and edits to the
config file's retry policy take effect without a restart.

Stop with Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := appConfig
		log := appLog.Logger.With().Str("component", "dashboard").Logger()

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Dashboard.Addr
		}
		interval, _ := cmd.Flags().GetDuration("refresh")
		if interval <= 0 {
			interval = cfg.Dashboard.RefreshInterval
		}

		// The engine does not exist until the server is wired into it, so
		// the welcome snapshot reads it through this variable.
		var eng *engine.Engine
		server := dashboard.NewServer(dashboard.Config{
			Addr: addr,
			Log:  log,
			Welcome: func() []dashboard.Message {
				if eng == nil {
					return nil
				}
				msg, err := dashboard.NewMessage(dashboard.MessageTypeStats, dashboard.ToStatsData(eng.Stats()))
				if err != nil {
					return nil
				}
				return []dashboard.Message{msg}
			},
		})
		handler := dashboard.NewHandler(server)

		a, err := openApp(ctx, appOptions{
			sink:     notify.Multi(notify.NewTerminal(cmd.OutOrStdout()), handler),
			observer: handler,
		})
		if err != nil {
			return err
		}
		defer a.Close()
		eng = a.eng

		if err := eng.Warm(ctx); err != nil {
			log.Warn().Err(err).Msg("initial load incomplete")
		}

		if err := server.Start(); err != nil {
			return err
		}
		defer func() {
			if err := server.Stop(); err != nil {
				log.Warn().Err(err).Msg("failed to stop dashboard server")
			}
		}()

		refresher, err := engine.NewRefresher(eng, engine.RefresherConfig{Interval: interval}, func(collection string, err error) {
			handler.OnRefresh(collection, err)
			handler.BroadcastStats(eng.Stats())
		})
		if err != nil {
			return err
		}
		if err := refresher.Start(ctx); err != nil {
			return err
		}
		defer refresher.Stop()

		if cfg.File != "" {
			watcher, err := config.NewWatcher(cfg.File, func(next *config.Config, err error) {
				if err != nil {
					log.Warn().Err(err).Msg("config reload failed, keeping current settings")
					return
				}
				eng.Retry().SetPolicy(next.Retry)
				log.Info().Int("max_retries", next.Retry.MaxRetries).
					Dur("initial_delay", next.Retry.InitialDelay).
					Msg("retry policy reloaded")
			})
			if err != nil {
				return err
			}
			if err := watcher.Start(); err != nil {
				return err
			}
			defer func() { _ = watcher.Stop() }()
		}

		fmt.Printf("%s Dashboard on ws://%s/ws %s\n", ui.RenderPass("✓"), server.Addr(), ui.RenderMuted("(Ctrl+C to stop)"))

		go func() {
			ticker := time.NewTicker(5 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					handler.BroadcastStats(eng.Stats())
				}
			}
		}()

		if err := handler.WatchOpLog(ctx, eng.OpLog(), 250*time.Millisecond); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		fmt.Println(ui.RenderMuted("Stopping."))
		return nil
	},
}

func init() {
	dashboardCmd.Flags().String("addr", "", "listen address (default from config, 127.0.0.1:8090)")
	dashboardCmd.Flags().Duration("refresh", 0, "background reload interval (default from config)")
	rootCmd.AddCommand(dashboardCmd)
}
