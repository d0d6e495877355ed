package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/notesync/internal/engine"
	"github.com/mschirtzinger/notesync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "ops",
	Short:   "Load every collection and show the cache state",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tail, _ := cmd.Flags().GetInt("log")
		return withApp(cmd.Context(), func(a *app) error {
			start := time.Now()
			warmErr := a.eng.Warm(cmd.Context())
			elapsed := time.Since(start)

			cfg := appConfig
			fmt.Println(ui.RenderTitle("notesync status"))
			fmt.Printf("  User:    %s\n", a.sess.UserID())
			fmt.Printf("  Remote:  %s %s\n", cfg.Remote.Driver, ui.RenderMuted(cfg.Remote.DSN))
			if cfg.File != "" {
				fmt.Printf("  Config:  %s\n", cfg.File)
			}
			p := a.eng.Retry().Policy()
			fmt.Printf("  Retry:   %d retries, %s initial, %s max, x%g\n",
				p.MaxRetries, p.InitialDelay, p.MaxDelay, p.BackoffFactor)
			fmt.Printf("  Loaded in %s\n\n", elapsed.Round(time.Millisecond))

			printStats(a.eng.Stats())

			if tail > 0 {
				entries := a.eng.OpLog().Tail(tail)
				if len(entries) > 0 {
					fmt.Println()
					fmt.Println(ui.RenderTitle("Recent cache operations"))
					for _, e := range entries {
						fmt.Printf("  %s\n", ui.RenderMuted(e.String()))
					}
				}
			}
			return warmErr
		})
	},
}

func printStats(stats []engine.CollectionStats) {
	for _, s := range stats {
		var state string
		switch {
		case s.State.Err != nil:
			state = ui.RenderFail("failed: " + s.State.Err.Error())
		case s.State.Loading:
			state = ui.RenderWarn("loading")
		case s.State.Loaded:
			state = ui.RenderPass("loaded " + s.State.LoadedAt.Local().Format("15:04:05"))
		default:
			state = ui.RenderMuted("not loaded")
		}
		line := fmt.Sprintf("  %-10s %5d  %s", s.Collection, s.Count, state)
		if s.State.Pending > 0 {
			line += "  " + ui.RenderWarn(fmt.Sprintf("%d pending", s.State.Pending))
		}
		fmt.Println(line)
	}
}

func init() {
	statusCmd.Flags().Int("log", 10, "number of recent cache operations to show")
	rootCmd.AddCommand(statusCmd)
}
