package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/notesync/internal/loadtest"
	"github.com/mschirtzinger/notesync/internal/ui"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "ops",
	Short:   "Stress the sync engine against a faulty in-memory remote",
	Long: `Run simulated users against an in-memory remote that fails a fraction of
calls with transient network errors, then check that the cache and the
remote store agree and that no optimistic change was left behind.

The run always uses the in-memory remote; --remote and --dsn are ignored.

Examples:
  notesync loadtest
  notesync loadtest --agents 50 --ops 100 --fault-rate 0.2`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadtest.DefaultConfig()
		cfg.Agents, _ = cmd.Flags().GetInt("agents")
		cfg.OpsPerAgent, _ = cmd.Flags().GetInt("ops")
		cfg.FaultRate, _ = cmd.Flags().GetFloat64("fault-rate")
		cfg.Latency, _ = cmd.Flags().GetDuration("latency")
		cfg.Seed, _ = cmd.Flags().GetInt64("seed")

		fmt.Printf("Running %d agents x %d mutations, fault rate %.0f%%...\n",
			cfg.Agents, cfg.OpsPerAgent, cfg.FaultRate*100)

		report, err := loadtest.Run(cmd.Context(), cfg, appLog.Logger)
		if err != nil {
			return err
		}
		report.Print(os.Stdout)

		if err := report.Err(); err != nil {
			return fmt.Errorf("consistency check failed: %w", err)
		}
		fmt.Printf("%s Cache and remote are consistent\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	d := loadtest.DefaultConfig()
	loadtestCmd.Flags().Int("agents", d.Agents, "concurrent simulated users")
	loadtestCmd.Flags().Int("ops", d.OpsPerAgent, "mutations per user")
	loadtestCmd.Flags().Float64("fault-rate", d.FaultRate, "fraction of remote calls that fail")
	loadtestCmd.Flags().Duration("latency", d.Latency, "latency added to every remote call")
	loadtestCmd.Flags().Int64("seed", d.Seed, "random seed")
	rootCmd.AddCommand(loadtestCmd)
}
