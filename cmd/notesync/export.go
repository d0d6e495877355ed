package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/notesync/internal/export"
	"github.com/mschirtzinger/notesync/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export <dir>",
	GroupID: "data",
	Short:   "Write notes to a directory of Markdown files",
	Long: `Write every note to <dir> as a Markdown file with YAML front matter, one
subdirectory per folder and "Unfiled" for notes without one.

Examples:
  notesync export ./backup
  notesync export ./backup --since "last week"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sinceFlag, _ := cmd.Flags().GetString("since")
		since, err := parseSince(sinceFlag, time.Now())
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(a *app) error {
			notes, err := a.eng.Notes(cmd.Context())
			if err != nil {
				return err
			}
			folders, err := a.eng.Folders(cmd.Context())
			if err != nil {
				return err
			}
			res, err := export.Write(args[0], notes, folders, export.Options{Since: since})
			if err != nil {
				return err
			}
			fmt.Printf("%s Exported %d notes in %d folders to %s\n",
				ui.RenderPass("✓"), len(res.Files), res.Folders, res.Dir)
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().String("since", "", "only notes updated since this time")
	rootCmd.AddCommand(exportCmd)
}
