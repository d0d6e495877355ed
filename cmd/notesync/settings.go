package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/ui"
)

var settingsCmd = &cobra.Command{
	Use:     "settings",
	GroupID: "data",
	Short:   "Show or change your settings",
	Long: `Show your settings, or change them with flags.

Examples:
  notesync settings
  notesync settings --model claude-opus-4-1
  notesync settings --default-folder <folder-id>
  notesync settings --clear-default-folder`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch domain.SettingsPatch
		if cmd.Flags().Changed("model") {
			v, _ := cmd.Flags().GetString("model")
			patch.AIModel = &v
		}
		if cmd.Flags().Changed("default-folder") {
			v, _ := cmd.Flags().GetString("default-folder")
			patch.DefaultFolderID = &v
		}
		patch.ClearDefaultFolder, _ = cmd.Flags().GetBool("clear-default-folder")
		if patch.ClearDefaultFolder && patch.DefaultFolderID != nil {
			return fmt.Errorf("--default-folder and --clear-default-folder are mutually exclusive")
		}
		change := patch.AIModel != nil || patch.DefaultFolderID != nil || patch.ClearDefaultFolder

		return withApp(cmd.Context(), func(a *app) error {
			ctx := cmd.Context()
			folders, err := a.eng.Folders(ctx)
			if err != nil {
				return err
			}
			s, err := a.eng.Settings(ctx)
			if err != nil {
				return err
			}
			if change {
				if s, err = a.eng.SettingsMutations().Update(ctx, patch); err != nil {
					return err
				}
				fmt.Printf("%s Settings saved\n", ui.RenderPass("✓"))
			}

			folder := ui.RenderMuted("none")
			if s.DefaultFolderID != nil {
				folder = *s.DefaultFolderID
				for _, f := range folders {
					if f.ID == *s.DefaultFolderID {
						folder = f.Name
					}
				}
			}
			fmt.Printf("%s %s\n", ui.RenderAccent("AI model:      "), s.AIModel)
			fmt.Printf("%s %s\n", ui.RenderAccent("Default folder:"), folder)
			return nil
		})
	},
}

func init() {
	settingsCmd.Flags().String("model", "", "AI model used for prompts (default "+domain.DefaultAIModel+")")
	settingsCmd.Flags().String("default-folder", "", "folder new notes are filed in")
	settingsCmd.Flags().Bool("clear-default-folder", false, "file new notes as Unfiled")
	rootCmd.AddCommand(settingsCmd)
}
