package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/ui"
)

var folderCmd = &cobra.Command{
	Use:     "folder",
	GroupID: "data",
	Short:   "Manage folders",
}

var folderCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		color, _ := cmd.Flags().GetString("color")
		return withApp(cmd.Context(), func(a *app) error {
			if _, err := a.eng.Folders(cmd.Context()); err != nil {
				return err
			}
			f, err := a.eng.FolderMutations().Create(cmd.Context(), domain.FolderInput{Name: args[0], Color: color})
			if err != nil {
				return err
			}
			fmt.Printf("%s Created folder %s (%s)\n", ui.RenderPass("✓"), f.Name, f.ID)
			return nil
		})
	},
}

var folderRenameCmd = &cobra.Command{
	Use:   "rename <folder-id> <name>",
	Short: "Rename a folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if _, err := a.eng.Folders(cmd.Context()); err != nil {
				return err
			}
			f, err := a.eng.FolderMutations().Rename(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("%s Renamed folder %s to %s\n", ui.RenderPass("✓"), f.ID, f.Name)
			return nil
		})
	},
}

var folderDeleteCmd = &cobra.Command{
	Use:   "delete <folder-id>",
	Short: "Delete a folder, moving its notes to Unfiled",
	Long: `Delete a folder. Notes in the folder are not deleted; they become unfiled.

On a terminal the command asks for confirmation first (skip with --yes) and
offers to undo the deletion afterwards. Undo puts the folder back and
re-files the notes that were moved out of it, unless they were moved
elsewhere in the meantime.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		interactive := ui.IsTerminal(os.Stdin) && ui.IsTerminal(os.Stdout)

		return withApp(cmd.Context(), func(a *app) error {
			ctx := cmd.Context()
			folders, err := a.eng.Folders(ctx)
			if err != nil {
				return err
			}
			notes, err := a.eng.Notes(ctx)
			if err != nil {
				return err
			}

			name, count := args[0], 0
			for _, f := range folders {
				if f.ID == args[0] {
					name = f.Name
				}
			}
			for _, n := range notes {
				if n.InFolder(args[0]) {
					count++
				}
			}

			if !yes && interactive {
				confirmed := false
				err := huh.NewConfirm().
					Title(fmt.Sprintf("Delete folder %q?", name)).
					Description(fmt.Sprintf("%d notes will move to Unfiled.", count)).
					Affirmative("Delete").
					Negative("Cancel").
					Value(&confirmed).
					Run()
				if err != nil {
					return err
				}
				if !confirmed {
					fmt.Println(ui.RenderMuted("Cancelled."))
					return nil
				}
			}

			if _, err := a.eng.FolderMutations().Delete(ctx, args[0]); err != nil {
				return err
			}
			if !interactive {
				return nil
			}

			undo := false
			if err := huh.NewConfirm().Title("Undo?").Affirmative("Undo").Negative("Keep deleted").Value(&undo).Run(); err != nil {
				return err
			}
			if !undo {
				return nil
			}
			_, err = a.eng.FolderMutations().Restore(ctx, args[0])
			return err
		})
	},
}

var folderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List folders with their note counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			folders, err := a.eng.Folders(cmd.Context())
			if err != nil {
				return err
			}
			notes, err := a.eng.Notes(cmd.Context())
			if err != nil {
				return err
			}
			counts := make(map[string]int)
			unfiled := 0
			for _, n := range notes {
				if n.FolderID == nil {
					unfiled++
					continue
				}
				counts[*n.FolderID]++
			}
			for _, f := range folders {
				label := f.Name
				if f.Color != "" {
					label += " " + ui.RenderMuted("("+f.Color+")")
				}
				fmt.Printf("%s  %s  %s\n", f.ID, label, ui.RenderAccent(fmt.Sprintf("%d notes", counts[f.ID])))
			}
			fmt.Printf("%s  %s\n", ui.RenderMuted("Unfiled"), ui.RenderAccent(fmt.Sprintf("%d notes", unfiled)))
			return nil
		})
	},
}

func init() {
	folderCreateCmd.Flags().String("color", "", "folder color: "+strings.Join(domain.FolderColors, ", ")+" or #rrggbb")
	folderDeleteCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	folderCmd.AddCommand(folderCreateCmd, folderRenameCmd, folderDeleteCmd, folderListCmd)
	rootCmd.AddCommand(folderCmd)
}
