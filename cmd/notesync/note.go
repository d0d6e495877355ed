package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/ui"
)

var noteCmd = &cobra.Command{
	Use:     "note",
	GroupID: "data",
	Short:   "Create, edit and list notes",
}

var noteCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a note",
	Long: `Create a note. Tags are taken from #hashtags in the content.

Examples:
  notesync note create --title "Plan" --content "ship it #work"
  notesync note create --content "idea" --folder <folder-id>`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		content, _ := cmd.Flags().GetString("content")
		folder, _ := cmd.Flags().GetString("folder")

		in := domain.NoteInput{Title: title, Content: content}
		if folder != "" {
			in.FolderID = domain.StringPtr(folder)
		}
		return withApp(cmd.Context(), func(a *app) error {
			if _, err := a.eng.Folders(cmd.Context()); err != nil {
				return err
			}
			n, err := a.eng.NoteMutations().Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Printf("%s Created note %s\n", ui.RenderPass("✓"), n.ID)
			return nil
		})
	},
}

var noteUpdateCmd = &cobra.Command{
	Use:   "update <note-id>",
	Short: "Change a note's title or content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch domain.NotePatch
		if cmd.Flags().Changed("title") {
			v, _ := cmd.Flags().GetString("title")
			patch.Title = &v
		}
		if cmd.Flags().Changed("content") {
			v, _ := cmd.Flags().GetString("content")
			patch.Content = &v
		}
		if patch.IsEmpty() {
			return fmt.Errorf("nothing to update: pass --title or --content")
		}
		return withApp(cmd.Context(), func(a *app) error {
			if _, err := a.eng.Notes(cmd.Context()); err != nil {
				return err
			}
			n, err := a.eng.NoteMutations().Update(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			fmt.Printf("%s Updated note %s\n", ui.RenderPass("✓"), n.ID)
			return nil
		})
	},
}

var noteMoveCmd = &cobra.Command{
	Use:   "move <note-id>",
	Short: "Move a note to a folder, or out of any folder with --unfiled",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, _ := cmd.Flags().GetString("folder")
		unfiled, _ := cmd.Flags().GetBool("unfiled")
		if (folder == "") == !unfiled {
			return fmt.Errorf("pass exactly one of --folder or --unfiled")
		}
		var target *string
		if folder != "" {
			target = domain.StringPtr(folder)
		}
		return withApp(cmd.Context(), func(a *app) error {
			if _, err := a.eng.Notes(cmd.Context()); err != nil {
				return err
			}
			if _, err := a.eng.Folders(cmd.Context()); err != nil {
				return err
			}
			if _, err := a.eng.NoteMutations().Move(cmd.Context(), args[0], target); err != nil {
				return err
			}
			fmt.Printf("%s Moved note %s\n", ui.RenderPass("✓"), args[0])
			return nil
		})
	},
}

var noteDeleteCmd = &cobra.Command{
	Use:   "delete <note-id>",
	Short: "Delete a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if _, err := a.eng.Notes(cmd.Context()); err != nil {
				return err
			}
			if err := a.eng.NoteMutations().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("%s Deleted note %s\n", ui.RenderPass("✓"), args[0])
			return nil
		})
	},
}

var noteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes, newest first",
	Long: `List notes, newest first.

--since accepts a date (2025-01-31), a duration (72h) or plain words
("yesterday", "3 days ago").`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, _ := cmd.Flags().GetString("folder")
		unfiled, _ := cmd.Flags().GetBool("unfiled")
		tag, _ := cmd.Flags().GetString("tag")
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
			names := make(map[string]string, len(folders))
			for _, f := range folders {
				names[f.ID] = f.Name
			}

			shown := 0
			for _, n := range notes {
				switch {
				case folder != "" && !n.InFolder(folder):
					continue
				case unfiled && n.FolderID != nil:
					continue
				case tag != "" && !hasTag(n, tag):
					continue
				case !since.IsZero() && n.UpdatedAt.Before(since):
					continue
				}
				shown++
				title := n.Title
				if title == "" {
					title = ui.RenderMuted("(untitled)")
				}
				where := "Unfiled"
				if n.FolderID != nil {
					where = names[*n.FolderID]
				}
				fmt.Printf("%s  %s  %s  %s\n", n.ID, title,
					ui.RenderAccent(where), ui.RenderMuted(n.UpdatedAt.Local().Format("2006-01-02 15:04")))
				if len(n.Tags) > 0 {
					fmt.Printf("    %s\n", ui.RenderMuted("#"+strings.Join(n.Tags, " #")))
				}
			}
			if shown == 0 {
				fmt.Println(ui.RenderMuted("No notes."))
			}
			return nil
		})
	},
}

func hasTag(n domain.Note, tag string) bool {
	tag = strings.ToLower(strings.TrimPrefix(tag, "#"))
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func init() {
	noteCreateCmd.Flags().String("title", "", "note title")
	noteCreateCmd.Flags().String("content", "", "note content")
	noteCreateCmd.Flags().String("folder", "", "folder id")

	noteUpdateCmd.Flags().String("title", "", "new title")
	noteUpdateCmd.Flags().String("content", "", "new content")

	noteMoveCmd.Flags().String("folder", "", "target folder id")
	noteMoveCmd.Flags().Bool("unfiled", false, "remove the note from its folder")

	noteListCmd.Flags().String("folder", "", "only notes in this folder")
	noteListCmd.Flags().Bool("unfiled", false, "only notes without a folder")
	noteListCmd.Flags().String("tag", "", "only notes with this tag")
	noteListCmd.Flags().String("since", "", "only notes updated since this time")

	noteCmd.AddCommand(noteCreateCmd, noteUpdateCmd, noteMoveCmd, noteDeleteCmd, noteListCmd)
	rootCmd.AddCommand(noteCmd)
}
