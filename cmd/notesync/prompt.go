package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/promptlib"
	"github.com/mschirtzinger/notesync/internal/ui"
)

var promptCmd = &cobra.Command{
	Use:     "prompt",
	GroupID: "data",
	Short:   "Manage saved AI prompts",
}

var promptCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Save a prompt",
	Long: `Save a prompt. {{title}} and {{content}} are replaced with the note's
fields when the prompt is run; a prompt without {{content}} gets the note
appended.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var in domain.PromptInput
		in.Title, _ = cmd.Flags().GetString("title")
		in.Content, _ = cmd.Flags().GetString("content")
		in.Category, _ = cmd.Flags().GetString("category")
		return withApp(cmd.Context(), func(a *app) error {
			if _, err := a.eng.Prompts(cmd.Context()); err != nil {
				return err
			}
			p, err := a.eng.PromptMutations().Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Printf("%s Saved prompt %s (%s)\n", ui.RenderPass("✓"), p.Title, p.ID)
			return nil
		})
	},
}

var promptUpdateCmd = &cobra.Command{
	Use:   "update <prompt-id>",
	Short: "Change a saved prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch domain.PromptPatch
		for name, field := range map[string]**string{
			"title":    &patch.Title,
			"content":  &patch.Content,
			"category": &patch.Category,
		} {
			if cmd.Flags().Changed(name) {
				v, _ := cmd.Flags().GetString(name)
				*field = &v
			}
		}
		if patch.IsEmpty() {
			return fmt.Errorf("nothing to update: pass --title, --content or --category")
		}
		return withApp(cmd.Context(), func(a *app) error {
			if _, err := a.eng.Prompts(cmd.Context()); err != nil {
				return err
			}
			p, err := a.eng.PromptMutations().Update(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			fmt.Printf("%s Updated prompt %s\n", ui.RenderPass("✓"), p.ID)
			return nil
		})
	},
}

var promptDeleteCmd = &cobra.Command{
	Use:   "delete <prompt-id>",
	Short: "Delete a saved prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if _, err := a.eng.Prompts(cmd.Context()); err != nil {
				return err
			}
			if _, err := a.eng.HiddenPrompts(cmd.Context()); err != nil {
				return err
			}
			if err := a.eng.PromptMutations().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("%s Deleted prompt %s\n", ui.RenderPass("✓"), args[0])
			return nil
		})
	},
}

func promptVisibilityCmd(use, short string, hide bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <prompt-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				ctx := cmd.Context()
				if _, err := a.eng.Prompts(ctx); err != nil {
					return err
				}
				if _, err := a.eng.HiddenPrompts(ctx); err != nil {
					return err
				}
				mut := a.eng.PromptMutations()
				var err error
				if hide {
					err = mut.Hide(ctx, args[0])
				} else {
					err = mut.Show(ctx, args[0])
				}
				if err != nil {
					return err
				}
				fmt.Printf("%s %s prompt %s\n", ui.RenderPass("✓"), map[bool]string{true: "Hid", false: "Showing"}[hide], args[0])
				return nil
			})
		},
	}
}

var promptListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved prompts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		return withApp(cmd.Context(), func(a *app) error {
			ctx := cmd.Context()
			var prompts []domain.Prompt
			var err error
			if all {
				prompts, err = a.eng.Prompts(ctx)
			} else {
				prompts, err = a.eng.VisiblePrompts(ctx)
			}
			if err != nil {
				return err
			}
			hidden := make(map[string]bool)
			if all {
				markers, err := a.eng.HiddenPrompts(ctx)
				if err != nil {
					return err
				}
				for _, h := range markers {
					hidden[h.PromptID] = true
				}
			}

			sort.SliceStable(prompts, func(i, j int) bool { return prompts[i].Category < prompts[j].Category })
			for _, p := range prompts {
				line := fmt.Sprintf("%s  %s", p.ID, p.Title)
				if p.Category != "" {
					line += "  " + ui.RenderAccent(p.Category)
				}
				if hidden[p.ID] {
					line += "  " + ui.RenderMuted("(hidden)")
				}
				fmt.Println(line)
			}
			if len(prompts) == 0 {
				fmt.Println(ui.RenderMuted("No prompts."))
			}
			return nil
		})
	},
}

var promptImportCmd = &cobra.Command{
	Use:   "import <file.toml>",
	Short: "Import prompts from a TOML library",
	Long: `Import prompts from a TOML file of [[prompt]] tables with title, content
and an optional category. Prompts whose title already exists are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := promptlib.Load(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(a *app) error {
			existing, err := a.eng.Prompts(cmd.Context())
			if err != nil {
				return err
			}
			res := promptlib.Import(cmd.Context(), a.eng.PromptMutations(), existing, lib)
			fmt.Printf("%s Imported %d prompts", ui.RenderPass("✓"), len(res.Created))
			if len(res.Skipped) > 0 {
				fmt.Printf(", skipped %d already present", len(res.Skipped))
			}
			fmt.Println()
			if len(res.Failed) > 0 {
				return fmt.Errorf("%d prompts failed to import", len(res.Failed))
			}
			return nil
		})
	},
}

var promptExportCmd = &cobra.Command{
	Use:   "export <file.toml>",
	Short: "Write saved prompts to a TOML library",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			prompts, err := a.eng.Prompts(cmd.Context())
			if err != nil {
				return err
			}
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", args[0], err)
			}
			if err := promptlib.Encode(f, prompts); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to write %s: %w", args[0], err)
			}
			fmt.Printf("%s Wrote %d prompts to %s\n", ui.RenderPass("✓"), len(prompts), args[0])
			return nil
		})
	},
}

var promptRunCmd = &cobra.Command{
	Use:   "run <prompt-id> <note-id>",
	Short: "Run a saved prompt against a note",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			ctx := cmd.Context()
			assistant, err := a.eng.Assistant()
			if err != nil {
				return err
			}
			prompts, err := a.eng.Prompts(ctx)
			if err != nil {
				return err
			}
			notes, err := a.eng.Notes(ctx)
			if err != nil {
				return err
			}
			p, ok := findPrompt(prompts, args[0])
			if !ok {
				return fmt.Errorf("prompt %s not found", args[0])
			}
			n, ok := findNote(notes, args[1])
			if !ok {
				return fmt.Errorf("note %s not found", args[1])
			}
			out, err := assistant.Run(ctx, p, n)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		})
	},
}

func findPrompt(prompts []domain.Prompt, id string) (domain.Prompt, bool) {
	for _, p := range prompts {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Prompt{}, false
}

func findNote(notes []domain.Note, id string) (domain.Note, bool) {
	for _, n := range notes {
		if n.ID == id {
			return n, true
		}
	}
	return domain.Note{}, false
}

func init() {
	promptCreateCmd.Flags().String("title", "", "prompt title")
	promptCreateCmd.Flags().String("content", "", "prompt text")
	promptCreateCmd.Flags().String("category", "", "optional category")

	promptUpdateCmd.Flags().String("title", "", "new title")
	promptUpdateCmd.Flags().String("content", "", "new prompt text")
	promptUpdateCmd.Flags().String("category", "", "new category")

	promptListCmd.Flags().Bool("all", false, "include hidden prompts")

	promptCmd.AddCommand(
		promptCreateCmd,
		promptUpdateCmd,
		promptDeleteCmd,
		promptVisibilityCmd("hide", "Hide a prompt from the prompt list", true),
		promptVisibilityCmd("show", "Show a hidden prompt again", false),
		promptListCmd,
		promptImportCmd,
		promptExportCmd,
		promptRunCmd,
	)
	rootCmd.AddCommand(promptCmd)
}
