package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:     "ask [question]",
	GroupID: "ai",
	Short:   "Ask the AI assistant a question",
	Long: `Ask the AI assistant a question. With no arguments the question is read
from standard input.

Examples:
  notesync ask "summarize the GTD method in three bullets"
  cat draft.md | notesync ask`,
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		if question == "" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read question: %w", err)
			}
			question = string(data)
		}
		if strings.TrimSpace(question) == "" {
			return fmt.Errorf("no question given")
		}
		return withApp(cmd.Context(), func(a *app) error {
			assistant, err := a.eng.Assistant()
			if err != nil {
				return err
			}
			out, err := assistant.Ask(cmd.Context(), question)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}
