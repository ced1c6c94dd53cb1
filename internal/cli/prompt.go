package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"triage/internal/domain"
)

var promptText string

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Render the prompt a cache miss would send",
	Long: `Render the system and user messages that would be sent to the model for
a ticket, with the nearest records from memory as few-shot examples. No
model is called and nothing is written.

Examples:
  triage prompt -q "Printer on floor 3 is jammed"`,
	Args: cobra.NoArgs,
	RunE: runPrompt,
}

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.Flags().StringVarP(&promptText, "query", "q", "", "ticket text (required)")
	promptCmd.MarkFlagRequired("query")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, openOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	var examples []domain.Example
	if k := a.cfg.Cache.FewShotK; k > 0 {
		vector, err := a.embedder.Embed(ctx, promptText)
		if err != nil {
			return fmt.Errorf("failed to embed ticket: %w", err)
		}
		neighbors, err := a.memory.Query(ctx, vector, k)
		if err != nil {
			return err
		}
		examples = domain.ExamplesFrom(neighbors)
	}

	system, user, err := a.prompt.Render(domain.ClassificationRequest{Text: promptText, Examples: examples})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "=== system ===\n%s\n\n=== user ===\n%s\n", system, user)
	return nil
}
