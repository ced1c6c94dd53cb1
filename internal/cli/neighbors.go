package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"triage/internal/domain"
)

var (
	neighborsText string
	neighborsK    int
	neighborsJSON bool
)

var neighborsCmd = &cobra.Command{
	Use:   "neighbors",
	Short: "Show the nearest records in the semantic memory",
	Long: `Embed a text and list the nearest vector records with their cosine
distance, marking the first one as a hit or miss under the configured
threshold. Nothing is written.

Examples:
  triage neighbors -q "Outlook will not start"
  triage neighbors -q "VPN drops" -k 10 --json`,
	Args: cobra.NoArgs,
	RunE: runNeighbors,
}

func init() {
	rootCmd.AddCommand(neighborsCmd)
	neighborsCmd.Flags().StringVarP(&neighborsText, "query", "q", "", "ticket text (required)")
	neighborsCmd.Flags().IntVarP(&neighborsK, "top-k", "k", 5, "number of neighbors")
	neighborsCmd.Flags().BoolVar(&neighborsJSON, "json", false, "output as JSON")
	neighborsCmd.MarkFlagRequired("query")
}

type neighborJSON struct {
	ID         string            `json:"id"`
	Distance   float64           `json:"distance"`
	Category   string            `json:"category"`
	Provenance domain.Provenance `json:"provenance"`
	Text       string            `json:"text"`
}

func runNeighbors(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, openOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	vector, err := a.embedder.Embed(ctx, neighborsText)
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}
	neighbors, err := a.memory.Query(ctx, vector, neighborsK)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if neighborsJSON {
		results := make([]neighborJSON, len(neighbors))
		for i, n := range neighbors {
			results[i] = neighborJSON{
				ID:         n.Record.ID,
				Distance:   n.Distance,
				Category:   n.Record.Category,
				Provenance: n.Record.Provenance,
				Text:       n.Record.Text,
			}
		}
		return writeJSON(out, results)
	}

	if len(neighbors) == 0 {
		fmt.Fprintln(out, "Memory is empty.")
		return nil
	}
	threshold := a.cfg.Cache.Threshold
	verdict := "miss"
	if neighbors[0].Distance <= threshold {
		verdict = "hit"
	}
	fmt.Fprintf(out, "Nearest distance %.4f, threshold %.2f: cache %s\n\n", neighbors[0].Distance, threshold, verdict)
	for i, n := range neighbors {
		fmt.Fprintf(out, "%2d. %.4f  %-10s %-8s %s\n", i+1, n.Distance, n.Record.Category, n.Record.Provenance, n.Record.Text)
	}
	return nil
}
