package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"triage/internal/adapter/store"
	"triage/internal/domain"
)

var memoryResetYes bool

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect or reset the semantic memory",
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory and ticket counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, openOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		n, err := a.memory.Count(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Embedder:        %s (dimension %d)\n", a.embedder.ModelName(), a.embedder.Dimension())
		fmt.Fprintf(out, "Threshold:       %.2f\n", a.cfg.Cache.Threshold)
		fmt.Fprintf(out, "Vector records:  %d\n", n)
		if bm, ok := a.memory.(*store.BoltVectorMemory); ok {
			byProv := bm.CountByProvenance()
			fmt.Fprintf(out, "  machine:       %d\n", byProv[domain.ProvenanceMachine])
			fmt.Fprintf(out, "  human:         %d\n", byProv[domain.ProvenanceHuman])
		}
		if a.bolt != nil {
			info, err := a.bolt.GetSchemaInfo()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Schema version:  %d\n", info.Version)
		}

		counts, ok, err := a.ticketCounts(ctx)
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintf(out, "Tickets:\n")
			for _, s := range []domain.Status{
				domain.StatusPending, domain.StatusClassifiedByCache, domain.StatusClassifiedByAI,
				domain.StatusCorrected, domain.StatusFailed,
			} {
				fmt.Fprintf(out, "  %-20s %d\n", s+":", counts[s])
			}
		}
		return nil
	},
}

var memoryResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every vector record",
	Long: `Delete every vector record and record the current embedding setup.
Needed after changing the embedding provider, model or dimension. Tickets
are kept; feedback on tickets classified before the reset is rejected
because their vector records are gone.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !memoryResetYes {
			return fmt.Errorf("refusing to reset memory without --yes")
		}
		a, err := openApp(cmd.Context(), openOptions{skipRebuildCheck: true})
		if err != nil {
			return err
		}
		defer a.Close()

		if a.bolt == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Memory backend is not persistent; nothing to reset.")
			return nil
		}
		if err := a.bolt.ClearMemory(); err != nil {
			return fmt.Errorf("failed to clear memory: %w", err)
		}
		if err := a.bolt.Migrate(a.cfg.Embedding, a.embedder.Dimension()); err != nil {
			return fmt.Errorf("failed to record embedding setup: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Memory cleared.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(memoryCmd)
	memoryCmd.AddCommand(memoryStatsCmd, memoryResetCmd)
	memoryResetCmd.Flags().BoolVar(&memoryResetYes, "yes", false, "confirm the reset")
}
