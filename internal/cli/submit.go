package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	submitJSON  bool
	submitAsync bool
)

var submitCmd = &cobra.Command{
	Use:   "submit TEXT",
	Short: "Submit a ticket for classification",
	Long: `Create a ticket and classify it. By default the command waits for the
classification; with --async it prints the ticket id as soon as the ticket is
stored and leaves classification to 'triage worker'.

Examples:
  triage submit "Laptop screen stays black after update"
  triage submit --json "Cannot reach the VPN from home"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().BoolVar(&submitJSON, "json", false, "output as JSON")
	submitCmd.Flags().BoolVar(&submitAsync, "async", false, "store the ticket and return without classifying")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	text := strings.TrimSpace(strings.Join(args, " "))

	a, err := openApp(ctx, openOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if submitAsync {
		ticket, err := a.tickets.Create(ctx, text)
		if err != nil {
			return err
		}
		if submitJSON {
			return writeJSON(out, ticket)
		}
		fmt.Fprintf(out, "Ticket %s stored as %s\n", ticket.ID, ticket.Status)
		return nil
	}

	outcome, err := a.service.SubmitAndWait(ctx, text)
	if submitJSON && outcome.Ticket.ID != "" {
		if jerr := writeJSON(out, toOutcomeJSON(outcome)); jerr != nil {
			return jerr
		}
		return err
	}
	if outcome.Ticket.ID != "" {
		printTicket(out, outcome.Ticket)
		if outcome.Nearest != nil {
			fmt.Fprintf(out, "  Nearest:  %.4f (threshold %.2f)\n", outcome.Nearest.Distance, a.cfg.Cache.Threshold)
		}
	}
	return err
}
