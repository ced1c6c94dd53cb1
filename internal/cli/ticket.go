package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"triage/internal/domain"
)

var (
	ticketJSON bool
	listStatus string
	listLimit  int
)

var getCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), openOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		ticket, err := a.service.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if ticketJSON {
			return writeJSON(cmd.OutOrStdout(), ticket)
		}
		printTicket(cmd.OutOrStdout(), ticket)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tickets in a status",
	Long: `List tickets in a status, oldest first.

Examples:
  triage list --status failed
  triage list --status pending --limit 20 --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, ok := domain.ParseStatus(listStatus)
		if !ok {
			return fmt.Errorf("unknown status %q", listStatus)
		}
		a, err := openApp(cmd.Context(), openOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		tickets, err := a.tickets.ListByStatus(cmd.Context(), status, listLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if ticketJSON {
			return writeJSON(out, tickets)
		}
		if len(tickets) == 0 {
			fmt.Fprintf(out, "No %s tickets.\n", status)
			return nil
		}
		for _, t := range tickets {
			fmt.Fprintf(out, "%6s  %-20s %-12s %s\n", t.ID, t.Status, t.Category, t.Text)
		}
		return nil
	},
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback ID CATEGORY",
	Short: "Correct the category of a classified ticket",
	Long: `Correct the category of a classified ticket. The vector record behind
the ticket is relabelled in place, so similar tickets get the corrected
category from now on.

Examples:
  triage feedback 12 Access`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), openOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		ticket, err := a.service.Feedback(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if ticketJSON {
			return writeJSON(cmd.OutOrStdout(), ticket)
		}
		printTicket(cmd.OutOrStdout(), ticket)
		return nil
	},
}

var resubmitCmd = &cobra.Command{
	Use:   "resubmit ID",
	Short: "Retry a failed ticket as a new ticket",
	Long: `Create a new ticket with the text of a failed one. The failed ticket is
kept for the record. The command returns once the new ticket is classified.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), openOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		fresh, err := a.service.Resubmit(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		a.service.Wait()
		if fresh, err = a.service.Get(cmd.Context(), fresh.ID); err != nil {
			return err
		}
		if ticketJSON {
			return writeJSON(cmd.OutOrStdout(), fresh)
		}
		printTicket(cmd.OutOrStdout(), fresh)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{getCmd, listCmd, feedbackCmd, resubmitCmd} {
		c.Flags().BoolVar(&ticketJSON, "json", false, "output as JSON")
		rootCmd.AddCommand(c)
	}
	listCmd.Flags().StringVar(&listStatus, "status", string(domain.StatusPending), "status to list")
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum number of tickets (0 = all)")
}
