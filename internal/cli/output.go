package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"triage/internal/domain"
	"triage/internal/usecase"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTicket(w io.Writer, t domain.Ticket) {
	fmt.Fprintf(w, "Ticket %s\n", t.ID)
	fmt.Fprintf(w, "  Status:   %s\n", t.Status)
	if t.Category != "" {
		fmt.Fprintf(w, "  Category: %s\n", t.Category)
	}
	if t.Reason != "" {
		fmt.Fprintf(w, "  Reason:   %s\n", t.Reason)
	}
	fmt.Fprintf(w, "  Created:  %s\n", t.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "  Updated:  %s\n", t.UpdatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "  Text:     %s\n", t.Text)
}

// outcomeJSON is the machine-readable form of a classification.
type outcomeJSON struct {
	Ticket   domain.Ticket    `json:"ticket"`
	Path     usecase.Path     `json:"path"`
	Distance *float64         `json:"nearest_distance,omitempty"`
	Examples []domain.Example `json:"examples,omitempty"`
}

func toOutcomeJSON(out usecase.Outcome) outcomeJSON {
	o := outcomeJSON{Ticket: out.Ticket, Path: out.Path, Examples: out.Examples}
	if out.Nearest != nil {
		d := out.Nearest.Distance
		o.Distance = &d
	}
	return o
}

// printFinOps prints the cost summary of a batch run.
func printFinOps(w io.Writer, s usecase.Stats, elapsed time.Duration) {
	fmt.Fprintf(w, "\nFinOps report:\n")
	fmt.Fprintf(w, "  Tickets processed: %d\n", s.Processed)
	fmt.Fprintf(w, "  Cache hits:        %d\n", s.CacheHits)
	fmt.Fprintf(w, "  LLM calls:         %d\n", s.AICalls)
	fmt.Fprintf(w, "  Failures:          %d\n", s.Failures)
	fmt.Fprintf(w, "  LLM calls saved:   %.1f%%\n", s.HitRate()*100)
	fmt.Fprintf(w, "  Elapsed:           %s\n", formatDuration(elapsed))
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
