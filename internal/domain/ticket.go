package domain

import (
	"fmt"
	"time"
)

// ApplyUpdate validates upd against the status machine and returns the
// updated ticket. Every store funnels its writes through here.
func ApplyUpdate(t Ticket, upd TicketUpdate, now time.Time) (Ticket, error) {
	if !upd.Status.Valid() {
		return Ticket{}, fmt.Errorf("invalid status %q", upd.Status)
	}
	if !t.Status.CanTransition(upd.Status) {
		return Ticket{}, &InvalidStateError{TicketID: t.ID, Status: t.Status, Op: "move to " + string(upd.Status)}
	}

	if upd.Category != "" {
		t.Category = upd.Category
	}
	if upd.VectorID != "" {
		t.VectorID = upd.VectorID
	}
	if upd.Status.Classified() && (t.Category == "" || t.VectorID == "") {
		return Ticket{}, fmt.Errorf("ticket %s: status %s requires a category and a vector record", t.ID, upd.Status)
	}
	t.Status = upd.Status
	t.Reason = upd.Reason
	t.UpdatedAt = now
	return t, nil
}

// ValidateRecord checks a record before it enters vector memory.
func ValidateRecord(r VectorRecord, dimension int) error {
	if len(r.Vector) != dimension {
		return fmt.Errorf("vector dimension mismatch: got %d, want %d", len(r.Vector), dimension)
	}
	if r.Category == "" {
		return fmt.Errorf("vector record requires a category")
	}
	if r.Provenance != ProvenanceMachine && r.Provenance != ProvenanceHuman {
		return fmt.Errorf("invalid provenance %q", r.Provenance)
	}
	return nil
}
