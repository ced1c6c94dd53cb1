package port

import (
	"context"

	"triage/internal/domain"
)

// TicketStore is the durable record of tickets and their status.
// Update enforces the status machine and returns domain.InvalidStateError on
// an illegal transition.
type TicketStore interface {
	Create(ctx context.Context, text string) (domain.Ticket, error)

	Get(ctx context.Context, id string) (domain.Ticket, error)

	Update(ctx context.Context, id string, upd domain.TicketUpdate) (domain.Ticket, error)

	// ListByStatus returns tickets in creation order. limit <= 0 means no limit.
	ListByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.Ticket, error)

	Close() error
}
