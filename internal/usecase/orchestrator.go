package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"triage/internal/domain"
	"triage/internal/metrics"
	"triage/internal/port"
)

// Path tells how a ticket left the pending state.
type Path string

const (
	PathCache  Path = "cache"
	PathAI     Path = "ai"
	PathFailed Path = "failed"
)

// Settings are the tunables of the cache decision.
type Settings struct {
	// Threshold is the largest cosine distance that still counts as a hit.
	Threshold float64
	// FewShotK is the number of nearest records sent as examples on a miss.
	FewShotK int
}

// Outcome describes one classification.
type Outcome struct {
	Ticket   domain.Ticket
	Path     Path
	Nearest  *domain.Neighbor
	Examples []domain.Example
}

// Orchestrator decides between the semantic cache and the classification
// provider, and feeds human corrections back into the memory. It keeps no
// state between calls.
type Orchestrator struct {
	embedder   port.Embedder
	memory     port.VectorMemory
	classifier port.Classifier
	tickets    port.TicketStore
	categories domain.CategorySet
	settings   Settings
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewOrchestrator wires the orchestrator. logger and m may be nil.
func NewOrchestrator(
	embedder port.Embedder,
	memory port.VectorMemory,
	classifier port.Classifier,
	tickets port.TicketStore,
	categories domain.CategorySet,
	settings Settings,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.FewShotK < 0 {
		settings.FewShotK = 0
	}
	return &Orchestrator{
		embedder:   embedder,
		memory:     memory,
		classifier: classifier,
		tickets:    tickets,
		categories: categories,
		settings:   settings,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
}

func (o *Orchestrator) Categories() domain.CategorySet {
	return o.categories
}

// Classify moves a pending ticket to classified_by_cache, classified_by_ai
// or failed. On a hit the provider is not called. Any error after the ticket
// was accepted leaves it failed, and the error is returned alongside the
// failed ticket.
func (o *Orchestrator) Classify(ctx context.Context, ticket domain.Ticket) (Outcome, error) {
	if ticket.Status != domain.StatusPending {
		return Outcome{Ticket: ticket}, &domain.InvalidStateError{TicketID: ticket.ID, Status: ticket.Status, Op: "classify"}
	}
	start := o.now()
	log := o.logger.With(zap.String("ticket_id", ticket.ID))

	vector, err := o.embedder.Embed(ctx, ticket.Text)
	if err != nil {
		return o.fail(ctx, ticket, start, fmt.Errorf("embed ticket: %w", err))
	}

	neighbors, err := o.memory.Query(ctx, vector, max(1, o.settings.FewShotK))
	if err != nil {
		return o.fail(ctx, ticket, start, fmt.Errorf("query memory: %w", err))
	}

	out := Outcome{}
	if len(neighbors) > 0 {
		nearest := neighbors[0]
		out.Nearest = &nearest
	}

	if category, ok := o.cacheHit(neighbors); ok {
		o.metrics.CacheDecision(true, neighbors[0].Distance, true)
		updated, err := o.tickets.Update(ctx, ticket.ID, domain.TicketUpdate{
			Status:   domain.StatusClassifiedByCache,
			Category: category,
			VectorID: neighbors[0].Record.ID,
			Reason:   fmt.Sprintf("cache hit at distance %.4f", neighbors[0].Distance),
		})
		if err != nil {
			return o.fail(ctx, ticket, start, fmt.Errorf("record cache hit: %w", err))
		}
		log.Info("classified from cache",
			zap.String("category", category),
			zap.String("vector_id", neighbors[0].Record.ID),
			zap.Float64("distance", neighbors[0].Distance),
		)
		o.metrics.TicketFinished(string(updated.Status), string(PathCache), o.now().Sub(start))
		out.Ticket = updated
		out.Path = PathCache
		return out, nil
	}
	if out.Nearest != nil {
		o.metrics.CacheDecision(false, out.Nearest.Distance, true)
	} else {
		o.metrics.CacheDecision(false, 0, false)
	}

	shots := neighbors
	if len(shots) > o.settings.FewShotK {
		shots = shots[:o.settings.FewShotK]
	}
	out.Examples = domain.ExamplesFrom(shots)

	answer, err := o.classifier.Classify(ctx, domain.ClassificationRequest{Text: ticket.Text, Examples: out.Examples})
	if err != nil {
		return o.fail(ctx, ticket, start, err)
	}
	category, ok := o.categories.Canonical(answer)
	if !ok {
		return o.fail(ctx, ticket, start, &domain.MalformedResponseError{Provider: o.classifier.Name(), Raw: answer})
	}

	vectorID, err := o.memory.Insert(ctx, domain.VectorRecord{
		Vector:     vector,
		Text:       ticket.Text,
		Category:   category,
		Provenance: domain.ProvenanceMachine,
	})
	if err != nil {
		return o.fail(ctx, ticket, start, fmt.Errorf("insert vector record: %w", err))
	}

	updated, err := o.tickets.Update(ctx, ticket.ID, domain.TicketUpdate{
		Status:   domain.StatusClassifiedByAI,
		Category: category,
		VectorID: vectorID,
		Reason:   fmt.Sprintf("classified by %s", o.classifier.Name()),
	})
	if err != nil {
		return o.fail(ctx, ticket, start, fmt.Errorf("record classification: %w", err))
	}

	log.Info("classified by provider",
		zap.String("category", category),
		zap.String("vector_id", vectorID),
		zap.Int("examples", len(out.Examples)),
	)
	o.metrics.TicketFinished(string(updated.Status), string(PathAI), o.now().Sub(start))
	out.Ticket = updated
	out.Path = PathAI
	return out, nil
}

// cacheHit returns the nearest neighbor's category when it is close enough
// and still part of the configured category set.
func (o *Orchestrator) cacheHit(neighbors []domain.Neighbor) (string, bool) {
	if len(neighbors) == 0 || neighbors[0].Distance > o.settings.Threshold {
		return "", false
	}
	category, ok := o.categories.Canonical(neighbors[0].Record.Category)
	if !ok {
		o.logger.Warn("nearest record has a category outside the configured set",
			zap.String("vector_id", neighbors[0].Record.ID),
			zap.String("category", neighbors[0].Record.Category),
		)
		return "", false
	}
	return category, true
}

// fail marks the ticket failed. The write ignores cancellation of ctx so a
// ticket is never left pending.
func (o *Orchestrator) fail(ctx context.Context, ticket domain.Ticket, start time.Time, cause error) (Outcome, error) {
	o.logger.Warn("classification failed", zap.String("ticket_id", ticket.ID), zap.Error(cause))

	updated, err := o.tickets.Update(context.WithoutCancel(ctx), ticket.ID, domain.TicketUpdate{
		Status: domain.StatusFailed,
		Reason: cause.Error(),
	})
	if err != nil {
		o.logger.Error("could not mark ticket failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return Outcome{Ticket: ticket, Path: PathFailed}, errors.Join(cause, fmt.Errorf("mark ticket %s failed: %w", ticket.ID, err))
	}
	o.metrics.TicketFinished(string(updated.Status), string(PathFailed), o.now().Sub(start))
	return Outcome{Ticket: updated, Path: PathFailed}, cause
}

// ApplyFeedback relabels a classified ticket and the vector record behind it,
// so the next nearest-neighbor lookup returns the corrected category.
// Repeating the same correction changes nothing further.
func (o *Orchestrator) ApplyFeedback(ctx context.Context, ticketID, category string) (domain.Ticket, error) {
	canonical, ok := o.categories.Canonical(category)
	if !ok {
		return domain.Ticket{}, &domain.InvalidCategoryError{Category: category}
	}

	ticket, err := o.tickets.Get(ctx, ticketID)
	if err != nil {
		return domain.Ticket{}, err
	}
	if !ticket.Status.Classified() {
		return domain.Ticket{}, &domain.InvalidStateError{TicketID: ticket.ID, Status: ticket.Status, Op: "apply feedback"}
	}
	if ticket.VectorID == "" {
		return domain.Ticket{}, &domain.NotFoundError{Kind: "vector record", ID: "ticket " + ticket.ID}
	}

	previous, err := o.memory.Get(ctx, ticket.VectorID)
	if err != nil {
		return domain.Ticket{}, err
	}
	if err := o.memory.UpdateCategory(ctx, ticket.VectorID, canonical, domain.ProvenanceHuman); err != nil {
		return domain.Ticket{}, fmt.Errorf("relabel vector record %s: %w", ticket.VectorID, err)
	}

	updated, err := o.tickets.Update(ctx, ticket.ID, domain.TicketUpdate{
		Status:   domain.StatusCorrected,
		Category: canonical,
		Reason:   fmt.Sprintf("corrected from %s", previous.Category),
	})
	if err != nil {
		// put the record back so it keeps agreeing with the ticket
		if rerr := o.memory.UpdateCategory(context.WithoutCancel(ctx), ticket.VectorID, previous.Category, previous.Provenance); rerr != nil {
			o.logger.Error("could not restore vector record label",
				zap.String("vector_id", ticket.VectorID), zap.Error(rerr))
			return domain.Ticket{}, errors.Join(err, fmt.Errorf("restore vector record %s: %w", ticket.VectorID, rerr))
		}
		return domain.Ticket{}, err
	}

	o.logger.Info("feedback applied",
		zap.String("ticket_id", ticket.ID),
		zap.String("vector_id", ticket.VectorID),
		zap.String("from", previous.Category),
		zap.String("to", canonical),
	)
	o.metrics.Correction()
	return updated, nil
}
