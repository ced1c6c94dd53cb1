package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"triage/internal/domain"
	"triage/internal/port"
)

var ErrClosed = errors.New("service is closed")

// Stats counts finished classifications since the service started.
type Stats struct {
	Processed int64 `json:"processed"`
	CacheHits int64 `json:"cache_hits"`
	AICalls   int64 `json:"ai_calls"`
	Failures  int64 `json:"failures"`
}

// HitRate is the share of processed tickets answered from the cache.
func (s Stats) HitRate() float64 {
	if s.Processed == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(s.Processed)
}

// Service is the boundary used by the CLI: it creates tickets, runs
// classifications in the background with bounded concurrency and accepts
// feedback.
type Service struct {
	orch    *Orchestrator
	tickets port.TicketStore
	logger  *zap.Logger
	onDone  func(Outcome, error)

	sem chan struct{}
	wg  sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]struct{}
	closed   bool

	processed atomic.Int64
	cacheHits atomic.Int64
	aiCalls   atomic.Int64
	failures  atomic.Int64
}

type ServiceOption func(*Service)

// WithConcurrency bounds the number of classifications running at once.
func WithConcurrency(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.sem = make(chan struct{}, n)
		}
	}
}

func WithServiceLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOnDone registers a hook called after every background classification.
func WithOnDone(fn func(Outcome, error)) ServiceOption {
	return func(s *Service) { s.onDone = fn }
}

func NewService(orch *Orchestrator, tickets port.TicketStore, opts ...ServiceOption) *Service {
	s := &Service{
		orch:     orch,
		tickets:  tickets,
		logger:   zap.NewNop(),
		sem:      make(chan struct{}, 1),
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit records a new ticket and classifies it in the background. It
// returns as soon as the ticket is stored.
func (s *Service) Submit(ctx context.Context, text string) (domain.Ticket, error) {
	ticket, err := s.create(ctx, text)
	if err != nil {
		return domain.Ticket{}, err
	}
	if err := s.dispatch(ctx, ticket); err != nil {
		return ticket, err
	}
	return ticket, nil
}

// SubmitAndWait records a new ticket and classifies it before returning.
func (s *Service) SubmitAndWait(ctx context.Context, text string) (Outcome, error) {
	ticket, err := s.create(ctx, text)
	if err != nil {
		return Outcome{}, err
	}
	if !s.claim(ticket.ID) {
		return Outcome{Ticket: ticket}, ErrClosed
	}
	defer s.wg.Done()
	return s.run(ctx, ticket)
}

func (s *Service) create(ctx context.Context, text string) (domain.Ticket, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Ticket{}, errors.New("ticket text must not be empty")
	}
	ticket, err := s.tickets.Create(ctx, text)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("create ticket: %w", err)
	}
	return ticket, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Ticket, error) {
	return s.tickets.Get(ctx, id)
}

// Feedback applies a human correction. The ticket is held for the whole
// correction; while it is being classified or corrected by another call, the
// correction is rejected with InvalidStateError.
func (s *Service) Feedback(ctx context.Context, id, category string) (domain.Ticket, error) {
	if !s.hold(id) {
		status := domain.StatusPending
		if t, err := s.tickets.Get(ctx, id); err == nil {
			status = t.Status
		}
		return domain.Ticket{}, &domain.InvalidStateError{TicketID: id, Status: status, Op: "apply feedback while the ticket is busy"}
	}
	defer s.release(id)
	return s.orch.ApplyFeedback(ctx, id, category)
}

// Resubmit starts a fresh classification for a failed ticket by creating a
// new ticket with the same text. The failed ticket is left as it is.
func (s *Service) Resubmit(ctx context.Context, id string) (domain.Ticket, error) {
	old, err := s.tickets.Get(ctx, id)
	if err != nil {
		return domain.Ticket{}, err
	}
	if old.Status != domain.StatusFailed {
		return domain.Ticket{}, &domain.InvalidStateError{TicketID: id, Status: old.Status, Op: "resubmit"}
	}
	return s.Submit(ctx, old.Text)
}

// Sweep dispatches up to limit pending tickets that are not already being
// classified, e.g. tickets left behind by a restart. It returns the number
// dispatched.
func (s *Service) Sweep(ctx context.Context, limit int) (int, error) {
	pending, err := s.tickets.ListByStatus(ctx, domain.StatusPending, 0)
	if err != nil {
		return 0, fmt.Errorf("list pending tickets: %w", err)
	}

	dispatched := 0
	for _, t := range pending {
		if limit > 0 && dispatched == limit {
			break
		}
		if err := s.dispatch(ctx, t); err != nil {
			if errors.Is(err, errInflight) {
				continue
			}
			return dispatched, err
		}
		dispatched++
	}
	if dispatched > 0 {
		s.logger.Info("sweep dispatched pending tickets", zap.Int("count", dispatched))
	}
	return dispatched, nil
}

var errInflight = errors.New("ticket already in flight")

func (s *Service) dispatch(ctx context.Context, ticket domain.Ticket) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if _, busy := s.inflight[ticket.ID]; busy {
		s.mu.Unlock()
		return errInflight
	}
	s.inflight[ticket.ID] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	// classification outlives the caller's request
	bg := context.WithoutCancel(ctx)
	go func() {
		defer s.wg.Done()
		s.sem <- struct{}{}
		defer func() { <-s.sem }()

		out, err := s.run(bg, ticket)
		if s.onDone != nil {
			s.onDone(out, err)
		}
	}()
	return nil
}

// claim registers a synchronous classification like dispatch does.
func (s *Service) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.inflight[id] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Service) run(ctx context.Context, ticket domain.Ticket) (Outcome, error) {
	defer s.release(ticket.ID)

	// a sweep may list a ticket that finished after the listing
	current, err := s.tickets.Get(ctx, ticket.ID)
	if err != nil {
		return Outcome{Ticket: ticket}, err
	}
	if current.Status != domain.StatusPending {
		return Outcome{Ticket: current}, nil
	}

	out, err := s.orch.Classify(ctx, current)
	s.processed.Add(1)
	switch out.Path {
	case PathCache:
		s.cacheHits.Add(1)
	case PathAI:
		s.aiCalls.Add(1)
	default:
		s.failures.Add(1)
	}
	if err != nil {
		s.logger.Warn("ticket failed",
			zap.String("ticket_id", ticket.ID),
			zap.Bool("retry_later", domain.IsRetryLater(err)),
			zap.Error(err),
		)
	}
	return out, err
}

func (s *Service) release(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

// hold marks id busy unless another classification or correction already
// holds it.
func (s *Service) hold(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

// Wait blocks until every dispatched classification has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close stops accepting work and waits for running classifications.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Service) Stats() Stats {
	return Stats{
		Processed: s.processed.Load(),
		CacheHits: s.cacheHits.Load(),
		AICalls:   s.aiCalls.Load(),
		Failures:  s.failures.Load(),
	}
}
