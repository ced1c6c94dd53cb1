package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/internal/adapter/llm"
	"triage/internal/adapter/memstore"
	"triage/internal/domain"
	"triage/internal/metrics"
	"triage/internal/port"
)

const (
	jenkinsTicket = "Jenkins deployment timeout connecting to AWS"
	awsTicket     = "AWS prod connection drops during CI/CD build"
	similarTicket = "Jenkins deploy to AWS keeps timing out"
	printerTicket = "Printer on floor 3 is jammed"
)

// tableEmbedder returns fixed vectors so distances are known up front.
type tableEmbedder struct {
	vectors map[string][]float32
}

func newTableEmbedder() *tableEmbedder {
	return &tableEmbedder{vectors: map[string][]float32{
		jenkinsTicket: {1, 0.2, 0},
		awsTicket:     {0.95, 0.3, 0.05},
		similarTicket: {1, 0.21, 0},
		printerTicket: {0, 0, 1},
	}}
}

func (e *tableEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, ok := e.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return v, nil
}

func (e *tableEmbedder) Dimension() int    { return 3 }
func (e *tableEmbedder) ModelName() string { return "table" }

// fakeClassifier answers from a script and records every request.
type fakeClassifier struct {
	mu       sync.Mutex
	answer   string
	err      error
	requests []domain.ClassificationRequest
}

func (c *fakeClassifier) Classify(ctx context.Context, req domain.ClassificationRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.err != nil {
		return "", c.err
	}
	return c.answer, nil
}

func (c *fakeClassifier) Name() string { return "fake" }

func (c *fakeClassifier) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func (c *fakeClassifier) lastRequest() domain.ClassificationRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[len(c.requests)-1]
}

type noSleep struct{}

func (noSleep) Sleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

type harness struct {
	orch       *Orchestrator
	tickets    *memstore.TicketStore
	memory     *memstore.VectorMemory
	classifier *fakeClassifier
	metrics    *metrics.Metrics
}

func testCategories(t *testing.T) domain.CategorySet {
	t.Helper()
	set, err := domain.NewCategorySet([]domain.Category{
		{Name: "Hardware"}, {Name: "Software"}, {Name: "Network"}, {Name: "Access"}, {Name: "Security"},
	})
	require.NoError(t, err)
	return set
}

func newHarness(t *testing.T, answer string) *harness {
	t.Helper()
	h := &harness{
		tickets:    memstore.NewTicketStore(),
		memory:     memstore.NewVectorMemory(3),
		classifier: &fakeClassifier{answer: answer},
		metrics:    metrics.New(prometheus.NewRegistry(), "test"),
	}
	h.orch = h.orchestrator(t, h.classifier, 0.5)
	return h
}

// orchestrator builds another orchestrator over the same stores.
func (h *harness) orchestrator(t *testing.T, classifier port.Classifier, threshold float64) *Orchestrator {
	return NewOrchestrator(newTableEmbedder(), h.memory, classifier, h.tickets, testCategories(t),
		Settings{Threshold: threshold, FewShotK: 3}, nil, h.metrics)
}

func (h *harness) classify(t *testing.T, text string) (Outcome, error) {
	t.Helper()
	ticket, err := h.tickets.Create(context.Background(), text)
	require.NoError(t, err)
	return h.orch.Classify(context.Background(), ticket)
}

func (h *harness) memoryCount(t *testing.T) int {
	t.Helper()
	n, err := h.memory.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestEmptyMemoryCallsProviderOnce(t *testing.T) {
	h := newHarness(t, "Software")

	out, err := h.classify(t, jenkinsTicket)
	require.NoError(t, err)

	assert.Equal(t, PathAI, out.Path)
	assert.Equal(t, domain.StatusClassifiedByAI, out.Ticket.Status)
	assert.Equal(t, "Software", out.Ticket.Category)
	assert.Nil(t, out.Nearest)
	assert.Equal(t, 1, h.classifier.calls())
	assert.Empty(t, h.classifier.lastRequest().Examples)
	assert.Equal(t, 1, h.memoryCount(t))

	rec, err := h.memory.Get(context.Background(), out.Ticket.VectorID)
	require.NoError(t, err)
	assert.Equal(t, "Software", rec.Category)
	assert.Equal(t, domain.ProvenanceMachine, rec.Provenance)
	assert.Equal(t, jenkinsTicket, rec.Text)

	stored, err := h.tickets.Get(context.Background(), out.Ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClassifiedByAI, stored.Status)
}

func TestCacheHitSkipsProvider(t *testing.T) {
	h := newHarness(t, "Software")
	first, err := h.classify(t, jenkinsTicket)
	require.NoError(t, err)

	out, err := h.classify(t, awsTicket)
	require.NoError(t, err)

	assert.Equal(t, PathCache, out.Path)
	assert.Equal(t, domain.StatusClassifiedByCache, out.Ticket.Status)
	assert.Equal(t, "Software", out.Ticket.Category)
	assert.Equal(t, first.Ticket.VectorID, out.Ticket.VectorID)
	require.NotNil(t, out.Nearest)
	assert.Less(t, out.Nearest.Distance, 0.5)
	assert.Equal(t, 1, h.classifier.calls(), "provider must not be called on a hit")
	assert.Equal(t, 1, h.memoryCount(t))

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CacheDecisions.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CacheDecisions.WithLabelValues("miss")))
}

func TestDistantTicketMisses(t *testing.T) {
	h := newHarness(t, "Software")
	_, err := h.classify(t, jenkinsTicket)
	require.NoError(t, err)

	h.classifier.answer = "hardware"
	out, err := h.classify(t, printerTicket)
	require.NoError(t, err)

	assert.Equal(t, PathAI, out.Path)
	assert.Equal(t, "Hardware", out.Ticket.Category, "answer is canonicalised")
	require.NotNil(t, out.Nearest)
	assert.InDelta(t, 1.0, out.Nearest.Distance, 1e-6)
	assert.Equal(t, 2, h.classifier.calls())
	assert.Equal(t, []domain.Example{{Text: jenkinsTicket, Category: "Software"}}, h.classifier.lastRequest().Examples)
	assert.Equal(t, 2, h.memoryCount(t))
}

func TestFeedbackSteersLaterTickets(t *testing.T) {
	h := newHarness(t, "Software")
	first, err := h.classify(t, jenkinsTicket)
	require.NoError(t, err)
	require.Equal(t, "Software", first.Ticket.Category)

	corrected, err := h.orch.ApplyFeedback(context.Background(), first.Ticket.ID, "access")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCorrected, corrected.Status)
	assert.Equal(t, "Access", corrected.Category)

	rec, err := h.memory.Get(context.Background(), first.Ticket.VectorID)
	require.NoError(t, err)
	assert.Equal(t, "Access", rec.Category)
	assert.Equal(t, domain.ProvenanceHuman, rec.Provenance)
	assert.Equal(t, 1, h.memoryCount(t), "feedback relabels in place")

	hit, err := h.classify(t, similarTicket)
	require.NoError(t, err)
	assert.Equal(t, PathCache, hit.Path)
	assert.Equal(t, "Access", hit.Ticket.Category)

	// force a miss to see the corrected label in the few-shot context
	h.classifier.answer = "Access"
	forced := h.orchestrator(t, h.classifier, -1)
	ticket, err := h.tickets.Create(context.Background(), similarTicket)
	require.NoError(t, err)
	out, err := forced.Classify(context.Background(), ticket)
	require.NoError(t, err)
	assert.Equal(t, PathAI, out.Path)

	examples := h.classifier.lastRequest().Examples
	require.NotEmpty(t, examples)
	assert.Equal(t, jenkinsTicket, examples[0].Text)
	assert.Equal(t, "Access", examples[0].Category)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Corrections))
}

func TestExhaustedProviderFailsTicket(t *testing.T) {
	h := newHarness(t, "")
	h.classifier.err = &domain.TransientProviderError{Provider: "fake", StatusCode: 429, RateLimited: true, Cause: errors.New("slow down")}
	resilient := llm.NewResilientClassifier(h.classifier,
		llm.RetryPolicy{BaseDelay: time.Millisecond, MaxDelay: time.Second, MaxAttempts: 5},
		llm.WithClock(noSleep{}))
	h.orch = h.orchestrator(t, resilient, 0.5)

	out, err := h.classify(t, jenkinsTicket)
	require.Error(t, err)

	var exhausted *domain.ProviderExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 5, exhausted.Attempts)
	assert.True(t, domain.IsRetryLater(err))
	assert.False(t, domain.IsCallerError(err))

	assert.Equal(t, PathFailed, out.Path)
	assert.Equal(t, domain.StatusFailed, out.Ticket.Status)
	assert.NotEmpty(t, out.Ticket.Reason)
	assert.Equal(t, 5, h.classifier.calls())
	assert.Zero(t, h.memoryCount(t), "failed ticket must not leave a vector record")

	stored, err := h.tickets.Get(context.Background(), out.Ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
}

func TestUnknownAnswerFailsTicket(t *testing.T) {
	h := newHarness(t, "Banana")

	out, err := h.classify(t, jenkinsTicket)
	require.Error(t, err)
	assert.True(t, domain.IsMalformed(err))
	assert.Equal(t, domain.StatusFailed, out.Ticket.Status)
	assert.Equal(t, 1, h.classifier.calls())
	assert.Zero(t, h.memoryCount(t))
}

func TestEmbeddingFailureFailsTicket(t *testing.T) {
	h := newHarness(t, "Software")

	out, err := h.classify(t, "text the embedder has never seen")
	require.Error(t, err)
	assert.Equal(t, domain.StatusFailed, out.Ticket.Status)
	assert.Zero(t, h.classifier.calls())
}

func TestStaleCategoryInMemoryIsAMiss(t *testing.T) {
	h := newHarness(t, "Network")
	_, err := h.memory.Insert(context.Background(), domain.VectorRecord{
		Vector: []float32{1, 0.2, 0}, Text: "old ticket", Category: "Legacy", Provenance: domain.ProvenanceHuman,
	})
	require.NoError(t, err)

	out, err := h.classify(t, jenkinsTicket)
	require.NoError(t, err)
	assert.Equal(t, PathAI, out.Path)
	assert.Equal(t, "Network", out.Ticket.Category)
	assert.Equal(t, 1, h.classifier.calls())
}

func TestClassifyRejectsNonPendingTicket(t *testing.T) {
	h := newHarness(t, "Software")
	out, err := h.classify(t, jenkinsTicket)
	require.NoError(t, err)

	_, err = h.orch.Classify(context.Background(), out.Ticket)
	var stateErr *domain.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, domain.StatusClassifiedByAI, stateErr.Status)
	assert.Equal(t, 1, h.classifier.calls())
}

func TestFeedbackIsIdempotent(t *testing.T) {
	h := newHarness(t, "Software")
	out, err := h.classify(t, jenkinsTicket)
	require.NoError(t, err)

	first, err := h.orch.ApplyFeedback(context.Background(), out.Ticket.ID, "Access")
	require.NoError(t, err)
	second, err := h.orch.ApplyFeedback(context.Background(), out.Ticket.ID, "Access")
	require.NoError(t, err)

	assert.Equal(t, first.Category, second.Category)
	assert.Equal(t, domain.StatusCorrected, second.Status)
	assert.Equal(t, out.Ticket.VectorID, second.VectorID)
	assert.Equal(t, 1, h.memoryCount(t))
}

func TestFeedbackErrors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "Software")

	classified, err := h.classify(t, jenkinsTicket)
	require.NoError(t, err)
	pending, err := h.tickets.Create(ctx, awsTicket)
	require.NoError(t, err)
	failed, err := h.tickets.Create(ctx, printerTicket)
	require.NoError(t, err)
	_, err = h.tickets.Update(ctx, failed.ID, domain.TicketUpdate{Status: domain.StatusFailed})
	require.NoError(t, err)
	dangling, err := h.tickets.Create(ctx, similarTicket)
	require.NoError(t, err)
	_, err = h.tickets.Update(ctx, dangling.ID, domain.TicketUpdate{Status: domain.StatusClassifiedByAI, Category: "Software", VectorID: "gone"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		id       string
		category string
		check    func(t *testing.T, err error)
	}{
		{
			name: "unknown category", id: classified.Ticket.ID, category: "Plumbing",
			check: func(t *testing.T, err error) {
				var catErr *domain.InvalidCategoryError
				assert.ErrorAs(t, err, &catErr)
			},
		},
		{
			name: "unknown ticket", id: "9999", category: "Access",
			check: func(t *testing.T, err error) { assert.True(t, domain.IsNotFound(err)) },
		},
		{
			name: "pending ticket", id: pending.ID, category: "Access",
			check: func(t *testing.T, err error) {
				var stateErr *domain.InvalidStateError
				assert.ErrorAs(t, err, &stateErr)
			},
		},
		{
			name: "failed ticket", id: failed.ID, category: "Access",
			check: func(t *testing.T, err error) {
				var stateErr *domain.InvalidStateError
				assert.ErrorAs(t, err, &stateErr)
			},
		},
		{
			name: "missing vector record", id: dangling.ID, category: "Access",
			check: func(t *testing.T, err error) { assert.True(t, domain.IsNotFound(err)) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.orch.ApplyFeedback(ctx, tt.id, tt.category)
			require.Error(t, err)
			assert.True(t, domain.IsCallerError(err))
			tt.check(t, err)
		})
	}

	got, err := h.tickets.Get(ctx, classified.Ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClassifiedByAI, got.Status, "rejected feedback changes nothing")
}

// correctionRejectingStore fails every move to corrected.
type correctionRejectingStore struct {
	*memstore.TicketStore
}

func (s correctionRejectingStore) Update(ctx context.Context, id string, upd domain.TicketUpdate) (domain.Ticket, error) {
	if upd.Status == domain.StatusCorrected {
		return domain.Ticket{}, errors.New("disk full")
	}
	return s.TicketStore.Update(ctx, id, upd)
}

func TestFeedbackRestoresRecordWhenTicketUpdateFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "Software")
	out, err := h.classify(t, jenkinsTicket)
	require.NoError(t, err)

	orch := NewOrchestrator(newTableEmbedder(), h.memory, h.classifier, correctionRejectingStore{h.tickets},
		testCategories(t), Settings{Threshold: 0.5, FewShotK: 3}, nil, nil)
	_, err = orch.ApplyFeedback(ctx, out.Ticket.ID, "Access")
	require.Error(t, err)

	rec, err := h.memory.Get(ctx, out.Ticket.VectorID)
	require.NoError(t, err)
	assert.Equal(t, "Software", rec.Category)
	assert.Equal(t, domain.ProvenanceMachine, rec.Provenance)

	got, err := h.tickets.Get(ctx, out.Ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClassifiedByAI, got.Status)
	assert.Equal(t, "Software", got.Category)
}

func TestNegativeThresholdDisablesCache(t *testing.T) {
	h := newHarness(t, "Software")
	h.orch = h.orchestrator(t, h.classifier, -1)

	_, err := h.classify(t, jenkinsTicket)
	require.NoError(t, err)
	out, err := h.classify(t, jenkinsTicket)
	require.NoError(t, err)

	assert.Equal(t, PathAI, out.Path)
	require.NotNil(t, out.Nearest)
	assert.InDelta(t, 0, out.Nearest.Distance, 1e-6)
	assert.Equal(t, 2, h.classifier.calls())
}
