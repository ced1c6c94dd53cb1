package llm

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"triage/internal/domain"
	"triage/internal/metrics"
	"triage/internal/port"
)

// RetryPolicy bounds how often and how patiently a classifier is retried.
// MaxAttempts counts calls, including the first one.
type RetryPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 5,
	}
}

// DelayBound is the un-jittered delay before retry n, counting from zero:
// min(MaxDelay, BaseDelay * 2^n).
func (p RetryPolicy) DelayBound(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	d := float64(p.BaseDelay) * math.Pow(2, float64(n))
	if d > float64(p.MaxDelay) || math.IsInf(d, 1) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Delay applies a uniform jitter factor in [0.5, 1.5) to DelayBound(n).
func (p RetryPolicy) Delay(n int, r Rand) time.Duration {
	return time.Duration(float64(p.DelayBound(n)) * (0.5 + r.Float64()))
}

// Clock sleeps between attempts. Sleep must return early with ctx.Err()
// when ctx is done.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Rand yields uniform numbers in [0, 1).
type Rand interface {
	Float64() float64
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// ResilientClassifier retries transient provider failures with capped
// exponential backoff and jitter. The same policy wraps every backend.
type ResilientClassifier struct {
	inner   port.Classifier
	policy  RetryPolicy
	clock   Clock
	rand    Rand
	logger  *zap.Logger
	metrics *metrics.Metrics
}

type ResilientOption func(*ResilientClassifier)

func WithClock(c Clock) ResilientOption {
	return func(r *ResilientClassifier) { r.clock = c }
}

func WithRand(rnd Rand) ResilientOption {
	return func(r *ResilientClassifier) { r.rand = rnd }
}

func WithLogger(l *zap.Logger) ResilientOption {
	return func(r *ResilientClassifier) { r.logger = l }
}

func WithMetrics(m *metrics.Metrics) ResilientOption {
	return func(r *ResilientClassifier) { r.metrics = m }
}

func NewResilientClassifier(inner port.Classifier, policy RetryPolicy, opts ...ResilientOption) *ResilientClassifier {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	r := &ResilientClassifier{
		inner:  inner,
		policy: policy,
		clock:  realClock{},
		rand:   globalRand{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Classify returns the first successful answer. A malformed answer or a
// non-transient failure is returned as is; running out of attempts or
// cancellation yields a domain.ProviderExhaustedError.
func (r *ResilientClassifier) Classify(ctx context.Context, req domain.ClassificationRequest) (string, error) {
	provider := r.inner.Name()
	var last error
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := r.policy.Delay(attempt-1, r.rand)
			r.logger.Debug("retrying provider",
				zap.String("provider", provider),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(last))
			if err := r.clock.Sleep(ctx, delay); err != nil {
				return "", &domain.ProviderExhaustedError{Attempts: attempt, Last: err}
			}
		}

		category, err := r.inner.Classify(ctx, req)
		if err == nil {
			r.metrics.ProviderAttempt(provider, "success")
			return category, nil
		}
		last = err
		r.metrics.ProviderAttempt(provider, outcomeOf(err))

		if ctx.Err() != nil {
			return "", &domain.ProviderExhaustedError{Attempts: attempt + 1, Last: err}
		}
		if !domain.IsRetryable(err) {
			r.logger.Warn("provider failed permanently",
				zap.String("provider", provider),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			return "", err
		}
	}
	r.logger.Warn("provider retries exhausted",
		zap.String("provider", provider),
		zap.Int("attempts", r.policy.MaxAttempts),
		zap.Error(last))
	return "", &domain.ProviderExhaustedError{Attempts: r.policy.MaxAttempts, Last: last}
}

func (r *ResilientClassifier) Name() string {
	return r.inner.Name()
}

func outcomeOf(err error) string {
	var transient *domain.TransientProviderError
	switch {
	case errors.As(err, &transient) && transient.RateLimited:
		return "rate_limited"
	case errors.As(err, &transient):
		return "transient"
	case domain.IsMalformed(err):
		return "malformed"
	}
	return "error"
}
