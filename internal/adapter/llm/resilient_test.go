package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/internal/domain"
	"triage/internal/metrics"
)

type scriptedClassifier struct {
	errs   []error
	answer string
	calls  int
}

func (s *scriptedClassifier) Classify(ctx context.Context, req domain.ClassificationRequest) (string, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return "", s.errs[s.calls-1]
	}
	return s.answer, nil
}

func (s *scriptedClassifier) Name() string { return "scripted" }

type fakeClock struct {
	sleeps []time.Duration
	err    error
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	return c.err
}

type fixedRand float64

func (r fixedRand) Float64() float64 { return float64(r) }

func transient(n int) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = &domain.TransientProviderError{Provider: "scripted", StatusCode: 503, Cause: errors.New("unavailable")}
	}
	return errs
}

func testPolicy() RetryPolicy {
	return RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, MaxAttempts: 5}
}

func TestRetryPolicyDelayBound(t *testing.T) {
	p := testPolicy()
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for n, w := range want {
		assert.Equal(t, w, p.DelayBound(n), "retry %d", n)
	}
	assert.Equal(t, time.Second, p.DelayBound(4096))
}

func TestRetryPolicyJitterRange(t *testing.T) {
	p := testPolicy()
	assert.Equal(t, 100*time.Millisecond, p.Delay(1, fixedRand(0)))
	assert.Equal(t, 200*time.Millisecond, p.Delay(1, fixedRand(0.5)))
	assert.Less(t, p.Delay(1, fixedRand(0.999999)), 300*time.Millisecond)
}

func TestResilientSucceedsAfterTransientFailures(t *testing.T) {
	inner := &scriptedClassifier{errs: transient(4), answer: "Network"}
	clock := &fakeClock{}
	rc := NewResilientClassifier(inner, testPolicy(), WithClock(clock), WithRand(fixedRand(0.5)))

	got, err := rc.Classify(context.Background(), domain.ClassificationRequest{Text: "vpn down"})

	require.NoError(t, err)
	assert.Equal(t, "Network", got)
	assert.Equal(t, 5, inner.calls)
	require.Len(t, clock.sleeps, 4)
	for i := 1; i < len(clock.sleeps); i++ {
		assert.Greater(t, clock.sleeps[i], clock.sleeps[i-1])
	}
	assert.Equal(t, 100*time.Millisecond, clock.sleeps[0])
}

func TestResilientExhaustsBudget(t *testing.T) {
	inner := &scriptedClassifier{errs: transient(10)}
	clock := &fakeClock{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "test")
	rc := NewResilientClassifier(inner, testPolicy(), WithClock(clock), WithRand(fixedRand(0.5)), WithMetrics(m))

	_, err := rc.Classify(context.Background(), domain.ClassificationRequest{Text: "vpn down"})

	var exhausted *domain.ProviderExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 5, exhausted.Attempts)
	assert.True(t, domain.IsRetryLater(err))
	var cause *domain.TransientProviderError
	assert.ErrorAs(t, err, &cause)
	assert.Equal(t, 5, inner.calls)
	assert.Len(t, clock.sleeps, 4)
	assert.Equal(t, 5.0, testutil.ToFloat64(m.ProviderAttempts.WithLabelValues("scripted", "transient")))
}

func TestResilientDoesNotRetryMalformed(t *testing.T) {
	inner := &scriptedClassifier{errs: []error{&domain.MalformedResponseError{Provider: "scripted", Raw: "banana"}}}
	clock := &fakeClock{}
	rc := NewResilientClassifier(inner, testPolicy(), WithClock(clock))

	_, err := rc.Classify(context.Background(), domain.ClassificationRequest{Text: "x"})

	assert.True(t, domain.IsMalformed(err))
	assert.False(t, domain.IsRetryLater(err))
	assert.Equal(t, 1, inner.calls)
	assert.Empty(t, clock.sleeps)
}

func TestResilientDoesNotRetryRejectedRequest(t *testing.T) {
	inner := &scriptedClassifier{errs: []error{classifyStatus("scripted", 401, errors.New("bad key"))}}
	clock := &fakeClock{}
	rc := NewResilientClassifier(inner, testPolicy(), WithClock(clock))

	_, err := rc.Classify(context.Background(), domain.ClassificationRequest{Text: "x"})

	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Empty(t, clock.sleeps)
}

func TestResilientStopsOnCancelledSleep(t *testing.T) {
	inner := &scriptedClassifier{errs: transient(10)}
	clock := &fakeClock{err: context.Canceled}
	rc := NewResilientClassifier(inner, testPolicy(), WithClock(clock))

	_, err := rc.Classify(context.Background(), domain.ClassificationRequest{Text: "x"})

	var exhausted *domain.ProviderExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, exhausted.Attempts)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.calls)
}

func TestClassifyStatus(t *testing.T) {
	rate := classifyStatus("p", 429, errors.New("slow down"))
	var te *domain.TransientProviderError
	require.ErrorAs(t, rate, &te)
	assert.True(t, te.RateLimited)

	assert.True(t, domain.IsRetryable(classifyStatus("p", 502, errors.New("bad gateway"))))
	assert.True(t, domain.IsRetryable(classifyStatus("p", 0, errors.New("connection refused"))))
	assert.False(t, domain.IsRetryable(classifyStatus("p", 400, errors.New("bad request"))))
}
