package domain

import (
	"context"
	"errors"
	"fmt"
)

// TransientProviderError is a failed model call that may succeed if retried:
// rate limiting, network failures and server-side errors.
type TransientProviderError struct {
	Provider    string
	StatusCode  int
	RateLimited bool
	Cause       error
}

func (e *TransientProviderError) Error() string {
	kind := "transient failure"
	if e.RateLimited {
		kind = "rate limited"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, kind, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, kind, e.Cause)
}

func (e *TransientProviderError) Unwrap() error { return e.Cause }

// MalformedResponseError means the model answered but no category could be
// recognised in the answer. Retrying does not help.
type MalformedResponseError struct {
	Provider string
	Raw      string
}

func (e *MalformedResponseError) Error() string {
	raw := e.Raw
	if len(raw) > 200 {
		raw = raw[:200] + "..."
	}
	return fmt.Sprintf("%s: no recognizable category in response %q", e.Provider, raw)
}

// ProviderExhaustedError is returned once the retry budget is spent.
type ProviderExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ProviderExhaustedError) Error() string {
	return fmt.Sprintf("provider exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ProviderExhaustedError) Unwrap() error { return e.Last }

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// InvalidStateError rejects an operation on a ticket in the wrong status.
type InvalidStateError struct {
	TicketID string
	Status   Status
	Op       string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("ticket %s: cannot %s in status %s", e.TicketID, e.Op, e.Status)
}

type InvalidCategoryError struct {
	Category string
}

func (e *InvalidCategoryError) Error() string {
	return fmt.Sprintf("unknown category %q", e.Category)
}

// IsRetryable reports whether the provider retry loop should try again after
// err. Only transient provider failures qualify; a malformed answer, an
// authentication failure or a cancelled context do not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var transient *TransientProviderError
	return errors.As(err, &transient)
}

func IsMalformed(err error) bool {
	var malformed *MalformedResponseError
	return errors.As(err, &malformed)
}

// IsCallerError reports errors caused by a bad request rather than the system.
func IsCallerError(err error) bool {
	var (
		notFound *NotFoundError
		state    *InvalidStateError
		category *InvalidCategoryError
	)
	return errors.As(err, &notFound) || errors.As(err, &state) || errors.As(err, &category)
}

// IsRetryLater reports failures the caller may resubmit after a while.
func IsRetryLater(err error) bool {
	var exhausted *ProviderExhaustedError
	return errors.As(err, &exhausted)
}

func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}
