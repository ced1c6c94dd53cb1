package port

import (
	"context"

	"triage/internal/domain"
)

// Classifier picks one category for a ticket, given few-shot examples.
// Implementations report failures as domain.TransientProviderError or
// domain.MalformedResponseError.
type Classifier interface {
	Classify(ctx context.Context, req domain.ClassificationRequest) (string, error)

	// Name identifies the backing model in logs and metrics.
	Name() string
}

// Completer is a raw text-generation backend used by classifiers.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)

	ModelName() string
}
