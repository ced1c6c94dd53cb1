package port

import (
	"context"

	"triage/internal/domain"
)

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	// Embed returns the vector for text. Identical text yields an identical vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// VectorMemory stores labelled ticket vectors and answers nearest-neighbor queries.
type VectorMemory interface {
	// Insert stores a new record and returns its ID. Seq and InsertedAt are
	// assigned by the memory; an empty ID is generated.
	Insert(ctx context.Context, record domain.VectorRecord) (string, error)

	// Query returns at most k records ordered by ascending cosine distance,
	// ties broken by insertion order.
	Query(ctx context.Context, vector []float32, k int) ([]domain.Neighbor, error)

	// UpdateCategory relabels a record in place, keeping its vector.
	UpdateCategory(ctx context.Context, id, category string, provenance domain.Provenance) error

	Get(ctx context.Context, id string) (domain.VectorRecord, error)

	Count(ctx context.Context) (int, error)
}
