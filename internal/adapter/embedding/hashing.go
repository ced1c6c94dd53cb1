package embedding

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"triage/internal/adapter/analyzer"
	"triage/internal/domain"
	"triage/internal/port"
)

const DefaultHashingDimension = 1024

// HashingEmbedder is an offline embedder built on feature hashing. Each stemmed
// term, adjacent term pair and in-word character trigram is hashed into a
// signed bucket, and the result is L2-normalized. Texts sharing vocabulary land
// close together; it captures no synonymy.
type HashingEmbedder struct {
	dimension int
	tokenizer port.Tokenizer
}

const (
	unigramWeight = 1.0
	bigramWeight  = 0.5
	trigramWeight = 0.25
)

func NewHashingEmbedder(dimension int) (*HashingEmbedder, error) {
	if dimension <= 0 {
		dimension = DefaultHashingDimension
	}
	if dimension < 16 {
		return nil, fmt.Errorf("hashing embedder dimension too small: %d", dimension)
	}
	return &HashingEmbedder{
		dimension: dimension,
		tokenizer: analyzer.NewTokenizer(true),
	}, nil
}

func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, e.dimension)
	tokens := e.tokenizer.Tokenize(text)
	for i, tok := range tokens {
		e.add(vec, "u:"+tok, unigramWeight)
		if i > 0 {
			e.add(vec, "b:"+tokens[i-1]+" "+tok, bigramWeight)
		}
		runes := []rune("^" + tok + "$")
		for j := 0; j+3 <= len(runes); j++ {
			e.add(vec, "c:"+string(runes[j:j+3]), trigramWeight)
		}
	}
	domain.Normalize(vec)
	return vec, nil
}

func (e *HashingEmbedder) add(vec []float32, feature string, weight float32) {
	h := xxhash.Sum64String(feature)
	idx := h % uint64(e.dimension)
	if h>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func (e *HashingEmbedder) Dimension() int {
	return e.dimension
}

func (e *HashingEmbedder) ModelName() string {
	return fmt.Sprintf("hashing-%d", e.dimension)
}
