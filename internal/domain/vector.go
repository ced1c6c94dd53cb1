package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strings"
)

// CosineDistance returns 1 - cosine similarity, clamped to [0, 2].
// A zero vector is treated as orthogonal to everything.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	d := 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
	switch {
	case d < 0:
		return 0
	case d > 2:
		return 2
	}
	return d
}

// Nearest ranks records by ascending distance to query and returns at most k.
// Equal distances keep insertion order.
func Nearest(query []float32, records []VectorRecord, k int) []Neighbor {
	if k <= 0 || len(records) == 0 {
		return nil
	}
	neighbors := make([]Neighbor, 0, len(records))
	for _, r := range records {
		neighbors = append(neighbors, Neighbor{Record: r, Distance: CosineDistance(query, r.Vector)})
	}
	sort.SliceStable(neighbors, func(i, j int) bool {
		if neighbors[i].Distance != neighbors[j].Distance {
			return neighbors[i].Distance < neighbors[j].Distance
		}
		return neighbors[i].Record.Seq < neighbors[j].Record.Seq
	})
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors
}

// Normalize scales v to unit length in place. Zero vectors are left untouched.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

// ContentHash fingerprints ticket text after trimming and lowercasing, so
// trivially different submissions of the same text share one hash.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(sum[:])
}
