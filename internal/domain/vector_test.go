package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"scaled", []float32{1, 0}, []float32{5, 0}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 1},
		{"length mismatch", []float32{1}, []float32{1, 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineDistance(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 2.0)
		})
	}
}

func TestNearestOrdersByDistanceThenSeq(t *testing.T) {
	records := []VectorRecord{
		{ID: "far", Vector: []float32{0, 1}, Seq: 1},
		{ID: "tie-late", Vector: []float32{1, 0}, Seq: 5},
		{ID: "tie-early", Vector: []float32{2, 0}, Seq: 2},
		{ID: "mid", Vector: []float32{1, 1}, Seq: 3},
	}

	got := Nearest([]float32{1, 0}, records, 3)

	ids := make([]string, len(got))
	for i, n := range got {
		ids[i] = n.Record.ID
	}
	assert.Equal(t, []string{"tie-early", "tie-late", "mid"}, ids)
	assert.Empty(t, Nearest([]float32{1, 0}, records, 0))
	assert.Empty(t, Nearest([]float32{1, 0}, nil, 3))
}

func TestContentHashNormalizes(t *testing.T) {
	assert.Equal(t, ContentHash("VPN is down"), ContentHash("  vpn IS down\n"))
	assert.NotEqual(t, ContentHash("vpn is down"), ContentHash("vpn is up"))
	assert.Len(t, ContentHash("x"), 64)
}
