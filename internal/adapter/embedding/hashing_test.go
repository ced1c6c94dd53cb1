package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/internal/domain"
)

func TestHashingEmbedderDeterministic(t *testing.T) {
	e, err := NewHashingEmbedder(0)
	require.NoError(t, err)
	assert.Equal(t, DefaultHashingDimension, e.Dimension())

	a, err := e.Embed(context.Background(), "VPN keeps disconnecting every hour")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "VPN keeps disconnecting every hour")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, DefaultHashingDimension)
	assert.InDelta(t, 0, domain.CosineDistance(a, b), 1e-6)
}

func TestHashingEmbedderRelativeSimilarity(t *testing.T) {
	e, err := NewHashingEmbedder(1024)
	require.NoError(t, err)
	ctx := context.Background()

	vpn1, _ := e.Embed(ctx, "VPN connection drops every few minutes")
	vpn2, _ := e.Embed(ctx, "my VPN connection keeps dropping")
	printer, _ := e.Embed(ctx, "printer on floor 3 is out of toner")

	near := domain.CosineDistance(vpn1, vpn2)
	far := domain.CosineDistance(vpn1, printer)
	assert.Less(t, near, far)
	assert.Less(t, near, 0.7)
}

func TestHashingEmbedderEmptyText(t *testing.T) {
	e, err := NewHashingEmbedder(64)
	require.NoError(t, err)

	v, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	other, _ := e.Embed(context.Background(), "printer")
	assert.InDelta(t, 1, domain.CosineDistance(v, other), 1e-9)
}

func TestHashingEmbedderRejectsTinyDimension(t *testing.T) {
	_, err := NewHashingEmbedder(4)
	assert.Error(t, err)
}

func TestNewSelectsProvider(t *testing.T) {
	tests := []struct {
		provider string
		apiKey   string
		wantDim  int
		wantErr  bool
	}{
		{provider: "", wantDim: DefaultHashingDimension},
		{provider: "hashing", wantDim: DefaultHashingDimension},
		{provider: "ollama", wantDim: 768},
		{provider: "openai", apiKey: "sk-test", wantDim: 1536},
		{provider: "openai", wantErr: true},
		{provider: "word2vec", wantErr: true},
	}
	for _, tt := range tests {
		e, err := New(tt.provider, "", tt.apiKey, "", 0)
		if tt.wantErr {
			if err == nil {
				t.Errorf("New(%q) expected error", tt.provider)
			}
			continue
		}
		if err != nil {
			t.Fatalf("New(%q): %v", tt.provider, err)
		}
		if e.Dimension() != tt.wantDim {
			t.Errorf("New(%q) dimension = %d, want %d", tt.provider, e.Dimension(), tt.wantDim)
		}
	}
}
