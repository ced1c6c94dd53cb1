package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/config"
	"triage/internal/adapter/storetest"
	"triage/internal/domain"
	"triage/internal/port"
)

func openStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "triage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltTicketStore(t *testing.T) {
	storetest.TicketStores(t, func(t *testing.T) port.TicketStore {
		return openStore(t)
	})
}

func TestBoltVectorMemory(t *testing.T) {
	storetest.VectorMemories(t, func(t *testing.T, dimension int) port.VectorMemory {
		m, err := NewBoltVectorMemory(openStore(t).DB(), dimension)
		require.NoError(t, err)
		return m
	})
}

func TestBoltVectorMemorySurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triage.db")
	ctx := context.Background()

	s, err := NewBoltStore(path)
	require.NoError(t, err)
	m, err := NewBoltVectorMemory(s.DB(), 2)
	require.NoError(t, err)
	first, err := m.Insert(ctx, domain.VectorRecord{Vector: []float32{1, 0}, Text: "a", Category: "Network", Provenance: domain.ProvenanceMachine})
	require.NoError(t, err)
	require.NoError(t, m.UpdateCategory(ctx, first, "Access", domain.ProvenanceHuman))
	tk, err := s.Create(ctx, "VPN down")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewBoltStore(path)
	require.NoError(t, err)
	defer s.Close()
	m, err = NewBoltVectorMemory(s.DB(), 2)
	require.NoError(t, err)

	got, err := m.Get(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "Access", got.Category)
	assert.Equal(t, domain.ProvenanceHuman, got.Provenance)
	assert.Equal(t, uint64(1), got.Seq)

	second, err := m.Insert(ctx, domain.VectorRecord{Vector: []float32{2, 0}, Text: "b", Category: "Network", Provenance: domain.ProvenanceMachine})
	require.NoError(t, err)
	rec, err := m.Get(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rec.Seq, "sequence continues after reopen")

	ticket, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "VPN down", ticket.Text)

	_, err = NewBoltVectorMemory(s.DB(), 3)
	assert.Error(t, err, "dimension change must be rejected")
}

func TestMigrationTracksEmbeddingSetup(t *testing.T) {
	s := openStore(t)
	emb := config.EmbeddingConfig{Provider: "hashing", Model: "hashing"}

	res, err := s.CheckMigration(emb, 1024)
	require.NoError(t, err)
	assert.True(t, res.NeedsMigration)
	assert.False(t, res.NeedsRebuild)

	require.NoError(t, s.Migrate(emb, 1024))
	res, err = s.CheckMigration(emb, 1024)
	require.NoError(t, err)
	assert.False(t, res.NeedsMigration)
	assert.False(t, res.NeedsRebuild)

	emb.Model = "nomic-embed-text"
	res, err = s.CheckMigration(emb, 768)
	require.NoError(t, err)
	assert.True(t, res.NeedsRebuild)
}

func TestMigrationRefusesNewerSchema(t *testing.T) {
	s := openStore(t)
	emb := config.EmbeddingConfig{Provider: "hashing"}
	require.NoError(t, s.SetSchemaInfo(&SchemaInfo{Version: CurrentSchemaVersion + 1}))

	res, err := s.CheckMigration(emb, 64)
	require.NoError(t, err)
	assert.True(t, res.NeedsRebuild)
	assert.Error(t, s.Migrate(emb, 64))
}

func TestTicketsCarryContentHash(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	tk, err := s.Create(ctx, "Printer offline")
	require.NoError(t, err)

	got, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContentHash("printer offline"), got.ContentHash)
}

func TestClearMemory(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	m, err := NewBoltVectorMemory(s.DB(), 2)
	require.NoError(t, err)
	_, err = m.Insert(ctx, domain.VectorRecord{Vector: []float32{1, 0}, Category: "Network", Provenance: domain.ProvenanceMachine})
	require.NoError(t, err)

	require.NoError(t, s.ClearMemory())

	m, err = NewBoltVectorMemory(s.DB(), 2)
	require.NoError(t, err)
	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCountByStatus(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	a, _ := s.Create(ctx, "a")
	_, _ = s.Create(ctx, "b")
	_, err := s.Update(ctx, a.ID, domain.TicketUpdate{Status: domain.StatusFailed})
	require.NoError(t, err)

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.StatusPending])
	assert.Equal(t, 1, counts[domain.StatusFailed])
}
