package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/internal/adapter/storetest"
	"triage/internal/domain"
	"triage/internal/port"
)

func openStore(t *testing.T, path string) *TicketStore {
	t.Helper()
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteTicketStore(t *testing.T) {
	storetest.TicketStores(t, func(t *testing.T) port.TicketStore {
		return openStore(t, filepath.Join(t.TempDir(), "tickets.sqlite"))
	})
}

func TestReopenKeepsTicketsAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tickets.sqlite")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	tk, err := s.Create(ctx, "Badge reader rejects my card")
	require.NoError(t, err)
	_, err = s.Update(ctx, tk.ID, domain.TicketUpdate{Status: domain.StatusClassifiedByAI, Category: "Access", VectorID: "vec-1"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s = openStore(t, path)
	got, err := s.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClassifiedByAI, got.Status)
	assert.Equal(t, "Access", got.Category)
	assert.Equal(t, "vec-1", got.VectorID)
	assert.True(t, tk.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, domain.ContentHash("badge reader rejects my card"), got.ContentHash)

	var versions int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions`).Scan(&versions))
	assert.Equal(t, len(migrations), versions)
}

func TestNonNumericIDIsNotFound(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "tickets.sqlite"))
	_, err := s.Get(context.Background(), "abc")
	assert.True(t, domain.IsNotFound(err))
}

func TestCountByStatus(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "tickets.sqlite"))
	ctx := context.Background()
	for _, text := range []string{"a", "b", "c"} {
		_, err := s.Create(ctx, text)
		require.NoError(t, err)
	}
	_, err := s.Update(ctx, "2", domain.TicketUpdate{Status: domain.StatusFailed, Reason: "boom"})
	require.NoError(t, err)

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[domain.Status]int{domain.StatusPending: 2, domain.StatusFailed: 1}, counts)
}
