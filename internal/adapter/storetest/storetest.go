// Package storetest holds behaviour checks shared by every TicketStore and
// VectorMemory implementation.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/internal/domain"
	"triage/internal/port"
)

// TicketStores runs the ticket store checks against stores built by newStore.
func TicketStores(t *testing.T, newStore func(t *testing.T) port.TicketStore) {
	t.Run("CreateAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.Create(ctx, "Printer on floor 2 is jammed")
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, domain.StatusPending, created.Status)
		assert.Equal(t, domain.ContentHash("printer on floor 2 is jammed"), created.ContentHash)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.Text, got.Text)
		assert.Equal(t, domain.StatusPending, got.Status)
		assert.Empty(t, got.Category)

		other, err := s.Create(ctx, "VPN down")
		require.NoError(t, err)
		assert.NotEqual(t, created.ID, other.ID)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "999999")
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("StatusMachine", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		tk, err := s.Create(ctx, "Outlook crashes on start")
		require.NoError(t, err)

		_, err = s.Update(ctx, tk.ID, domain.TicketUpdate{Status: domain.StatusCorrected, Category: "Software", VectorID: "v1"})
		var stateErr *domain.InvalidStateError
		require.ErrorAs(t, err, &stateErr)
		assert.Equal(t, domain.StatusPending, stateErr.Status)

		_, err = s.Update(ctx, tk.ID, domain.TicketUpdate{Status: domain.StatusClassifiedByAI})
		require.Error(t, err, "classified ticket needs a category and vector record")

		updated, err := s.Update(ctx, tk.ID, domain.TicketUpdate{Status: domain.StatusClassifiedByAI, Category: "Software", VectorID: "v1"})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusClassifiedByAI, updated.Status)
		assert.Equal(t, "Software", updated.Category)
		assert.Equal(t, "v1", updated.VectorID)

		_, err = s.Update(ctx, tk.ID, domain.TicketUpdate{Status: domain.StatusPending})
		require.ErrorAs(t, err, &stateErr)

		corrected, err := s.Update(ctx, tk.ID, domain.TicketUpdate{Status: domain.StatusCorrected, Category: "Access"})
		require.NoError(t, err)
		assert.Equal(t, "Access", corrected.Category)
		assert.Equal(t, "v1", corrected.VectorID)

		again, err := s.Update(ctx, tk.ID, domain.TicketUpdate{Status: domain.StatusCorrected, Category: "Network"})
		require.NoError(t, err)
		assert.Equal(t, "Network", again.Category)

		got, err := s.Get(ctx, tk.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCorrected, got.Status)
		assert.Equal(t, "Network", got.Category)
	})

	t.Run("FailedIsTerminal", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		tk, err := s.Create(ctx, "Laptop will not boot")
		require.NoError(t, err)

		failed, err := s.Update(ctx, tk.ID, domain.TicketUpdate{Status: domain.StatusFailed, Reason: "provider exhausted"})
		require.NoError(t, err)
		assert.Equal(t, "provider exhausted", failed.Reason)

		_, err = s.Update(ctx, tk.ID, domain.TicketUpdate{Status: domain.StatusCorrected, Category: "Hardware", VectorID: "v"})
		var stateErr *domain.InvalidStateError
		assert.ErrorAs(t, err, &stateErr)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Update(context.Background(), "424242", domain.TicketUpdate{Status: domain.StatusFailed})
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("ListByStatus", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		var ids []string
		for i := 0; i < 4; i++ {
			tk, err := s.Create(ctx, fmt.Sprintf("ticket %d", i))
			require.NoError(t, err)
			ids = append(ids, tk.ID)
		}
		_, err := s.Update(ctx, ids[1], domain.TicketUpdate{Status: domain.StatusFailed})
		require.NoError(t, err)

		pending, err := s.ListByStatus(ctx, domain.StatusPending, 0)
		require.NoError(t, err)
		require.Len(t, pending, 3)
		assert.Equal(t, []string{ids[0], ids[2], ids[3]}, []string{pending[0].ID, pending[1].ID, pending[2].ID})

		limited, err := s.ListByStatus(ctx, domain.StatusPending, 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)

		failed, err := s.ListByStatus(ctx, domain.StatusFailed, 0)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, ids[1], failed[0].ID)
	})
}

// VectorMemories runs the vector memory checks. newMemory must return an
// empty memory of the given dimension.
func VectorMemories(t *testing.T, newMemory func(t *testing.T, dimension int) port.VectorMemory) {
	t.Run("RoundTrip", func(t *testing.T) {
		m := newMemory(t, 3)
		ctx := context.Background()
		vec := []float32{0.2, 0.4, 0.9}

		id, err := m.Insert(ctx, domain.VectorRecord{Vector: vec, Text: "VPN down", Category: "Network", Provenance: domain.ProvenanceMachine})
		require.NoError(t, err)
		require.NotEmpty(t, id)

		got, err := m.Query(ctx, vec, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, id, got[0].Record.ID)
		assert.InDelta(t, 0, got[0].Distance, 1e-6)
		assert.Equal(t, "Network", got[0].Record.Category)
		assert.Equal(t, "VPN down", got[0].Record.Text)

		n, err := m.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("OrderingAndTies", func(t *testing.T) {
		m := newMemory(t, 2)
		ctx := context.Background()
		insert := func(text string, v []float32) string {
			id, err := m.Insert(ctx, domain.VectorRecord{Vector: v, Text: text, Category: "Network", Provenance: domain.ProvenanceMachine})
			require.NoError(t, err)
			return id
		}
		far := insert("far", []float32{0, 1})
		first := insert("first", []float32{1, 0})
		second := insert("second", []float32{3, 0})
		mid := insert("mid", []float32{1, 1})

		got, err := m.Query(ctx, []float32{1, 0}, 10)
		require.NoError(t, err)
		require.Len(t, got, 4)
		assert.Equal(t, []string{first, second, mid, far},
			[]string{got[0].Record.ID, got[1].Record.ID, got[2].Record.ID, got[3].Record.ID})
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i].Distance, got[i-1].Distance)
		}

		top, err := m.Query(ctx, []float32{1, 0}, 2)
		require.NoError(t, err)
		assert.Len(t, top, 2)
	})

	t.Run("EmptyMemory", func(t *testing.T) {
		m := newMemory(t, 2)
		got, err := m.Query(context.Background(), []float32{1, 0}, 3)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("UpdateCategoryInPlace", func(t *testing.T) {
		m := newMemory(t, 2)
		ctx := context.Background()
		vec := []float32{0.6, 0.8}
		id, err := m.Insert(ctx, domain.VectorRecord{Vector: vec, Text: "cannot log in", Category: "Network", Provenance: domain.ProvenanceMachine})
		require.NoError(t, err)

		require.NoError(t, m.UpdateCategory(ctx, id, "Access", domain.ProvenanceHuman))

		got, err := m.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Access", got.Category)
		assert.Equal(t, domain.ProvenanceHuman, got.Provenance)
		assert.Equal(t, vec, got.Vector)

		n, err := m.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		nearest, err := m.Query(ctx, vec, 1)
		require.NoError(t, err)
		assert.Equal(t, "Access", nearest[0].Record.Category)

		err = m.UpdateCategory(ctx, "missing", "Access", domain.ProvenanceHuman)
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("RejectsBadRecords", func(t *testing.T) {
		m := newMemory(t, 2)
		ctx := context.Background()
		_, err := m.Insert(ctx, domain.VectorRecord{Vector: []float32{1}, Category: "Network", Provenance: domain.ProvenanceMachine})
		assert.Error(t, err)
		_, err = m.Insert(ctx, domain.VectorRecord{Vector: []float32{1, 0}, Provenance: domain.ProvenanceMachine})
		assert.Error(t, err)
		_, err = m.Query(ctx, []float32{1, 0, 0}, 1)
		assert.Error(t, err)
	})

	t.Run("ConcurrentReadYourWrites", func(t *testing.T) {
		m := newMemory(t, 2)
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				vec := []float32{float32(i + 1), 1}
				id, err := m.Insert(ctx, domain.VectorRecord{Vector: vec, Text: fmt.Sprint(i), Category: "Network", Provenance: domain.ProvenanceMachine})
				if !assert.NoError(t, err) {
					return
				}
				got, err := m.Get(ctx, id)
				if assert.NoError(t, err) {
					assert.Equal(t, fmt.Sprint(i), got.Text)
				}
			}(i)
		}
		wg.Wait()

		n, err := m.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 16, n)
	})
}
