package memstore

import (
	"testing"

	"triage/internal/adapter/storetest"
	"triage/internal/port"
)

func TestTicketStore(t *testing.T) {
	storetest.TicketStores(t, func(t *testing.T) port.TicketStore {
		return NewTicketStore()
	})
}

func TestVectorMemory(t *testing.T) {
	storetest.VectorMemories(t, func(t *testing.T, dimension int) port.VectorMemory {
		return NewVectorMemory(dimension)
	})
}
