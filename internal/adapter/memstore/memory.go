package memstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"triage/internal/domain"
)

// TicketStore keeps tickets in memory. IDs are decimal sequence numbers.
type TicketStore struct {
	mu      sync.RWMutex
	tickets map[string]domain.Ticket
	order   []string
	nextID  uint64
	now     func() time.Time
}

func NewTicketStore() *TicketStore {
	return &TicketStore{
		tickets: make(map[string]domain.Ticket),
		now:     time.Now,
	}
}

func (s *TicketStore) Create(ctx context.Context, text string) (domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := s.now().UTC()
	t := domain.Ticket{
		ID:          strconv.FormatUint(s.nextID, 10),
		Text:        text,
		ContentHash: domain.ContentHash(text),
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.tickets[t.ID] = t
	s.order = append(s.order, t.ID)
	return t, nil
}

func (s *TicketStore) Get(ctx context.Context, id string) (domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return domain.Ticket{}, &domain.NotFoundError{Kind: "ticket", ID: id}
	}
	return t, nil
}

func (s *TicketStore) Update(ctx context.Context, id string, upd domain.TicketUpdate) (domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return domain.Ticket{}, &domain.NotFoundError{Kind: "ticket", ID: id}
	}
	next, err := domain.ApplyUpdate(t, upd, s.now().UTC())
	if err != nil {
		return domain.Ticket{}, err
	}
	s.tickets[id] = next
	return next, nil
}

func (s *TicketStore) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Ticket
	for _, id := range s.order {
		t := s.tickets[id]
		if t.Status != status {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *TicketStore) Close() error {
	return nil
}

// VectorMemory is an in-memory vector memory with brute-force search.
type VectorMemory struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]domain.VectorRecord
	seq       uint64
	now       func() time.Time
}

func NewVectorMemory(dimension int) *VectorMemory {
	return &VectorMemory{
		dimension: dimension,
		records:   make(map[string]domain.VectorRecord),
		now:       time.Now,
	}
}

func (m *VectorMemory) Insert(ctx context.Context, record domain.VectorRecord) (string, error) {
	if err := domain.ValidateRecord(record, m.dimension); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if _, exists := m.records[record.ID]; exists {
		return "", fmt.Errorf("vector record already exists: %s", record.ID)
	}
	m.seq++
	record.Seq = m.seq
	record.InsertedAt = m.now().UTC()
	record.Vector = append([]float32(nil), record.Vector...)
	m.records[record.ID] = record
	return record.ID, nil
}

func (m *VectorMemory) Query(ctx context.Context, vector []float32, k int) ([]domain.Neighbor, error) {
	if len(vector) != m.dimension {
		return nil, fmt.Errorf("query dimension mismatch: got %d, want %d", len(vector), m.dimension)
	}

	m.mu.RLock()
	records := make([]domain.VectorRecord, 0, len(m.records))
	for _, r := range m.records {
		records = append(records, r)
	}
	m.mu.RUnlock()

	return domain.Nearest(vector, records, k), nil
}

func (m *VectorMemory) UpdateCategory(ctx context.Context, id, category string, provenance domain.Provenance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return &domain.NotFoundError{Kind: "vector record", ID: id}
	}
	r.Category = category
	r.Provenance = provenance
	m.records[id] = r
	return nil
}

func (m *VectorMemory) Get(ctx context.Context, id string) (domain.VectorRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return domain.VectorRecord{}, &domain.NotFoundError{Kind: "vector record", ID: id}
	}
	return r, nil
}

func (m *VectorMemory) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}
