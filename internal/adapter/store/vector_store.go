package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"triage/internal/domain"
)

// BoltVectorMemory persists vector records in bbolt and serves queries from an
// in-memory copy with brute-force cosine search.
type BoltVectorMemory struct {
	db        *bbolt.DB
	dimension int
	mu        sync.RWMutex
	records   map[string]domain.VectorRecord
	now       func() time.Time
}

type storedRecord struct {
	Vector     []float32         `json:"v"`
	Text       string            `json:"t"`
	Category   string            `json:"c"`
	Provenance domain.Provenance `json:"p"`
	InsertedAt time.Time         `json:"at"`
	Seq        uint64            `json:"seq"`
}

func NewBoltVectorMemory(db *bbolt.DB, dimension int) (*BoltVectorMemory, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketVectors)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vectors bucket: %w", err)
	}

	m := &BoltVectorMemory{
		db:        db,
		dimension: dimension,
		records:   make(map[string]domain.VectorRecord),
		now:       time.Now,
	}
	if err := m.load(); err != nil {
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}
	return m, nil
}

func (m *BoltVectorMemory) load() error {
	return m.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketVectors).ForEach(func(k, v []byte) error {
			var stored storedRecord
			if err := json.Unmarshal(v, &stored); err != nil {
				return fmt.Errorf("corrupt vector record %s: %w", k, err)
			}
			if len(stored.Vector) != m.dimension {
				return fmt.Errorf("vector record %s has dimension %d, memory expects %d", k, len(stored.Vector), m.dimension)
			}
			m.records[string(k)] = stored.record(string(k))
			return nil
		})
	})
}

func (s storedRecord) record(id string) domain.VectorRecord {
	return domain.VectorRecord{
		ID:         id,
		Vector:     s.Vector,
		Text:       s.Text,
		Category:   s.Category,
		Provenance: s.Provenance,
		InsertedAt: s.InsertedAt,
		Seq:        s.Seq,
	}
}

func toStored(r domain.VectorRecord) storedRecord {
	return storedRecord{
		Vector:     r.Vector,
		Text:       r.Text,
		Category:   r.Category,
		Provenance: r.Provenance,
		InsertedAt: r.InsertedAt,
		Seq:        r.Seq,
	}
}

func (m *BoltVectorMemory) Insert(ctx context.Context, record domain.VectorRecord) (string, error) {
	if err := domain.ValidateRecord(record, m.dimension); err != nil {
		return "", err
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.Vector = append([]float32(nil), record.Vector...)
	record.InsertedAt = m.now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		if b.Get([]byte(record.ID)) != nil {
			return fmt.Errorf("vector record already exists: %s", record.ID)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		record.Seq = seq
		data, err := json.Marshal(toStored(record))
		if err != nil {
			return err
		}
		return b.Put([]byte(record.ID), data)
	})
	if err != nil {
		return "", err
	}
	m.records[record.ID] = record
	return record.ID, nil
}

func (m *BoltVectorMemory) Query(ctx context.Context, vector []float32, k int) ([]domain.Neighbor, error) {
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

func (m *BoltVectorMemory) UpdateCategory(ctx context.Context, id, category string, provenance domain.Provenance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return &domain.NotFoundError{Kind: "vector record", ID: id}
	}
	r.Category = category
	r.Provenance = provenance

	err := m.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(toStored(r))
		if err != nil {
			return err
		}
		return tx.Bucket(bucketVectors).Put([]byte(id), data)
	})
	if err != nil {
		return fmt.Errorf("failed to update vector record %s: %w", id, err)
	}
	m.records[id] = r
	return nil
}

func (m *BoltVectorMemory) Get(ctx context.Context, id string) (domain.VectorRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return domain.VectorRecord{}, &domain.NotFoundError{Kind: "vector record", ID: id}
	}
	return r, nil
}

func (m *BoltVectorMemory) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// CountByProvenance splits the record count into machine and human labels.
func (m *BoltVectorMemory) CountByProvenance() map[domain.Provenance]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[domain.Provenance]int)
	for _, r := range m.records {
		counts[r.Provenance]++
	}
	return counts
}
