package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"triage/internal/domain"
)

var (
	bucketTickets = []byte("tickets")
	bucketVectors = []byte("vectors")
	bucketMeta    = []byte("meta")
)

// BoltStore is a single-file bbolt database holding tickets, the vector
// memory and schema metadata. It implements port.TicketStore; the vector
// memory is opened on top of it with NewBoltVectorMemory.
type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketTickets, bucketVectors, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func ticketKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func parseTicketID(id string) ([]byte, bool) {
	seq, err := strconv.ParseUint(id, 10, 64)
	if err != nil || seq == 0 {
		return nil, false
	}
	return ticketKey(seq), true
}

func (s *BoltStore) Create(ctx context.Context, text string) (domain.Ticket, error) {
	var t domain.Ticket
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTickets)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		now := s.now().UTC()
		t = domain.Ticket{
			ID:          strconv.FormatUint(seq, 10),
			Text:        text,
			ContentHash: domain.ContentHash(text),
			Status:      domain.StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return putTicket(b, ticketKey(seq), t)
	})
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("failed to create ticket: %w", err)
	}
	return t, nil
}

func (s *BoltStore) Get(ctx context.Context, id string) (domain.Ticket, error) {
	var t domain.Ticket
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		t, err = getTicket(tx.Bucket(bucketTickets), id)
		return err
	})
	return t, err
}

func (s *BoltStore) Update(ctx context.Context, id string, upd domain.TicketUpdate) (domain.Ticket, error) {
	var next domain.Ticket
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTickets)
		t, err := getTicket(b, id)
		if err != nil {
			return err
		}
		next, err = domain.ApplyUpdate(t, upd, s.now().UTC())
		if err != nil {
			return err
		}
		key, _ := parseTicketID(id)
		return putTicket(b, key, next)
	})
	if err != nil {
		return domain.Ticket{}, err
	}
	return next, nil
}

func (s *BoltStore) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketTickets).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var t domain.Ticket
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("corrupt ticket %x: %w", k, err)
			}
			if t.Status != status {
				continue
			}
			out = append(out, t)
			if limit > 0 && len(out) == limit {
				return nil
			}
		}
		return nil
	})
	return out, err
}

// CountByStatus tallies tickets per status.
func (s *BoltStore) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	counts := make(map[domain.Status]int)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTickets).ForEach(func(k, v []byte) error {
			var t struct {
				Status domain.Status `json:"status"`
			}
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			counts[t.Status]++
			return nil
		})
	})
	return counts, err
}

func getTicket(b *bbolt.Bucket, id string) (domain.Ticket, error) {
	key, ok := parseTicketID(id)
	if !ok {
		return domain.Ticket{}, &domain.NotFoundError{Kind: "ticket", ID: id}
	}
	data := b.Get(key)
	if data == nil {
		return domain.Ticket{}, &domain.NotFoundError{Kind: "ticket", ID: id}
	}
	var t domain.Ticket
	if err := json.Unmarshal(data, &t); err != nil {
		return domain.Ticket{}, fmt.Errorf("corrupt ticket %s: %w", id, err)
	}
	return t, nil
}

func putTicket(b *bbolt.Bucket, key []byte, t domain.Ticket) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}
