// Package sqlitestore keeps tickets in a SQLite database through the pure-Go
// modernc driver.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"triage/internal/domain"
)

var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS tickets (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    text         TEXT NOT NULL,
    status       TEXT NOT NULL,
    category     TEXT,
    vector_id    TEXT NOT NULL DEFAULT '',
    reason       TEXT NOT NULL DEFAULT '',
    content_hash TEXT NOT NULL DEFAULT '',
    created_at   TEXT NOT NULL,
    updated_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status, id);
CREATE INDEX IF NOT EXISTS idx_tickets_content_hash ON tickets(content_hash);
`,
	},
}

// TicketStore implements port.TicketStore on SQLite.
type TicketStore struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*TicketStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one writer keeps status transitions serialised
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &TicketStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *TicketStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  TEXT NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_versions(version, applied_at) VALUES(?, ?)`,
			m.version, s.now().UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *TicketStore) Close() error { return s.db.Close() }

func (s *TicketStore) Create(ctx context.Context, text string) (domain.Ticket, error) {
	now := s.now().UTC()
	t := domain.Ticket{
		Text:        text,
		ContentHash: domain.ContentHash(text),
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO tickets(text, content_hash, status, created_at, updated_at)
VALUES(?, ?, ?, ?, ?)`,
		t.Text, t.ContentHash, string(t.Status), formatTime(now), formatTime(now))
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("failed to create ticket: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("failed to read ticket id: %w", err)
	}
	t.ID = strconv.FormatInt(id, 10)
	return t, nil
}

func (s *TicketStore) Get(ctx context.Context, id string) (domain.Ticket, error) {
	return getTicket(ctx, s.db, id)
}

func (s *TicketStore) Update(ctx context.Context, id string, upd domain.TicketUpdate) (domain.Ticket, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Ticket{}, err
	}
	defer tx.Rollback()

	t, err := getTicket(ctx, tx, id)
	if err != nil {
		return domain.Ticket{}, err
	}
	next, err := domain.ApplyUpdate(t, upd, s.now().UTC())
	if err != nil {
		return domain.Ticket{}, err
	}
	_, err = tx.ExecContext(ctx, `
UPDATE tickets SET status=?, category=?, vector_id=?, reason=?, updated_at=?
WHERE id=?`,
		string(next.Status), nullable(next.Category), next.VectorID, next.Reason, formatTime(next.UpdatedAt), id)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("failed to update ticket %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Ticket{}, err
	}
	return next, nil
}

func (s *TicketStore) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.Ticket, error) {
	query := `SELECT id, text, content_hash, status, category, vector_id, reason, created_at, updated_at
FROM tickets WHERE status = ? ORDER BY id`
	args := []any{string(status)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountByStatus tallies tickets per status.
func (s *TicketStore) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tickets GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.Status(status)] = n
	}
	return counts, rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func getTicket(ctx context.Context, q queryer, id string) (domain.Ticket, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return domain.Ticket{}, &domain.NotFoundError{Kind: "ticket", ID: id}
	}
	row := q.QueryRowContext(ctx, `SELECT id, text, content_hash, status, category, vector_id, reason, created_at, updated_at
FROM tickets WHERE id = ?`, n)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Ticket{}, &domain.NotFoundError{Kind: "ticket", ID: id}
	}
	return t, err
}

func scanTicket(sc scanner) (domain.Ticket, error) {
	var (
		t                domain.Ticket
		id               int64
		status           string
		category         sql.NullString
		created, updated string
	)
	if err := sc.Scan(&id, &t.Text, &t.ContentHash, &status, &category, &t.VectorID, &t.Reason, &created, &updated); err != nil {
		return domain.Ticket{}, err
	}
	t.ID = strconv.FormatInt(id, 10)
	t.Status = domain.Status(status)
	t.Category = category.String
	var err error
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return domain.Ticket{}, fmt.Errorf("ticket %d: bad created_at: %w", id, err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return domain.Ticket{}, fmt.Errorf("ticket %d: bad updated_at: %w", id, err)
	}
	return t, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
