package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dpavlenko/marksync/internal/common"
	"github.com/dpavlenko/marksync/internal/dbx"
	"github.com/dpavlenko/marksync/internal/events"
	"github.com/dpavlenko/marksync/internal/store/migrations"
	"github.com/pressly/goose/v3"
)

// SQLiteStore implements Store on a local SQLite database.
//
// Appends are serialized by a mutex: a local capture and an inbound
// replication event arriving together must not race the log.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStore returns a store bound to the given handle. The schema must
// already exist; see Open.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Open opens (or creates) the SQLite database at dsn and applies embedded
// migrations.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", common.ErrStorage, dsn, err)
	}

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: goose dialect: %v", common.ErrStorage, err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrations: %v", common.ErrStorage, err)
	}
	return db, nil
}

func (s *SQLiteStore) Append(ctx context.Context, e events.Event) error {
	return s.insert(ctx, e, false)
}

func (s *SQLiteStore) AppendRemote(ctx context.Context, e events.Event) error {
	return s.insert(ctx, e, true)
}

func (s *SQLiteStore) insert(ctx context.Context, e events.Event, replicated bool) error {
	if err := e.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("%w: encoding record: %v", common.ErrStorage, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `INSERT INTO events (event_id, type, timestamp, data, replicated)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(event_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, e.EventID, e.Type, e.Timestamp, string(data), boolToInt(replicated)); err != nil {
		return fmt.Errorf("%w: appending event: %v", common.ErrStorage, err)
	}
	return nil
}

func (s *SQLiteStore) LoadAll(ctx context.Context) ([]events.Event, error) {
	return s.query(ctx, `SELECT event_id, type, timestamp, data FROM events
		ORDER BY timestamp, event_id`)
}

func (s *SQLiteStore) LoadPending(ctx context.Context) ([]events.Event, error) {
	return s.query(ctx, `SELECT event_id, type, timestamp, data FROM events
		WHERE replicated = 0 ORDER BY timestamp, event_id`)
}

func (s *SQLiteStore) query(ctx context.Context, query string) ([]events.Event, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: selecting events: %v", common.ErrStorage, err)
	}
	defer rows.Close()

	var result []events.Event
	for rows.Next() {
		var e events.Event
		var data string
		if err := rows.Scan(&e.EventID, &e.Type, &e.Timestamp, &data); err != nil {
			return nil, fmt.Errorf("%w: scanning event: %v", common.ErrStorage, err)
		}
		if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
			return nil, fmt.Errorf("%w: decoding record %s: %v", common.ErrStorage, e.EventID, err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating events: %v", common.ErrStorage, err)
	}
	return result, nil
}

func (s *SQLiteStore) MarkReplicated(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE events SET replicated = 1 WHERE event_id = ?`, eventID)
	if err != nil {
		return fmt.Errorf("%w: marking %s replicated: %v", common.ErrStorage, eventID, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", common.ErrStorage, err)
	}
	if ra == 0 {
		return fmt.Errorf("%w: event %s", common.ErrNotFound, eventID)
	}
	return nil
}

// Clear wipes the event log in a transaction so a partial reset is never
// observable.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM events`); err != nil {
			return fmt.Errorf("%w: clearing events: %v", common.ErrStorage, err)
		}
		return nil
	})
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
