// Package history records connection lifecycle events in SQLite for
// operational audit. It is optional: the session server runs without it.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Event kinds recorded per connection.
const (
	KindJoin  = "join"
	KindLeave = "leave"
)

// Event is one connection lifecycle record.
type Event struct {
	ConnID   string    `json:"connId"`
	UserID   string    `json:"userId"`
	UserName string    `json:"userName"`
	TeamID   string    `json:"teamId"`
	Kind     string    `json:"kind"`
	At       time.Time `json:"at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS connection_events (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	conn_id   TEXT NOT NULL,
	user_id   TEXT NOT NULL,
	user_name TEXT NOT NULL,
	team_id   TEXT NOT NULL,
	kind      TEXT NOT NULL,
	at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_connection_events_team_at
	ON connection_events(team_id, at);
`

// Store appends events through a single writer goroutine. SQLite handles
// concurrent reads fine under WAL but write contention is avoided entirely
// by funneling inserts through one goroutine.
type Store struct {
	db     *sql.DB
	writes chan Event
	done   chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Open opens (creating if needed) the event log at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply event log schema: %w", err)
	}

	s := &Store{
		db:     db,
		writes: make(chan Event, 256),
		done:   make(chan struct{}),
		logger: logger,
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case ev := <-s.writes:
			s.insert(ev)
		case <-s.done:
			// Drain whatever is already queued before shutting down.
			for {
				select {
				case ev := <-s.writes:
					s.insert(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *Store) insert(ev Event) {
	_, err := s.db.Exec(
		`INSERT INTO connection_events (conn_id, user_id, user_name, team_id, kind, at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ConnID, ev.UserID, ev.UserName, ev.TeamID, ev.Kind, ev.At.UnixMilli(),
	)
	if err != nil {
		s.logger.Warn("failed to record connection event", "error", err, "kind", ev.Kind, "userId", ev.UserID)
	}
}

// Record enqueues an event without blocking the caller. A full queue drops
// the event; the audit log is advisory, never on the broadcast path.
func (s *Store) Record(ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	// Closed check and enqueue stay under one lock: an event accepted here
	// is always visible to Close's drain pass.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	select {
	case s.writes <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Recent returns up to limit events for a team, newest first.
func (s *Store) Recent(ctx context.Context, teamID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT conn_id, user_id, user_name, team_id, kind, at
		 FROM connection_events WHERE team_id = ? ORDER BY at DESC, id DESC LIMIT ?`,
		teamID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query connection events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var at int64
		if err := rows.Scan(&ev.ConnID, &ev.UserID, &ev.UserName, &ev.TeamID, &ev.Kind, &at); err != nil {
			return nil, fmt.Errorf("failed to scan connection event: %w", err)
		}
		ev.At = time.UnixMilli(at)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close flushes queued events and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
	return s.db.Close()
}
