// Package eventstore journals narration requests and their stage events in
// SQLite, with retention applied on open and on demand.
package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/config"
	_ "modernc.org/sqlite"
)

// Request statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// timestamps are stored as fixed-width UTC text so they compare lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var ErrNotFound = errors.New("eventstore: request not found")

// Request is one journaled narration request.
type Request struct {
	RequestID   string
	Source      string
	Filename    string
	TextChars   int
	Sentences   int
	Status      string
	Stage       string
	Error       string
	AudioBytes  int
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Event is a timeline entry attached to a request.
type Event struct {
	ID        int64
	RequestID string
	TraceID   string
	Type      string
	Stage     string
	Payload   []byte
	CreatedAt time.Time
}

// Store wraps a SQLite-backed request journal.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the store according to config. Ephemeral mode returns a
// store that accepts writes and keeps nothing.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	log = log.With(slog.String("component", "eventstore"))
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("event store vacuum failed", slog.String("error", err.Error()))
		}
	}
	if err := s.Prune(ctx); err != nil {
		log.Warn("event store prune on start failed", slog.String("error", err.Error()))
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS requests (
    request_id TEXT PRIMARY KEY,
    source TEXT,
    filename TEXT,
    text_chars INTEGER NOT NULL DEFAULT 0,
    sentences INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    stage TEXT,
    error TEXT,
    audio_bytes INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    completed_at TEXT
);
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT NOT NULL,
    trace_id TEXT,
    event_type TEXT NOT NULL,
    stage TEXT,
    payload BLOB,
    created_at TEXT NOT NULL,
    FOREIGN KEY(request_id) REFERENCES requests(request_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_events_request ON events(request_id, id);
CREATE INDEX IF NOT EXISTS idx_requests_created ON requests(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Enabled reports whether anything is persisted.
func (s *Store) Enabled() bool {
	return s.db != nil
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendRequest records the start of a request.
func (s *Store) AppendRequest(ctx context.Context, req Request) error {
	if s.db == nil {
		return nil
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.clock()
	}
	if req.Status == "" {
		req.Status = StatusRunning
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO requests(request_id, source, filename, text_chars, sentences, status, stage, error, audio_bytes, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(request_id) DO UPDATE SET source=excluded.source, filename=excluded.filename, text_chars=excluded.text_chars`,
		req.RequestID, req.Source, req.Filename, req.TextChars, req.Sentences, req.Status, req.Stage, req.Error, req.AudioBytes,
		formatTime(req.CreatedAt))
	if err != nil {
		return fmt.Errorf("append request: %w", err)
	}
	return nil
}

// CompleteRequest stores the terminal state of a request.
func (s *Store) CompleteRequest(ctx context.Context, req Request) error {
	if s.db == nil {
		return nil
	}
	if req.CompletedAt.IsZero() {
		req.CompletedAt = s.clock()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE requests SET status = ?, stage = ?, error = ?, sentences = ?, audio_bytes = ?, completed_at = ?
		 WHERE request_id = ?`,
		req.Status, req.Stage, req.Error, req.Sentences, req.AudioBytes, formatTime(req.CompletedAt), req.RequestID)
	if err != nil {
		return fmt.Errorf("complete request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRequest loads one request row.
func (s *Store) GetRequest(ctx context.Context, requestID string) (Request, error) {
	if s.db == nil {
		return Request{}, ErrNotFound
	}
	var (
		r                Request
		source, filename sql.NullString
		stage, errText   sql.NullString
		created          string
		completed        sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT request_id, source, filename, text_chars, sentences, status, stage, error, audio_bytes, created_at, completed_at
		 FROM requests WHERE request_id = ?`, requestID).
		Scan(&r.RequestID, &source, &filename, &r.TextChars, &r.Sentences, &r.Status, &stage, &errText, &r.AudioBytes, &created, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return Request{}, ErrNotFound
	}
	if err != nil {
		return Request{}, fmt.Errorf("get request: %w", err)
	}
	r.Source, r.Filename, r.Stage, r.Error = source.String, filename.String, stage.String, errText.String
	r.CreatedAt = parseTime(created)
	if completed.Valid {
		r.CompletedAt = parseTime(completed.String)
	}
	return r, nil
}

// AppendEvent writes an event into the store.
func (s *Store) AppendEvent(ctx context.Context, evt Event) error {
	if s.db == nil {
		return nil
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(request_id, trace_id, event_type, stage, payload, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		evt.RequestID, evt.TraceID, evt.Type, evt.Stage, evt.Payload, formatTime(evt.CreatedAt))
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListRequestEvents retrieves up to limit events for a request in insertion order.
func (s *Store) ListRequestEvents(ctx context.Context, requestID string, limit int) ([]Event, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, trace_id, event_type, stage, payload, created_at
		 FROM events WHERE request_id = ? ORDER BY id ASC LIMIT ?`, requestID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e              Event
			traceID, stage sql.NullString
			created        string
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &traceID, &e.Type, &stage, &e.Payload, &created); err != nil {
			return nil, err
		}
		e.TraceID, e.Stage = traceID.String, stage.String
		e.CreatedAt = parseTime(created)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune applies configured retention by age and by request count.
func (s *Store) Prune(ctx context.Context) (err error) {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := formatTime(s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour))
		if _, err = tx.ExecContext(ctx, `DELETE FROM requests WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if s.cfg.MaxRequests > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM requests WHERE request_id IN (
			SELECT request_id FROM requests ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxRequests)
		if err != nil {
			return err
		}
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM events WHERE request_id NOT IN (SELECT request_id FROM requests)`); err != nil {
		return err
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	ts, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}
	}
	return ts
}
