// Package kvstore is the ephemeral side of registration state: the
// order→member-ids index used to correlate payment callbacks, the per-session
// lifecycle event log, and payment records reported by the provider webhook.
//
// Nothing here is authoritative. Registration status lives in PostgreSQL;
// losing this store loses debugging history and index entries, which the
// reconciliation path tolerates by falling back to the order id.
package kvstore

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("kvstore: not found")

const cleanupInterval = 10 * time.Minute

// Event is one entry of a session's lifecycle log.
type Event struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	Type      string         `json:"type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// PaymentRecord is the provider's view of a payment, keyed by our reference.
type PaymentRecord struct {
	Reference  string    `json:"reference"`
	ProviderID string    `json:"providerId"`
	EventType  string    `json:"eventType"`
	Status     string    `json:"status"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Store persists ephemeral entries in SQLite with a time-to-live.
type Store struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time

	stopCleanup chan struct{}
	mu          sync.Mutex
}

// Open creates (or reopens) the store at path. Entries older than ttl are
// removed by a background cleanup loop until Close is called.
func Open(path string, ttl time.Duration) (*Store, error) {
	path = filepath.Clean(strings.TrimSpace(path))
	if path == "" || path == "." {
		return nil, fmt.Errorf("kvstore path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create kvstore dir: %w", err)
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	dsn := path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open kvstore: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{
		db:          db,
		ttl:         ttl,
		now:         func() time.Time { return time.Now().UTC() },
		stopCleanup: make(chan struct{}),
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	go s.cleanupLoop()
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS order_index (
		order_id   TEXT PRIMARY KEY,
		member_ids TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS session_events (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		id         TEXT NOT NULL,
		session_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		metadata   TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id, seq);
	CREATE TABLE IF NOT EXISTS session_status (
		session_id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS payments (
		reference   TEXT PRIMARY KEY,
		provider_id TEXT NOT NULL,
		event_type  TEXT NOT NULL,
		status      TEXT NOT NULL,
		amount      INTEGER NOT NULL,
		currency    TEXT NOT NULL,
		updated_at  INTEGER NOT NULL,
		expires_at  INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init kvstore schema: %w", err)
	}
	return nil
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n, err := s.DeleteExpired(context.Background()); err != nil {
				log.Warn().Err(err).Msg("kvstore cleanup failed")
			} else if n > 0 {
				log.Debug().Int64("removed", n).Msg("kvstore cleanup")
			}
		case <-s.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup loop and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.stopCleanup:
		return nil
	default:
		close(s.stopCleanup)
	}
	return s.db.Close()
}

func (s *Store) expiry() int64 {
	return s.now().Add(s.ttl).UnixMilli()
}

// SetOrderMemberIDs records which members an order pays for.
func (s *Store) SetOrderMemberIDs(ctx context.Context, orderID string, memberIDs []string) error {
	if orderID == "" || len(memberIDs) == 0 {
		return fmt.Errorf("order id and member ids are required")
	}
	raw, err := json.Marshal(memberIDs)
	if err != nil {
		return fmt.Errorf("encode member ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO order_index (order_id, member_ids, expires_at) VALUES (?, ?, ?)`,
		orderID, string(raw), s.expiry(),
	)
	if err != nil {
		return fmt.Errorf("set order member ids: %w", err)
	}
	return nil
}

// GetOrderMemberIDs returns the member ids recorded for an order.
func (s *Store) GetOrderMemberIDs(ctx context.Context, orderID string) ([]string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT member_ids FROM order_index WHERE order_id = ? AND expires_at > ?`,
		orderID, s.now().UnixMilli(),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order member ids: %w", err)
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("decode member ids: %w", err)
	}
	return ids, nil
}

// LogEvent appends an event to the session's log and makes it the session's
// current status.
func (s *Store) LogEvent(ctx context.Context, sessionID, eventType string, metadata map[string]any) error {
	if sessionID == "" || eventType == "" {
		return fmt.Errorf("session id and event type are required")
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode event metadata: %w", err)
	}
	now := s.now()
	id := ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO session_events (id, session_id, event_type, metadata, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, sessionID, eventType, string(raw), now.UnixMilli(), s.expiry(),
	); err != nil {
		return fmt.Errorf("append session event: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO session_status (session_id, event_type, updated_at, expires_at)
		 VALUES (?, ?, ?, ?)`,
		sessionID, eventType, now.UnixMilli(), s.expiry(),
	); err != nil {
		return fmt.Errorf("set session status: %w", err)
	}
	return tx.Commit()
}

// GetSessionStatus returns the last event type logged for the session, or ""
// when the session is unknown.
func (s *Store) GetSessionStatus(ctx context.Context, sessionID string) (string, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT event_type FROM session_status WHERE session_id = ? AND expires_at > ?`,
		sessionID, s.now().UnixMilli(),
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get session status: %w", err)
	}
	return status, nil
}

// SessionEvents returns the session's log in the order it was written.
func (s *Store) SessionEvents(ctx context.Context, sessionID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, event_type, metadata, created_at
		 FROM session_events
		 WHERE session_id = ? AND expires_at > ?
		 ORDER BY seq ASC`,
		sessionID, s.now().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("list session events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			raw     string
			created int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Type, &raw, &created); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode event metadata: %w", err)
		}
		e.CreatedAt = time.UnixMilli(created).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// UpsertPayment stores the latest provider state for a payment reference.
func (s *Store) UpsertPayment(ctx context.Context, p PaymentRecord) error {
	if p.Reference == "" {
		return fmt.Errorf("payment reference is required")
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO payments (reference, provider_id, event_type, status, amount, currency, updated_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Reference, p.ProviderID, p.EventType, p.Status, p.Amount, p.Currency, p.UpdatedAt.UnixMilli(), s.expiry(),
	)
	if err != nil {
		return fmt.Errorf("upsert payment: %w", err)
	}
	return nil
}

// GetPayment returns the payment record for a reference.
func (s *Store) GetPayment(ctx context.Context, reference string) (PaymentRecord, error) {
	var (
		p       PaymentRecord
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT reference, provider_id, event_type, status, amount, currency, updated_at
		 FROM payments WHERE reference = ? AND expires_at > ?`,
		reference, s.now().UnixMilli(),
	).Scan(&p.Reference, &p.ProviderID, &p.EventType, &p.Status, &p.Amount, &p.Currency, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return PaymentRecord{}, ErrNotFound
	}
	if err != nil {
		return PaymentRecord{}, fmt.Errorf("get payment: %w", err)
	}
	p.UpdatedAt = time.UnixMilli(updated).UTC()
	return p, nil
}

// DeleteExpired removes every entry whose time-to-live has passed.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	now := s.now().UnixMilli()
	var total int64
	for _, table := range []string{"order_index", "session_events", "session_status", "payments"} {
		res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE expires_at <= ?`, now)
		if err != nil {
			return total, fmt.Errorf("delete expired %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
