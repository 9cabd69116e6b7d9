// Package eventstore persists failover events to Postgres so the
// failover audit trail survives controller restarts. The in-memory
// event log inside the engine stays authoritative for dashboards;
// this store is the durable record.
package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FairForge/drctl/internal/dr"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

// Config holds the Postgres connection settings.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN renders the lib/pq connection string.
func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// Store is a Postgres-backed failover event log.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open connects to Postgres and ensures the schema exists.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing connection, for tests.
func NewWithDB(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS failover_events (
			id          UUID PRIMARY KEY,
			timestamp   TIMESTAMPTZ NOT NULL,
			from_region TEXT NOT NULL,
			to_region   TEXT NOT NULL,
			reason      TEXT NOT NULL,
			duration_ms BIGINT NOT NULL,
			success     BOOLEAN NOT NULL,
			detail_kind TEXT,
			detail      JSONB
		)
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Record inserts one failover event. Best-effort from the engine's
// point of view; the caller logs and moves on.
func (s *Store) Record(ctx context.Context, event dr.FailoverEvent) error {
	var detailKind sql.NullString
	var detailJSON []byte
	if event.Detail != nil {
		detailKind = sql.NullString{String: event.Detail.Kind(), Valid: true}
		raw, err := json.Marshal(event.Detail)
		if err != nil {
			return fmt.Errorf("marshal detail: %w", err)
		}
		detailJSON = raw
	}

	query := `
		INSERT INTO failover_events (
			id, timestamp, from_region, to_region, reason,
			duration_ms, success, detail_kind, detail
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Timestamp,
		event.FromRegion,
		event.ToRegion,
		event.Reason,
		event.Duration.Milliseconds(),
		event.Success,
		detailKind,
		nullBytes(detailJSON),
	)
	if err != nil {
		return fmt.Errorf("insert failover event: %w", err)
	}
	return nil
}

// StoredEvent is an event read back from the store. The detail payload
// stays raw; consumers dispatch on DetailKind.
type StoredEvent struct {
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	FromRegion string          `json:"from_region"`
	ToRegion   string          `json:"to_region"`
	Reason     string          `json:"reason"`
	Duration   time.Duration   `json:"duration"`
	Success    bool            `json:"success"`
	DetailKind string          `json:"detail_kind,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty"`
}

// List returns up to limit events, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, timestamp, from_region, to_region, reason,
		       duration_ms, success, detail_kind, detail
		FROM failover_events
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list failover events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var durationMs int64
		var detailKind sql.NullString
		var detail []byte

		if err := rows.Scan(&e.ID, &e.Timestamp, &e.FromRegion, &e.ToRegion,
			&e.Reason, &durationMs, &e.Success, &detailKind, &detail); err != nil {
			return nil, fmt.Errorf("scan failover event: %w", err)
		}
		e.Duration = time.Duration(durationMs) * time.Millisecond
		if detailKind.Valid {
			e.DetailKind = detailKind.String
		}
		if len(detail) > 0 {
			e.Detail = json.RawMessage(detail)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
