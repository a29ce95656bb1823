// Package postgres provides the Postgres-backed capture store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/pagesnap/internal/snapshot"
)

// dbPool is the subset of pgxpool.Pool the store uses, split out so
// tests can swap in pgxmock.
type dbPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// CaptureStore persists captures and their transcripts in Postgres.
//
// Expected schema:
//
//	CREATE TABLE captures (
//		id           TEXT PRIMARY KEY,
//		url          TEXT NOT NULL,
//		status       TEXT NOT NULL,
//		submitted_at TIMESTAMPTZ NOT NULL,
//		started_at   TIMESTAMPTZ,
//		finished_at  TIMESTAMPTZ,
//		error_text   TEXT NOT NULL DEFAULT '',
//		result       JSONB
//	);
//
//	CREATE TABLE capture_messages (
//		id         BIGSERIAL PRIMARY KEY,
//		capture_id TEXT NOT NULL REFERENCES captures (id),
//		kind       TEXT NOT NULL,
//		payload    JSONB NOT NULL,
//		sent_at    TIMESTAMPTZ NOT NULL
//	);
type CaptureStore struct {
	pool dbPool
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// NewCaptureStore creates a Postgres-backed CaptureStore using the
// provided config.
func NewCaptureStore(ctx context.Context, cfg Config) (*CaptureStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &CaptureStore{pool: pool}, nil
}

// NewCaptureStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewCaptureStoreWithPool(pool dbPool) (*CaptureStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &CaptureStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *CaptureStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateCapture inserts a new capture row.
func (s *CaptureStore) CreateCapture(ctx context.Context, c snapshot.Capture) error {
	if c.ID == "" {
		return fmt.Errorf("capture id is required")
	}
	query := `
		INSERT INTO captures (id, url, status, submitted_at, error_text)
		VALUES ($1, $2, $3, $4, '');
	`
	if _, err := s.pool.Exec(ctx, query, c.ID, c.URL, c.Status, c.Submitted); err != nil {
		return fmt.Errorf("insert capture: %w", err)
	}
	return nil
}

// UpdateCaptureStatus moves a capture through its lifecycle, stamping
// started_at on the first running transition and finished_at on
// terminal ones.
func (s *CaptureStore) UpdateCaptureStatus(ctx context.Context, id string, status snapshot.CaptureStatus, errText string) error {
	query := `
		UPDATE captures
		SET status = $2,
			error_text = $3,
			started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN $4 ELSE started_at END,
			finished_at = CASE WHEN $2 IN ('succeeded', 'failed') THEN $4 ELSE finished_at END
		WHERE id = $1;
	`
	tag, err := s.pool.Exec(ctx, query, id, status, errText, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update capture status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return snapshot.ErrNotFound
	}
	return nil
}

// SetCaptureResult attaches the finished artifacts to a capture.
func (s *CaptureStore) SetCaptureResult(ctx context.Context, id string, result snapshot.CaptureResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal capture result: %w", err)
	}
	query := `UPDATE captures SET result = $2 WHERE id = $1;`
	tag, err := s.pool.Exec(ctx, query, id, resultJSON)
	if err != nil {
		return fmt.Errorf("update capture result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return snapshot.ErrNotFound
	}
	return nil
}

// AppendMessage records one transcript entry for a capture.
func (s *CaptureStore) AppendMessage(ctx context.Context, id string, msg snapshot.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	query := `
		INSERT INTO capture_messages (capture_id, kind, payload, sent_at)
		VALUES ($1, $2, $3, $4);
	`
	if _, err := s.pool.Exec(ctx, query, id, msg.Kind, payload, msg.SentAt); err != nil {
		return fmt.Errorf("insert capture message: %w", err)
	}
	return nil
}

// GetCapture fetches a capture with its transcript.
func (s *CaptureStore) GetCapture(ctx context.Context, id string) (snapshot.Capture, error) {
	query := `
		SELECT id, url, status, submitted_at, started_at, finished_at, error_text, result
		FROM captures
		WHERE id = $1;
	`
	var (
		c          snapshot.Capture
		resultJSON []byte
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.URL,
		&c.Status,
		&c.Submitted,
		&c.Started,
		&c.Finished,
		&c.ErrorText,
		&resultJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return snapshot.Capture{}, snapshot.ErrNotFound
		}
		return snapshot.Capture{}, fmt.Errorf("select capture: %w", err)
	}
	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &c.Result); err != nil {
			return snapshot.Capture{}, fmt.Errorf("unmarshal capture result: %w", err)
		}
	}

	messages, err := s.listMessages(ctx, id)
	if err != nil {
		return snapshot.Capture{}, err
	}
	c.Messages = messages
	return c, nil
}

// ListCaptures returns summary rows ordered newest first, with the
// transcript omitted. A nil status lists every capture.
func (s *CaptureStore) ListCaptures(ctx context.Context, status *snapshot.CaptureStatus, limit, offset int) ([]snapshot.Capture, error) {
	query := `
		SELECT id, url, status, submitted_at, started_at, finished_at, error_text, result
		FROM captures
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY submitted_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("select captures: %w", err)
	}
	defer rows.Close()

	var captures []snapshot.Capture
	for rows.Next() {
		var (
			c          snapshot.Capture
			resultJSON []byte
		)
		if err := rows.Scan(
			&c.ID,
			&c.URL,
			&c.Status,
			&c.Submitted,
			&c.Started,
			&c.Finished,
			&c.ErrorText,
			&resultJSON,
		); err != nil {
			return nil, fmt.Errorf("scan capture: %w", err)
		}
		if len(resultJSON) > 0 {
			if err := json.Unmarshal(resultJSON, &c.Result); err != nil {
				return nil, fmt.Errorf("unmarshal capture result: %w", err)
			}
		}
		captures = append(captures, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate captures: %w", err)
	}
	return captures, nil
}

func (s *CaptureStore) listMessages(ctx context.Context, id string) ([]snapshot.Message, error) {
	query := `
		SELECT payload
		FROM capture_messages
		WHERE capture_id = $1
		ORDER BY id;
	`
	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("select capture messages: %w", err)
	}
	defer rows.Close()

	var messages []snapshot.Message
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan capture message: %w", err)
		}
		var msg snapshot.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, fmt.Errorf("unmarshal capture message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate capture messages: %w", err)
	}
	return messages, nil
}
