package database

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/birbparty/nestlink/internal/queue"
	"github.com/jackc/pgx/v5"
)

// QueueStore is a queue.Store backed by PostgreSQL so queued requests
// survive a restart of the shell that issued them
type QueueStore struct {
	db *DB
}

var _ queue.Store = (*QueueStore)(nil)

// NewQueueStore creates a queue store over db. Call db.Migrate first.
func NewQueueStore(db *DB) *QueueStore {
	return &QueueStore{db: db}
}

// Append adds a request at the tail
func (s *QueueStore) Append(ctx context.Context, r queue.Request) error {
	header, err := encodeHeader(r.Header)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO queued_requests (id, method, url, header, body, enqueued_at, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := s.db.Exec(ctx, query, r.ID, r.Method, r.URL, header, r.Body, r.EnqueuedAt, r.RetryCount); err != nil {
		return fmt.Errorf("failed to append queued request: %w", err)
	}
	return nil
}

// List returns all requests, head first
func (s *QueueStore) List(ctx context.Context) ([]queue.Request, error) {
	query := `
		SELECT id, method, url, header, body, enqueued_at, retry_count
		FROM queued_requests
		ORDER BY seq ASC
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued requests: %w", err)
	}

	out, err := pgx.CollectRows(rows, scanRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to scan queued requests: %w", err)
	}
	return out, nil
}

// Remove deletes a request by ID
func (s *QueueStore) Remove(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM queued_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to remove queued request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrNotQueued
	}
	return nil
}

// Requeue moves a request to the tail by giving it a fresh sequence number
func (s *QueueStore) Requeue(ctx context.Context, r queue.Request) error {
	query := `
		UPDATE queued_requests
		SET seq = nextval(pg_get_serial_sequence('queued_requests', 'seq')),
			retry_count = $2
		WHERE id = $1
	`
	tag, err := s.db.Exec(ctx, query, r.ID, r.RetryCount)
	if err != nil {
		return fmt.Errorf("failed to requeue request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrNotQueued
	}
	return nil
}

// Clear removes every request
func (s *QueueStore) Clear(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM queued_requests`); err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}
	return nil
}

// Len returns the number of queued requests
func (s *QueueStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM queued_requests`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queued requests: %w", err)
	}
	return n, nil
}

// DeadRequest is a queued request that exhausted its retry budget
type DeadRequest struct {
	queue.Request
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
	FailedAt time.Time `json:"failedAt"`
}

// Bury records a discarded request so it can be inspected later
func (s *QueueStore) Bury(ctx context.Context, r queue.Request, attempts int, cause error) error {
	header, err := encodeHeader(r.Header)
	if err != nil {
		return err
	}

	var msg *string
	if cause != nil {
		m := cause.Error()
		msg = &m
	}

	query := `
		INSERT INTO dead_requests (id, method, url, header, body, enqueued_at, attempts, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			attempts = EXCLUDED.attempts,
			error_message = EXCLUDED.error_message,
			failed_at = NOW()
	`
	if _, err := s.db.Exec(ctx, query, r.ID, r.Method, r.URL, header, r.Body, r.EnqueuedAt, attempts, msg); err != nil {
		return fmt.Errorf("failed to record dead request: %w", err)
	}
	return nil
}

// Dead returns discarded requests, most recent first
func (s *QueueStore) Dead(ctx context.Context, limit int) ([]DeadRequest, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, method, url, header, body, enqueued_at, attempts, error_message, failed_at
		FROM dead_requests
		ORDER BY failed_at DESC
		LIMIT $1
	`
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead requests: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (DeadRequest, error) {
		var (
			d      DeadRequest
			header []byte
			msg    *string
		)
		err := row.Scan(&d.ID, &d.Method, &d.URL, &header, &d.Body, &d.EnqueuedAt, &d.Attempts, &msg, &d.FailedAt)
		if err != nil {
			return d, err
		}
		if d.Header, err = decodeHeader(header); err != nil {
			return d, err
		}
		if msg != nil {
			d.Error = *msg
		}
		return d, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan dead requests: %w", err)
	}
	return out, nil
}

func scanRequest(row pgx.CollectableRow) (queue.Request, error) {
	var (
		r      queue.Request
		header []byte
	)
	if err := row.Scan(&r.ID, &r.Method, &r.URL, &header, &r.Body, &r.EnqueuedAt, &r.RetryCount); err != nil {
		return r, err
	}
	h, err := decodeHeader(header)
	if err != nil {
		return r, err
	}
	r.Header = h
	return r, nil
}

func encodeHeader(h http.Header) ([]byte, error) {
	if h == nil {
		h = http.Header{}
	}
	data, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("failed to encode header: %w", err)
	}
	return data, nil
}

func decodeHeader(data []byte) (http.Header, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var h http.Header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}
	if len(h) == 0 {
		return nil, nil
	}
	return h, nil
}
