package database

// Schema holds the DDL for the durable offline queue. The seq column orders
// the queue; requeueing a request assigns it a fresh seq so it moves to the
// tail.
const Schema = `
CREATE TABLE IF NOT EXISTS queued_requests (
	id          TEXT PRIMARY KEY,
	seq         BIGSERIAL NOT NULL,
	method      TEXT NOT NULL,
	url         TEXT NOT NULL,
	header      JSONB NOT NULL DEFAULT '{}'::jsonb,
	body        BYTEA,
	enqueued_at TIMESTAMPTZ NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_queued_requests_seq ON queued_requests (seq);

CREATE TABLE IF NOT EXISTS dead_requests (
	id            TEXT PRIMARY KEY,
	method        TEXT NOT NULL,
	url           TEXT NOT NULL,
	header        JSONB NOT NULL DEFAULT '{}'::jsonb,
	body          BYTEA,
	enqueued_at   TIMESTAMPTZ NOT NULL,
	attempts      INTEGER NOT NULL,
	error_message TEXT,
	failed_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
