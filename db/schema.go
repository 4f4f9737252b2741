// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"context"

	"github.com/jmoiron/sqlx"
	"golang.org/x/xerrors"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(ctx context.Context, conn *sqlx.DB) error {
	schema := postgresSchema
	if DialectOf(conn) == TypeSQLite {
		schema = sqliteSchema
	}

	_, err := conn.ExecContext(ctx, schema)
	if err != nil {
		return xerrors.Errorf("create schema: %w", err)
	}

	return nil
}

// DropSchema removes every table. Only tests call this.
func DropSchema(ctx context.Context, conn *sqlx.DB) error {
	_, err := conn.ExecContext(ctx, `
		DROP TABLE IF EXISTS votes;
		DROP TABLE IF EXISTS options;
		DROP TABLE IF EXISTS polls;
	`)
	if err != nil {
		return xerrors.Errorf("drop schema: %w", err)
	}
	return nil
}

// Both dialects carry the same constraints. The vote uniqueness rules live
// here and nowhere else: concurrent admissions are serialized by the store.
const postgresSchema = `
-- Polls
CREATE TABLE IF NOT EXISTS polls (
    id TEXT PRIMARY KEY,
    question TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Options
CREATE TABLE IF NOT EXISTS options (
    id TEXT PRIMARY KEY,
    poll_id TEXT NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
    text TEXT NOT NULL,
    vote_count BIGINT NOT NULL DEFAULT 0 CHECK (vote_count >= 0),
    sort_order INTEGER NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT options_id_poll_id_key UNIQUE (id, poll_id)
);

CREATE INDEX IF NOT EXISTS idx_options_poll_id ON options(poll_id);

-- Votes
CREATE TABLE IF NOT EXISTS votes (
    id TEXT PRIMARY KEY,
    poll_id TEXT NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
    option_id TEXT NOT NULL,
    voter_token TEXT NOT NULL,
    ip_address TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT votes_option_same_poll_fkey FOREIGN KEY (option_id, poll_id)
        REFERENCES options(id, poll_id) ON DELETE CASCADE,
    CONSTRAINT unique_vote_per_token UNIQUE (poll_id, voter_token),
    CONSTRAINT unique_vote_per_ip UNIQUE (poll_id, ip_address)
);

CREATE INDEX IF NOT EXISTS idx_votes_poll_option ON votes(poll_id, option_id);
`

const sqliteSchema = `
-- Polls
CREATE TABLE IF NOT EXISTS polls (
    id TEXT PRIMARY KEY,
    question TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

-- Options
CREATE TABLE IF NOT EXISTS options (
    id TEXT PRIMARY KEY,
    poll_id TEXT NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
    text TEXT NOT NULL,
    vote_count INTEGER NOT NULL DEFAULT 0 CHECK (vote_count >= 0),
    sort_order INTEGER NOT NULL,
    created_at DATETIME NOT NULL,
    CONSTRAINT options_id_poll_id_key UNIQUE (id, poll_id)
);

CREATE INDEX IF NOT EXISTS idx_options_poll_id ON options(poll_id);

-- Votes
CREATE TABLE IF NOT EXISTS votes (
    id TEXT PRIMARY KEY,
    poll_id TEXT NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
    option_id TEXT NOT NULL,
    voter_token TEXT NOT NULL,
    ip_address TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    CONSTRAINT votes_option_same_poll_fkey FOREIGN KEY (option_id, poll_id)
        REFERENCES options(id, poll_id) ON DELETE CASCADE,
    CONSTRAINT unique_vote_per_token UNIQUE (poll_id, voter_token),
    CONSTRAINT unique_vote_per_ip UNIQUE (poll_id, ip_address)
);

CREATE INDEX IF NOT EXISTS idx_votes_poll_option ON votes(poll_id, option_id);
`
