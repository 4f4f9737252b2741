// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db opens the store, creates the schema, and classifies driver errors.

# Connecting

Open accepts a database type and URL:

	conn, err := db.Open(ctx, db.TypePostgres, "postgres://...")
	conn, err := db.Open(ctx, db.TypeSQLite, "file:polls.db")

SQLite connections get foreign_keys, busy_timeout and WAL pragmas and a pool of
one connection, since SQLite admits a single writer at a time.

# Schema Creation

	if err := db.CreateSchema(ctx, conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.

# Tables

  - polls: question and creation time
  - options: option text, running vote_count, sort_order
  - votes: one row per admitted vote

# Relationships

	polls 1──* options
	polls 1──* votes
	options 1──* votes (same poll only)

All foreign keys use ON DELETE CASCADE. Votes reference options through the
composite key (option_id, poll_id), so a vote can never point at an option of
another poll.

# Constraints

Vote admission relies on two unique constraints, not on application checks:

  - unique_vote_per_token: (poll_id, voter_token)
  - unique_vote_per_ip: (poll_id, ip_address)

# Errors

IsUniqueViolation, IsForeignKeyViolation and IsTransient inspect both
*pq.Error and *sqlite.Error so callers never compare driver message strings.
*/
package db
