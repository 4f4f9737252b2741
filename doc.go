// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the Poll Rooms API server.

Poll Rooms is a live polling service: anyone can create a single-choice
poll, each voter gets one vote per poll, and everyone watching a poll sees
the counts change as votes arrive.

# Starting the Server

	DATABASE_URL=file:polls.db go run .

Or with flags:

	go run . -p 3318 -t postgres -d "postgres://..."

A .env file in the working directory is loaded first.

# Configuration

Required settings:

  - DATABASE_URL (-d): SQLite file URL or PostgreSQL connection string

Optional settings:

  - DATABASE_TYPE (-t): sqlite (default) or postgres
  - PORT (-p): Server port (default: 3318)
  - CLIENT_ORIGIN (--client-origin): Browser origin allowed with credentials
  - --config: YAML file with any of the above

# Architecture

  - ledger: Vote admission and tallies, backed by the database
  - topic: Registry of live subscribers per poll
  - room: Joins the two; every admitted vote is broadcast once
  - live: Websocket subscriber with heartbeat
  - handlers, router, middleware: HTTP surface
  - auth: Voter identity (cookie token plus client IP)
  - db: Connections, schema, driver error classification
  - metrics: Prometheus collectors
  - cliparse: Configuration parsing

See package documentation for each component.
*/
package main
