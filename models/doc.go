// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the API.

# Request Types

Types for parsing incoming JSON:

  - CreatePollRequest: question, options ([]string, at least 2)
  - CastVoteRequest: option_id

# Response Types

Successful responses are wrapped in an Envelope:

	{"status": "success", "message": "Poll fetched successfully", "data": {...}}

Failures use ErrorResponse with a stable Code (validation_error, not_found,
duplicate_vote, transient_store_error, internal_error, rate_limited).

Live updates are sent as LiveMessage:

	{"type": "poll_update", "data": {...poll...}}

# Domain Types

  - Poll: question, created_at, options, total_votes
  - Option: text and running vote_count
  - Vote: one admitted vote (voter token and IP are never serialized)

A Poll doubles as the snapshot returned after create, read, and vote. Counts
never decrease, so TotalVotes orders snapshots of the same poll: equal totals
mean equal counts.
*/
package models
