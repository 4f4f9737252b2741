// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the Poll Rooms API.

# Handler Types

Each handler is a struct over the room coordinator:

  - PollHandler: create a poll, read a poll or its results
  - VotingHandler: cast a vote
  - LiveHandler: websocket live updates

	rooms := room.New(ledger.New(conn), topic.New(), nil)
	pollHandler := handlers.NewPollHandler(rooms)

# Voting Flow

	POST /polls/{pollID}/votes → CastVote

The voter is identified by the voter_token cookie (or X-Voter-Token header)
together with the client IP. A first-time voter gets a new token in a
one-year HttpOnly cookie, but only when the vote is admitted. A second vote
by the same token or from the same IP is rejected with 409.

# Live Updates

	GET /ws/polls/{pollID} → Watch

Every admitted vote is pushed to the poll's watchers as

	{"type":"poll_update","data":<poll>}

where data is the same poll the voter received in the HTTP response.

# Errors

Ledger errors map to 400 (validation), 404 (unknown poll or option), 409
(duplicate vote), and 503 (transient store failure). Anything else is a 500
with a generic message.
*/
package handlers
