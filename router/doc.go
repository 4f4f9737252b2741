// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the Poll Rooms API.

# Route Registration

NewRouter builds a chi router with all endpoints:

	h := router.NewRouter(router.Options{Rooms: rooms, Config: cfg})

# Endpoints

Service:

	GET /health   - Liveness probe, returns "OK"
	GET /metrics  - Prometheus exposition
	GET /         - Banner

Polls (under /api/v1):

	POST /polls                  - Create poll
	GET  /polls/{pollID}         - Poll with current counts
	GET  /polls/{pollID}/results - Same snapshot as above

Voting (rate limited per client IP):

	POST /polls/{pollID}/votes   - Cast a vote

Live updates:

	GET /ws/polls/{pollID}       - Websocket stream of poll_update messages

# Middleware

Every route gets panic recovery and CORS for the configured client origins.
Routes under /api/v1 are logged with method, path, status, and duration.
*/
package router
