// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging

Wrap handlers with request logging:

	r.Use(middleware.WithLogging)

Logs request start (method, path, remote) and completion (status, duration_ms).

# CORS Middleware

Enable cross-origin requests for frontend access:

	r.Use(middleware.CORS([]string{"http://localhost:3000"}))

Allows methods GET, POST, OPTIONS with headers Content-Type, Authorization,
X-Voter-Token. Credentials are allowed so the voter_token cookie is sent.

# Rate Limiting

Limit vote submissions per client IP:

	r.With(middleware.RateLimitByIP(30, time.Minute)).Post(...)

A zero limit disables the limiter.

# JSON Helpers

Write JSON responses:

	middleware.SuccessResponse(w, http.StatusOK, "Poll fetched successfully", poll)
	middleware.ErrorResponse(w, http.StatusNotFound, models.CodeNotFound, "Poll not found")

Read and validate JSON request bodies (go-playground/validator tags):

	var req models.CreatePollRequest
	if !middleware.ReadJSON(w, r, &req) {
		return
	}

# Client IP Extraction

GetClientIP returns the transport peer address with the port stripped:

	ip := middleware.GetClientIP(r)

Used as the per-IP vote admission key and the rate limiter key. Forwarding
headers are only honored when TrustProxyHeaders(true) runs earlier in the
chain, which rewrites RemoteAddr from them.
*/
package middleware
