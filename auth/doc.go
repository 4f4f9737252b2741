// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth resolves the best-effort voter identity for vote admission.

There are no accounts. A voter is an opaque per-device token plus the
client IP address, and the store allows one vote per token and one per IP
in each poll.

# Resolving

	id, isNew, err := auth.ResolveIdentity(r)
	if isNew {
		auth.SetVoterCookie(w, id.Token)
	}

The token is read from the voter_token cookie, then the X-Voter-Token header.
If neither is present a new random 128-bit token (URL-safe base64, no padding)
is generated. The store is never consulted.

The IP comes from middleware.GetClientIP: the transport peer address, or
the forwarded client address when the server trusts proxy headers.

# Cookie

SetVoterCookie issues an HttpOnly, SameSite=Lax cookie valid for one year.
*/
package auth
