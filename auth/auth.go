// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"golang.org/x/xerrors"

	"github.com/danielhkuo/poll-rooms/middleware"
)

const (
	// VoterCookieName carries the per-device voter token.
	VoterCookieName = "voter_token"
	// VoterHeaderName is accepted from native clients that do not keep cookies.
	VoterHeaderName = "X-Voter-Token"
	// VoterCookieMaxAge keeps the token for a year.
	VoterCookieMaxAge = 365 * 24 * time.Hour

	voterTokenBytes = 16 // 128 bits
	maxTokenLen     = 128
)

// Identity is the best-effort voter identity used for admission checks.
type Identity struct {
	Token string
	IP    string
}

// GenerateVoterToken creates a random 128-bit token for a voter.
func GenerateVoterToken() (string, error) {
	b := make([]byte, voterTokenBytes)
	_, err := rand.Read(b)
	if err != nil {
		return "", xerrors.Errorf("generate voter token: %w", err)
	}
	// URL-safe base64 without padding
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ResolveIdentity derives the voter identity for r. An existing token is
// reused unchanged. Otherwise a fresh token is generated and isNew is set so
// the caller can hand it back with SetVoterCookie.
func ResolveIdentity(r *http.Request) (id Identity, isNew bool, err error) {
	id.IP = middleware.GetClientIP(r)

	if token := requestToken(r); token != "" {
		id.Token = token
		return id, false, nil
	}

	id.Token, err = GenerateVoterToken()
	if err != nil {
		return Identity{}, false, err
	}
	return id, true, nil
}

// SetVoterCookie persists the voter token on the client for future requests.
func SetVoterCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     VoterCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(VoterCookieMaxAge / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func requestToken(r *http.Request) string {
	if c, err := r.Cookie(VoterCookieName); err == nil {
		if token := sanitizeToken(c.Value); token != "" {
			return token
		}
	}
	return sanitizeToken(r.Header.Get(VoterHeaderName))
}

// sanitizeToken rejects values no generated token could have, so junk input
// gets a fresh token instead of an oversized identity row.
func sanitizeToken(token string) string {
	token = strings.TrimSpace(token)
	if token == "" || len(token) > maxTokenLen {
		return ""
	}
	return token
}
