// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/quartz"
	"github.com/coder/websocket"

	"github.com/danielhkuo/poll-rooms/live"
	"github.com/danielhkuo/poll-rooms/middleware"
	"github.com/danielhkuo/poll-rooms/models"
	"github.com/danielhkuo/poll-rooms/room"
)

type LiveHandler struct {
	rooms          *room.Coordinator
	originPatterns []string
	clock          quartz.Clock
	heartbeat      time.Duration
}

// NewLiveHandler accepts websocket upgrades from the given client origins
// in addition to same-origin requests.
func NewLiveHandler(rooms *room.Coordinator, clientOrigins []string, clock quartz.Clock, heartbeat time.Duration) *LiveHandler {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &LiveHandler{
		rooms:          rooms,
		originPatterns: originPatterns(clientOrigins),
		clock:          clock,
		heartbeat:      heartbeat,
	}
}

// Watch handles GET /ws/polls/{pollID}
func (h *LiveHandler) Watch(w http.ResponseWriter, r *http.Request) {
	pollID := r.PathValue("pollID")
	if pollID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, models.CodeValidation, "poll_id is required")
		return
	}

	// Unknown polls get a plain 404 instead of an upgrade followed by a close.
	if _, err := h.rooms.GetPoll(r.Context(), pollID); err != nil {
		writeLedgerError(w, r, err, msgPollNotFound, "Failed to open live connection")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		// Accept has already written the HTTP error.
		slog.Warn("websocket upgrade failed", "poll_id", pollID, "error", err)
		return
	}

	conn := live.New(ws, pollID,
		live.WithClock(h.clock),
		live.WithHeartbeat(h.heartbeat),
		live.WithLogger(slog.Default().With("remote", middleware.GetClientIP(r))),
	)
	if err := conn.Serve(r.Context(), h.rooms); err != nil {
		slog.Debug("live connection ended", "poll_id", pollID, "error", err)
	}
}

// originPatterns turns configured origins into the host patterns
// websocket.Accept matches against.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			patterns = append(patterns, "*")
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			patterns = append(patterns, o)
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}
