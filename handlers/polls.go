// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/danielhkuo/poll-rooms/middleware"
	"github.com/danielhkuo/poll-rooms/models"
	"github.com/danielhkuo/poll-rooms/room"
)

type PollHandler struct {
	rooms *room.Coordinator
}

func NewPollHandler(rooms *room.Coordinator) *PollHandler {
	return &PollHandler{rooms: rooms}
}

// CreatePoll handles POST /polls
func (h *PollHandler) CreatePoll(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePollRequest
	if !middleware.ReadJSON(w, r, &req) {
		return
	}

	poll, err := h.rooms.CreatePoll(r.Context(), req.Question, req.Options)
	if err != nil {
		writeLedgerError(w, r, err, msgPollNotFound, "Failed to create poll")
		return
	}

	slog.Info("poll created", "poll_id", poll.ID, "options", len(poll.Options))
	middleware.SuccessResponse(w, http.StatusCreated, "Poll created successfully", poll)
}

// GetPoll handles GET /polls/{pollID}
func (h *PollHandler) GetPoll(w http.ResponseWriter, r *http.Request) {
	h.writePoll(w, r, "Poll fetched successfully")
}

// GetResults handles GET /polls/{pollID}/results. Results are the same
// snapshot as the poll itself; the route exists for clients that only poll
// for counts.
func (h *PollHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	h.writePoll(w, r, "Results fetched successfully")
}

func (h *PollHandler) writePoll(w http.ResponseWriter, r *http.Request, message string) {
	pollID := r.PathValue("pollID")
	if pollID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, models.CodeValidation, "poll_id is required")
		return
	}

	poll, err := h.rooms.GetPoll(r.Context(), pollID)
	if err != nil {
		writeLedgerError(w, r, err, msgPollNotFound, "Failed to fetch poll")
		return
	}

	middleware.SuccessResponse(w, http.StatusOK, message, poll)
}
