// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/danielhkuo/poll-rooms/auth"
	"github.com/danielhkuo/poll-rooms/middleware"
	"github.com/danielhkuo/poll-rooms/models"
	"github.com/danielhkuo/poll-rooms/room"
)

type VotingHandler struct {
	rooms *room.Coordinator
}

func NewVotingHandler(rooms *room.Coordinator) *VotingHandler {
	return &VotingHandler{rooms: rooms}
}

// CastVote handles POST /polls/{pollID}/votes
func (h *VotingHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	pollID := r.PathValue("pollID")
	if pollID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, models.CodeValidation, "poll_id is required")
		return
	}

	var req models.CastVoteRequest
	if !middleware.ReadJSON(w, r, &req) {
		return
	}

	id, isNew, err := auth.ResolveIdentity(r)
	if err != nil {
		slog.Error("failed to resolve voter identity", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, models.CodeInternal, "Failed to record vote")
		return
	}

	poll, err := h.rooms.CastVote(r.Context(), pollID, req.OptionID, id)
	if err != nil {
		writeLedgerError(w, r, err, msgOptionNotFound, "Failed to record vote")
		return
	}

	// Only a first-time voter whose vote was admitted gets a cookie.
	if isNew {
		auth.SetVoterCookie(w, id.Token)
	}

	slog.Info("vote recorded", "poll_id", pollID, "option_id", req.OptionID, "total_votes", poll.TotalVotes)
	middleware.SuccessResponse(w, http.StatusCreated, "Vote recorded successfully", poll)
}
