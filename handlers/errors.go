// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/poll-rooms/ledger"
	"github.com/danielhkuo/poll-rooms/middleware"
	"github.com/danielhkuo/poll-rooms/models"
)

const (
	msgPollNotFound   = "Poll not found"
	msgOptionNotFound = "Poll or option not found"
	msgAlreadyVoted   = "You have already voted."
	msgTryAgain       = "Service temporarily unavailable, please try again"
)

// writeLedgerError maps ledger errors onto HTTP responses. Store details are
// logged and never returned to the client.
func writeLedgerError(w http.ResponseWriter, r *http.Request, err error, notFoundMsg, internalMsg string) {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		middleware.ValidationErrorResponse(w, verr.Error(), []models.FieldError{{Field: verr.Field, Detail: verr.Detail}})
	case errors.Is(err, ledger.ErrNotFound):
		middleware.ErrorResponse(w, http.StatusNotFound, models.CodeNotFound, notFoundMsg)
	case errors.Is(err, ledger.ErrDuplicateVote):
		middleware.ErrorResponse(w, http.StatusConflict, models.CodeDuplicateVote, msgAlreadyVoted)
	case errors.Is(err, ledger.ErrTransientStore):
		slog.Warn("transient store error", "path", r.URL.Path, "error", err)
		w.Header().Set("Retry-After", "1")
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, models.CodeTransientStore, msgTryAgain)
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, models.CodeInternal, internalMsg)
	}
}
