// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import "time"

// Poll question bounds, counted in runes after trimming.
const (
	QuestionMinLen = 5
	QuestionMaxLen = 500
	MinOptions     = 2
)

// Envelope status values
const (
	StatusSuccess = "success"
)

// Live message types
const (
	MessagePollUpdate = "poll_update"
)

// Error codes returned in ErrorResponse.Code
const (
	CodeValidation     = "validation_error"
	CodeNotFound       = "not_found"
	CodeDuplicateVote  = "duplicate_vote"
	CodeTransientStore = "transient_store_error"
	CodeInternal       = "internal_error"
	CodeRateLimited    = "rate_limited"
)

// Request types

type CreatePollRequest struct {
	Question string   `json:"question" validate:"required"`
	Options  []string `json:"options" validate:"required,min=2,dive,required"`
}

type CastVoteRequest struct {
	OptionID string `json:"option_id" validate:"required"`
}

// Response types

// Envelope wraps every successful response body.
type Envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// LiveMessage is pushed to every subscriber of a poll topic.
type LiveMessage struct {
	Type string `json:"type"`
	Data Poll   `json:"data"`
}

// Domain types

// Poll is also the snapshot shape: question plus every option with its
// current count. TotalVotes only grows, so it orders snapshots of one poll.
type Poll struct {
	ID         string    `json:"id" db:"id"`
	Question   string    `json:"question" db:"question"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	TotalVotes int64     `json:"total_votes" db:"-"`
	Options    []Option  `json:"options" db:"-"`
}

type Option struct {
	ID        string    `json:"id" db:"id"`
	PollID    string    `json:"poll_id" db:"poll_id"`
	Text      string    `json:"text" db:"text"`
	VoteCount int64     `json:"vote_count" db:"vote_count"`
	SortOrder int       `json:"-" db:"sort_order"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Vote struct {
	ID         string    `json:"id" db:"id"`
	PollID     string    `json:"poll_id" db:"poll_id"`
	OptionID   string    `json:"option_id" db:"option_id"`
	VoterToken string    `json:"-" db:"voter_token"` // Never expose in JSON
	IPAddress  string    `json:"-" db:"ip_address"`  // Never expose in JSON
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Error response

type FieldError struct {
	Field  string `json:"field"`
	Detail string `json:"detail"`
}

type ErrorResponse struct {
	Error   string       `json:"error"`
	Message string       `json:"message,omitempty"`
	Code    string       `json:"code,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}
