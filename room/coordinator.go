// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package room

import (
	"context"
	"encoding/json"
	"log/slog"

	"golang.org/x/xerrors"

	"github.com/danielhkuo/poll-rooms/auth"
	"github.com/danielhkuo/poll-rooms/ledger"
	"github.com/danielhkuo/poll-rooms/models"
	"github.com/danielhkuo/poll-rooms/topic"
)

// Ledger is the subset of *ledger.Ledger the coordinator uses.
type Ledger interface {
	CreatePoll(ctx context.Context, question string, options []string) (models.Poll, error)
	GetPoll(ctx context.Context, pollID string) (models.Poll, error)
	SubmitVote(ctx context.Context, pollID, optionID, voterToken, originIP string) (models.Poll, error)
}

// Topics is the subset of *topic.Registry the coordinator uses.
type Topics interface {
	Subscribe(pollID string, sub topic.Subscriber) error
	Unsubscribe(pollID string, sub topic.Subscriber)
	Broadcast(ctx context.Context, pollID string, msg []byte) topic.Result
}

// Coordinator ties vote admission to live fan-out: every admitted vote is
// followed by exactly one broadcast of the resulting snapshot to the poll's
// topic, and nothing else is broadcast.
type Coordinator struct {
	ledger Ledger
	topics Topics
	logger *slog.Logger
}

func New(l Ledger, t Topics, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{ledger: l, topics: t, logger: logger}
}

func (c *Coordinator) CreatePoll(ctx context.Context, question string, options []string) (models.Poll, error) {
	return c.ledger.CreatePoll(ctx, question, options)
}

func (c *Coordinator) GetPoll(ctx context.Context, pollID string) (models.Poll, error) {
	return c.ledger.GetPoll(ctx, pollID)
}

// CastVote admits the vote and, on success, broadcasts the same snapshot it
// returns. A rejected vote broadcasts nothing.
//
// The request context is detached from cancellation: once a vote is
// submitted it either commits and fans out or rolls back, even if the voter
// disconnects mid-request.
func (c *Coordinator) CastVote(ctx context.Context, pollID, optionID string, id auth.Identity) (models.Poll, error) {
	if pollID == "" {
		return models.Poll{}, &ledger.ValidationError{Field: "poll_id", Detail: "is required"}
	}
	if optionID == "" {
		return models.Poll{}, &ledger.ValidationError{Field: "option_id", Detail: "is required"}
	}

	ctx = context.WithoutCancel(ctx)

	poll, err := c.ledger.SubmitVote(ctx, pollID, optionID, id.Token, id.IP)
	if err != nil {
		return models.Poll{}, err
	}

	msg, err := json.Marshal(models.LiveMessage{Type: models.MessagePollUpdate, Data: poll})
	if err != nil {
		// The vote is committed; a lost broadcast must not fail the request.
		c.logger.Error("encode poll update", "poll_id", pollID, "error", err)
		return poll, nil
	}

	res := c.topics.Broadcast(ctx, pollID, msg)
	c.logger.Debug("vote broadcast",
		"poll_id", pollID,
		"total_votes", poll.TotalVotes,
		"delivered", res.Delivered,
		"dropped", res.Dropped,
	)
	return poll, nil
}

// Watch subscribes sub to live updates for an existing poll. The returned
// function unsubscribes and is safe to call more than once.
func (c *Coordinator) Watch(ctx context.Context, pollID string, sub topic.Subscriber) (unsubscribe func(), err error) {
	if _, err := c.ledger.GetPoll(ctx, pollID); err != nil {
		return nil, err
	}
	if err := c.topics.Subscribe(pollID, sub); err != nil {
		return nil, xerrors.Errorf("subscribe to poll %q: %w", pollID, err)
	}
	return func() { c.topics.Unsubscribe(pollID, sub) }, nil
}
