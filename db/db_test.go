// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/poll-rooms/db"
	"github.com/danielhkuo/poll-rooms/models"
	"github.com/danielhkuo/poll-rooms/testutil"
)

func seedPoll(t *testing.T, exec func(query string, args ...interface{}) error) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, exec(`INSERT INTO polls (id, question, created_at) VALUES (?, ?, ?)`, "p1", "Best color?", now))
	require.NoError(t, exec(`INSERT INTO polls (id, question, created_at) VALUES (?, ?, ?)`, "p2", "Best shape?", now))
	require.NoError(t, exec(`INSERT INTO options (id, poll_id, text, sort_order, created_at) VALUES (?, ?, ?, ?, ?)`, "o1", "p1", "Red", 0, now))
	require.NoError(t, exec(`INSERT INTO options (id, poll_id, text, sort_order, created_at) VALUES (?, ?, ?, ?, ?)`, "o2", "p2", "Circle", 0, now))
}

func TestSchemaConstraints(t *testing.T) {
	ctx := context.Background()
	conn := testutil.SetupTestDB(t)

	exec := func(query string, args ...interface{}) error {
		_, err := conn.ExecContext(ctx, conn.Rebind(query), args...)
		return err
	}
	seedPoll(t, exec)

	insertVote := func(id, pollID, optionID, token, ip string) error {
		return exec(`
			INSERT INTO votes (id, poll_id, option_id, voter_token, ip_address, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, pollID, optionID, token, ip, time.Now().UTC())
	}

	require.NoError(t, insertVote("v1", "p1", "o1", "tok", "10.0.0.1"))

	var vote models.Vote
	require.NoError(t, conn.GetContext(ctx, &vote, conn.Rebind(`
		SELECT id, poll_id, option_id, voter_token, ip_address, created_at FROM votes WHERE id = ?
	`), "v1"))
	assert.Equal(t, models.Vote{ID: "v1", PollID: "p1", OptionID: "o1", VoterToken: "tok", IPAddress: "10.0.0.1", CreatedAt: vote.CreatedAt}, vote)

	t.Run("duplicate token", func(t *testing.T) {
		err := insertVote("v2", "p1", "o1", "tok", "10.0.0.2")
		require.Error(t, err)
		assert.True(t, db.IsUniqueViolation(err))
		assert.True(t, db.IsUniqueViolation(err, db.UniqueVotePerToken))
		assert.False(t, db.IsUniqueViolation(err, db.UniqueVotePerIP))
		assert.False(t, db.IsTransient(err))
	})

	t.Run("duplicate ip", func(t *testing.T) {
		err := insertVote("v3", "p1", "o1", "other", "10.0.0.1")
		require.Error(t, err)
		assert.True(t, db.IsUniqueViolation(err, db.UniqueVotePerIP))
		assert.False(t, db.IsUniqueViolation(err, db.UniqueVotePerToken))
	})

	t.Run("option from another poll", func(t *testing.T) {
		err := insertVote("v4", "p1", "o2", "tok-4", "10.0.0.4")
		require.Error(t, err)
		assert.True(t, db.IsForeignKeyViolation(err))
		assert.False(t, db.IsUniqueViolation(err))
	})

	t.Run("same identity in another poll", func(t *testing.T) {
		require.NoError(t, insertVote("v5", "p2", "o2", "tok", "10.0.0.1"))
	})

	t.Run("negative count rejected", func(t *testing.T) {
		err := exec(`UPDATE options SET vote_count = -1 WHERE id = ?`, "o1")
		require.Error(t, err)
	})

	t.Run("poll delete cascades", func(t *testing.T) {
		require.NoError(t, exec(`DELETE FROM polls WHERE id = ?`, "p1"))
		var n int
		require.NoError(t, conn.GetContext(ctx, &n, conn.Rebind(`SELECT COUNT(*) FROM votes WHERE poll_id = ?`), "p1"))
		assert.Zero(t, n)
	})
}

func TestCreateSchema_Idempotent(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	require.NoError(t, db.CreateSchema(context.Background(), conn))
}

func TestOpen_UnsupportedType(t *testing.T) {
	_, err := db.Open(context.Background(), "mysql", "whatever")
	require.Error(t, err)
}

func TestIsTransient(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"bad conn", driver.ErrBadConn, true},
		{"wrapped bad conn", fmt.Errorf("query: %w", driver.ErrBadConn), true},
		{"deadline", context.DeadlineExceeded, true},
		{"serialization failure", &pq.Error{Code: "40001"}, true},
		{"deadlock", &pq.Error{Code: "40P01"}, true},
		{"connection class", &pq.Error{Code: "08006"}, true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, db.IsTransient(tc.err))
		})
	}
}

func TestIsUniqueViolation_Postgres(t *testing.T) {
	err := fmt.Errorf("insert vote: %w", &pq.Error{Code: "23505", Constraint: "unique_vote_per_ip"})

	assert.True(t, db.IsUniqueViolation(err))
	assert.True(t, db.IsUniqueViolation(err, db.UniqueVotePerIP))
	assert.False(t, db.IsUniqueViolation(err, db.UniqueVotePerToken))
	assert.False(t, db.IsForeignKeyViolation(err))

	fk := &pq.Error{Code: "23503", Constraint: "votes_option_same_poll_fkey"}
	assert.True(t, db.IsForeignKeyViolation(fk))
}
