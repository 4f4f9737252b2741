// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/xerrors"

	"github.com/danielhkuo/poll-rooms/db"
	"github.com/danielhkuo/poll-rooms/metrics"
	"github.com/danielhkuo/poll-rooms/models"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 20 * time.Millisecond
	defaultMaxBackoff     = 500 * time.Millisecond
)

// Ledger is the single source of truth for vote admission and tallies.
type Ledger struct {
	db      *sqlx.DB
	clock   quartz.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	maxAttempts    int
	initialBackoff time.Duration

	// commit is swapped in tests to simulate a commit whose outcome is
	// unknown to the caller.
	commit func(tx *sqlx.Tx) error
}

type Option func(*Ledger)

func WithClock(clock quartz.Clock) Option {
	return func(l *Ledger) {
		l.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// WithRetry sets how many times an operation is attempted when the store
// reports a transient failure, and the first backoff interval.
func WithRetry(maxAttempts int, initialBackoff time.Duration) Option {
	return func(l *Ledger) {
		if maxAttempts > 0 {
			l.maxAttempts = maxAttempts
		}
		if initialBackoff > 0 {
			l.initialBackoff = initialBackoff
		}
	}
}

func New(conn *sqlx.DB, opts ...Option) *Ledger {
	l := &Ledger{
		db:             conn,
		clock:          quartz.NewReal(),
		logger:         slog.Default(),
		metrics:        metrics.New(nil),
		maxAttempts:    defaultMaxAttempts,
		initialBackoff: defaultInitialBackoff,
		commit:         (*sqlx.Tx).Commit,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CreatePoll inserts the poll and its options in one transaction and returns
// the poll with options loaded in submission order.
func (l *Ledger) CreatePoll(ctx context.Context, question string, options []string) (models.Poll, error) {
	question, options, err := normalizePoll(question, options)
	if err != nil {
		return models.Poll{}, err
	}

	now := l.now()
	created := models.Poll{
		ID:        uuid.NewString(),
		Question:  question,
		CreatedAt: now,
		Options:   make([]models.Option, len(options)),
	}
	for i, text := range options {
		created.Options[i] = models.Option{
			ID:        uuid.NewString(),
			PollID:    created.ID,
			Text:      text,
			SortOrder: i,
			CreatedAt: now,
		}
	}

	attempt := 0
	err = l.retry(ctx, "create_poll", func() error {
		attempt++
		if attempt > 1 {
			landed, err := l.rowExists(ctx, `SELECT COUNT(*) FROM polls WHERE id = ?`, created.ID)
			if err != nil || landed {
				return err
			}
		}
		return l.inTx(ctx, func(tx *sqlx.Tx) error {
			_, err := tx.ExecContext(ctx, tx.Rebind(`
				INSERT INTO polls (id, question, created_at)
				VALUES (?, ?, ?)
			`), created.ID, created.Question, created.CreatedAt)
			if err != nil {
				return xerrors.Errorf("insert poll: %w", err)
			}

			for _, opt := range created.Options {
				_, err := tx.ExecContext(ctx, tx.Rebind(`
					INSERT INTO options (id, poll_id, text, vote_count, sort_order, created_at)
					VALUES (?, ?, ?, 0, ?, ?)
				`), opt.ID, opt.PollID, opt.Text, opt.SortOrder, opt.CreatedAt)
				if err != nil {
					return xerrors.Errorf("insert option %d: %w", opt.SortOrder, err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return models.Poll{}, err
	}

	l.logger.Info("poll created", "poll_id", created.ID, "options", len(options))
	poll, err := l.GetPoll(ctx, created.ID)
	if err != nil {
		// The poll is committed, so it is reported even when the read back fails.
		l.logger.Warn("post-commit poll read failed, using inserted values",
			"poll_id", created.ID, "error", err)
		return created, nil
	}
	return poll, nil
}

// GetPoll reads a poll with its options.
func (l *Ledger) GetPoll(ctx context.Context, pollID string) (models.Poll, error) {
	if pollID == "" {
		return models.Poll{}, &ValidationError{Field: "poll_id", Detail: "is required"}
	}

	var poll models.Poll
	err := l.retry(ctx, "get_poll", func() error {
		var err error
		poll, err = loadPoll(ctx, l.db, pollID)
		return err
	})
	if err != nil {
		return models.Poll{}, err
	}
	return poll, nil
}

// SubmitVote admits one vote and returns the poll as it stands after the
// commit.
//
// The vote row and the counter increment share a transaction. Duplicate
// identities are rejected by the store's unique constraints, so two racing
// submissions for the same token or IP yield exactly one success regardless
// of how many processes share the store.
func (l *Ledger) SubmitVote(ctx context.Context, pollID, optionID, voterToken, originIP string) (models.Poll, error) {
	switch {
	case pollID == "":
		return models.Poll{}, &ValidationError{Field: "poll_id", Detail: "is required"}
	case optionID == "":
		return models.Poll{}, &ValidationError{Field: "option_id", Detail: "is required"}
	case voterToken == "":
		return models.Poll{}, &ValidationError{Field: "voter_token", Detail: "is required"}
	case originIP == "":
		return models.Poll{}, &ValidationError{Field: "ip_address", Detail: "is required"}
	}

	voteID := uuid.NewString()
	var committed models.Poll
	attempt := 0
	err := l.retry(ctx, "submit_vote", func() error {
		attempt++
		if attempt > 1 {
			landed, err := l.rowExists(ctx, `SELECT COUNT(*) FROM votes WHERE id = ?`, voteID)
			if err != nil {
				return err
			}
			if landed {
				committed, err = loadPoll(ctx, l.db, pollID)
				return err
			}
		}
		return l.inTx(ctx, func(tx *sqlx.Tx) error {
			// One query answers both "does the option exist" and "is it in
			// this poll".
			var found string
			err := tx.GetContext(ctx, &found, tx.Rebind(`
				SELECT id FROM options WHERE id = ? AND poll_id = ?
			`), optionID, pollID)
			if errors.Is(err, sql.ErrNoRows) {
				return xerrors.Errorf("option %q in poll %q: %w", optionID, pollID, ErrNotFound)
			}
			if err != nil {
				return xerrors.Errorf("find option: %w", err)
			}

			_, err = tx.ExecContext(ctx, tx.Rebind(`
				INSERT INTO votes (id, poll_id, option_id, voter_token, ip_address, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`), voteID, pollID, optionID, voterToken, originIP, l.now())
			switch {
			case db.IsUniqueViolation(err, db.UniqueVotePerToken):
				return xerrors.Errorf("voter token: %w", ErrDuplicateVote)
			case db.IsUniqueViolation(err, db.UniqueVotePerIP):
				return xerrors.Errorf("ip address: %w", ErrDuplicateVote)
			case db.IsUniqueViolation(err):
				return ErrDuplicateVote
			case db.IsForeignKeyViolation(err):
				return xerrors.Errorf("option %q in poll %q: %w", optionID, pollID, ErrNotFound)
			case err != nil:
				return xerrors.Errorf("insert vote: %w", err)
			}

			res, err := tx.ExecContext(ctx, tx.Rebind(`
				UPDATE options SET vote_count = vote_count + 1 WHERE id = ? AND poll_id = ?
			`), optionID, pollID)
			if err != nil {
				return xerrors.Errorf("increment vote count: %w", err)
			}
			if n, err := res.RowsAffected(); err == nil && n != 1 {
				return xerrors.Errorf("increment touched %d rows: %w", n, ErrNotFound)
			}

			// Held in case the post-commit read fails; the vote is admitted
			// by then and must still produce a snapshot.
			committed, err = loadPoll(ctx, tx, pollID)
			if err != nil {
				return xerrors.Errorf("load poll in transaction: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		l.metrics.Votes.WithLabelValues(voteResult(err)).Inc()
		return models.Poll{}, err
	}
	l.metrics.Votes.WithLabelValues(metrics.ResultAdmitted).Inc()

	// Re-read after commit so the snapshot includes every vote committed up
	// to now, not just the state this transaction saw.
	poll, err := l.GetPoll(ctx, pollID)
	if err != nil {
		l.logger.Warn("post-commit poll read failed, using in-transaction snapshot",
			"poll_id", pollID, "error", err)
		return committed, nil
	}
	return poll, nil
}

type queryer interface {
	sqlx.QueryerContext
	Rebind(string) string
}

func loadPoll(ctx context.Context, q queryer, pollID string) (models.Poll, error) {
	var poll models.Poll
	err := sqlx.GetContext(ctx, q, &poll, q.Rebind(`
		SELECT id, question, created_at FROM polls WHERE id = ?
	`), pollID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Poll{}, xerrors.Errorf("poll %q: %w", pollID, ErrNotFound)
	}
	if err != nil {
		return models.Poll{}, xerrors.Errorf("query poll: %w", err)
	}

	poll.Options = []models.Option{}
	err = sqlx.SelectContext(ctx, q, &poll.Options, q.Rebind(`
		SELECT id, poll_id, text, vote_count, sort_order, created_at
		FROM options
		WHERE poll_id = ?
		ORDER BY sort_order, id
	`), pollID)
	if err != nil {
		return models.Poll{}, xerrors.Errorf("query options: %w", err)
	}

	for _, opt := range poll.Options {
		poll.TotalVotes += opt.VoteCount
	}
	poll.CreatedAt = poll.CreatedAt.UTC()
	for i := range poll.Options {
		poll.Options[i].CreatedAt = poll.Options[i].CreatedAt.UTC()
	}
	return poll, nil
}

// inTx runs fn inside a transaction, committing on success and rolling back
// on any error.
func (l *Ledger) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return xerrors.Errorf("begin transaction: %w", err)
	}
	defer func() {
		rerr := tx.Rollback()
		if rerr == nil || errors.Is(rerr, sql.ErrTxDone) {
			// no need to do anything, tx committed successfully
			return
		}
		// couldn't roll back for some reason, extend returned error
		err = xerrors.Errorf("defer (%s): %w", rerr.Error(), err)
	}()

	err = fn(tx)
	if err != nil {
		return xerrors.Errorf("execute transaction: %w", err)
	}
	err = l.commit(tx)
	if err != nil {
		return xerrors.Errorf("commit transaction: %w", err)
	}
	return nil
}

// rowExists reports whether the row written by an earlier attempt exists. A
// commit that fails with a transient error may still have landed, so every
// retry checks before writing again.
func (l *Ledger) rowExists(ctx context.Context, query, id string) (bool, error) {
	var n int
	if err := l.db.GetContext(ctx, &n, l.db.Rebind(query), id); err != nil {
		return false, xerrors.Errorf("check earlier commit: %w", err)
	}
	return n > 0, nil
}

// retry runs fn again while it fails with a transient store error. A failed
// attempt leaves no partial state since every write is transactional.
func (l *Ledger) retry(ctx context.Context, op string, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = l.initialBackoff
	eb.MaxInterval = defaultMaxBackoff
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(l.maxAttempts-1)), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !db.IsTransient(err) {
			return backoff.Permanent(err)
		}
		if attempt < l.maxAttempts {
			l.metrics.StoreRetries.WithLabelValues(op).Inc()
			l.logger.Warn("transient store error, retrying", "op", op, "attempt", attempt, "error", err)
		}
		return err
	}, b)
	if err != nil && db.IsTransient(err) {
		return fmt.Errorf("%s after %d attempts: %w: %w", op, attempt, ErrTransientStore, err)
	}
	return err
}

func (l *Ledger) now() time.Time {
	// Postgres keeps microseconds; truncate so both dialects round-trip equal.
	return l.clock.Now().UTC().Truncate(time.Microsecond)
}

func normalizePoll(question string, options []string) (string, []string, error) {
	question = strings.TrimSpace(question)
	if n := utf8.RuneCountInString(question); n < models.QuestionMinLen || n > models.QuestionMaxLen {
		return "", nil, &ValidationError{
			Field:  "question",
			Detail: fmt.Sprintf("must be %d-%d characters", models.QuestionMinLen, models.QuestionMaxLen),
		}
	}

	if len(options) < models.MinOptions {
		return "", nil, &ValidationError{
			Field:  "options",
			Detail: fmt.Sprintf("at least %d options are required", models.MinOptions),
		}
	}
	cleaned := make([]string, 0, len(options))
	for i, opt := range options {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			return "", nil, &ValidationError{
				Field:  fmt.Sprintf("options[%d]", i),
				Detail: "must not be empty",
			}
		}
		cleaned = append(cleaned, opt)
	}
	return question, cleaned, nil
}

func voteResult(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateVote):
		return metrics.ResultDuplicate
	case errors.Is(err, ErrNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, ErrValidation):
		return metrics.ResultInvalid
	default:
		return metrics.ResultError
	}
}
