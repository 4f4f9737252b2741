// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package ledger records votes and owns per-option tallies.

# Admission

SubmitVote runs in one transaction: it checks the option belongs to the poll,
inserts the vote row, and increments the option counter. The unique
constraints on (poll_id, voter_token) and (poll_id, ip_address) reject a
second vote from the same identity, so concurrent submissions are decided by
the store and not by any in-process lock.

	poll, err := l.SubmitVote(ctx, pollID, optionID, token, ip)
	switch {
	case errors.Is(err, ledger.ErrDuplicateVote):
	case errors.Is(err, ledger.ErrNotFound):
	case errors.Is(err, ledger.ErrTransientStore):
	}

The returned poll is read after commit and reflects at least this vote.

# Retries

Connection, timeout, and serialization failures are retried with
exponential backoff (see WithRetry). When retries run out the error wraps
ErrTransientStore.

A failed commit may still have landed. Row IDs are fixed before the first
attempt, and each retry first looks for the row it is about to write; if it
is there the operation succeeds without writing twice.
*/
package ledger
