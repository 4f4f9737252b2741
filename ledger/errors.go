// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is malformed input. Not retryable.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound means the poll is absent, or the option is absent or
	// belongs to a different poll. Not retryable.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateVote means the identity already voted in this poll, by
	// token or by IP. Terminal.
	ErrDuplicateVote = errors.New("duplicate vote")
	// ErrTransientStore is a connection, timeout, or contention failure that
	// outlived the ledger's own retries. The failed operation left no partial
	// state and may be retried as a whole.
	ErrTransientStore = errors.New("transient store error")
)

// ValidationError names the offending field. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Detail)
}

func (*ValidationError) Is(target error) bool {
	return target == ErrValidation
}
