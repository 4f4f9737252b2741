// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// UniqueConstraint names a unique constraint in the schema.
type UniqueConstraint string

const (
	UniqueVotePerToken UniqueConstraint = "unique_vote_per_token"
	UniqueVotePerIP    UniqueConstraint = "unique_vote_per_ip"
)

// sqliteColumns maps a constraint to the column SQLite names in its
// "UNIQUE constraint failed: votes.poll_id, votes.voter_token" message.
// SQLite does not report constraint names.
var sqliteColumns = map[UniqueConstraint]string{
	UniqueVotePerToken: "votes.voter_token",
	UniqueVotePerIP:    "votes.ip_address",
}

// IsUniqueViolation checks if the error is due to a unique violation.
// If one or more specific unique constraints are given as arguments,
// the error must be caused by one of them. If no constraints are given,
// this function returns true for any unique violation.
func IsUniqueViolation(err error, uniqueConstraints ...UniqueConstraint) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code.Name() != "unique_violation" {
			return false
		}
		if len(uniqueConstraints) == 0 {
			return true
		}
		for _, uc := range uniqueConstraints {
			if pqErr.Constraint == string(uc) {
				return true
			}
		}
		return false
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		if code != sqlite3.SQLITE_CONSTRAINT_UNIQUE && code != sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY &&
			!(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed")) {
			return false
		}
		if len(uniqueConstraints) == 0 {
			return true
		}
		for _, uc := range uniqueConstraints {
			if col, ok := sqliteColumns[uc]; ok && strings.Contains(sqliteErr.Error(), col) {
				return true
			}
		}
	}

	return false
}

// IsForeignKeyViolation checks if the error is due to a foreign key violation.
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Name() == "foreign_key_violation"
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
	}

	return false
}

// transientPGCodes are failures where retrying the whole transaction is safe.
var transientPGCodes = map[pq.ErrorCode]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53300": true, // too_many_connections
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
}

// IsTransient reports whether err is a connection, timeout, or lock
// contention failure. Such failures leave no partial state behind, so the
// failed operation may be retried as a whole.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08 is connection_exception.
		return pqErr.Code.Class() == "08" || transientPGCodes[pqErr.Code]
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
