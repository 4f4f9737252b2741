// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"golang.org/x/xerrors"
	_ "modernc.org/sqlite"
)

// Supported database types. The value doubles as the database/sql driver name.
const (
	TypePostgres = "postgres"
	TypeSQLite   = "sqlite"
)

// sqlitePragmas are applied to every SQLite connection. Foreign keys are off
// by default in SQLite and the cascade and same-poll rules depend on them.
var sqlitePragmas = []string{
	"_pragma=foreign_keys(1)",
	"_pragma=busy_timeout(5000)",
	"_pragma=journal_mode(WAL)",
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, dbType, url string) (*sqlx.DB, error) {
	switch dbType {
	case TypePostgres:
	case TypeSQLite:
		url = sqliteDSN(url)
	default:
		return nil, xerrors.Errorf("unsupported database type %q", dbType)
	}

	conn, err := sqlx.Open(dbType, url)
	if err != nil {
		return nil, xerrors.Errorf("open %s: %w", dbType, err)
	}

	if dbType == TypeSQLite {
		// SQLite allows a single writer. One pooled connection queues writers
		// in database/sql instead of failing them with SQLITE_BUSY.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, xerrors.Errorf("ping %s: %w", dbType, err)
	}

	return conn, nil
}

// DialectOf reports which of the supported types conn was opened with.
func DialectOf(conn *sqlx.DB) string {
	if conn.DriverName() == TypeSQLite {
		return TypeSQLite
	}
	return TypePostgres
}

func sqliteDSN(url string) string {
	if strings.Contains(url, "_pragma=") {
		return url
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + strings.Join(sqlitePragmas, "&")
}
