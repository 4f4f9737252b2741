// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/danielhkuo/poll-rooms/cliparse"
	"github.com/danielhkuo/poll-rooms/db"
)

// EnvTestDatabaseURL points the tests at a Postgres database instead of a
// throwaway SQLite file. The schema in that database is dropped and
// recreated by every test.
const EnvTestDatabaseURL = "TEST_DATABASE_URL"

// SetupTestDB creates a fresh test database with the full schema
func SetupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	ctx := context.Background()
	dbType, url := TestDatabase(t)

	conn, err := db.Open(ctx, dbType, url)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if err := db.DropSchema(ctx, conn); err != nil {
		t.Fatalf("Failed to clean database: %v", err)
	}
	if err := db.CreateSchema(ctx, conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return conn
}

// TestDatabase returns the database type and URL the current test should use.
func TestDatabase(t *testing.T) (dbType, url string) {
	t.Helper()

	if url := os.Getenv(EnvTestDatabaseURL); url != "" {
		return db.TypePostgres, url
	}
	return db.TypeSQLite, "file:" + filepath.Join(t.TempDir(), "polls.db")
}

// GetTestConfig returns a standard test configuration
func GetTestConfig(t *testing.T) cliparse.Config {
	t.Helper()

	dbType, url := TestDatabase(t)
	return cliparse.Config{
		Port:            3318,
		DatabaseURL:     url,
		DatabaseType:    dbType,
		ClientOrigins:   []string{"http://localhost:3000"},
		VoteRateLimit:   0,
		VoteRateWindow:  cliparse.DefaultVoteRateWindow,
		LogFormat:       cliparse.LogFormatText,
		HeartbeatPeriod: cliparse.DefaultHeartbeatPeriod,
	}
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}

// DecodeData decodes the data field of a success envelope into v.
func DecodeData(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var env struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	AssertJSON(t, w, &env)
	if env.Status != "success" {
		t.Fatalf("Expected status 'success', got '%s'", env.Status)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("Failed to decode envelope data: %v", err)
	}
}
