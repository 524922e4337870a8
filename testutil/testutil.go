// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielhkuo/tabrela/auth"
	"github.com/danielhkuo/tabrela/cliparse"
	"github.com/danielhkuo/tabrela/db"
	"github.com/danielhkuo/tabrela/formats"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SetupTestDB creates a fresh in-memory database with the full schema.
// MaxOpenConns(1) keeps every query on the single in-memory connection.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })

	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:         3320,
		DatabaseURL:  ":memory:",
		DatabaseType: "sqlite",
		JWTSecret:    "test-jwt-secret",
	}
}

// CreateTestUser inserts a user row and returns its ID
func CreateTestUser(t *testing.T, conn *sql.DB, username string, isAdmin bool) string {
	t.Helper()

	id := uuid.New().String()
	_, err := conn.Exec(`
		INSERT INTO users (id, username, is_admin)
		VALUES ($1, $2, $3)
	`, id, username, isAdmin)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return id
}

// CheckInUser marks a user checked in for an event
func CheckInUser(t *testing.T, conn *sql.DB, eventID, userID string) {
	t.Helper()

	_, err := conn.Exec(`
		INSERT INTO attendance (event_id, user_id, is_checked_in, checked_in_at)
		VALUES ($1, $2, TRUE, $3)
	`, eventID, userID, time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to check in test user: %v", err)
	}
}

// CreateTestSeries inserts a match series and returns its ID
func CreateTestSeries(t *testing.T, conn *sql.DB, eventID, createdBy, format string, allowReply bool) string {
	t.Helper()

	id := uuid.New().String()
	_, err := conn.Exec(`
		INSERT INTO match_series (id, event_id, name, team_format, allow_reply_speeches, created_by)
		VALUES ($1, $2, 'Test Round', $3, $4, $5)
	`, id, eventID, format, allowReply, createdBy)
	if err != nil {
		t.Fatalf("Failed to create test series: %v", err)
	}

	return id
}

// CreateTestMatch inserts a match with its team skeleton and returns the
// match ID. The team positions follow the series' format.
func CreateTestMatch(t *testing.T, conn *sql.DB, seriesID, status string) string {
	t.Helper()

	var format string
	if err := conn.QueryRow(`SELECT team_format FROM match_series WHERE id = $1`, seriesID).Scan(&format); err != nil {
		t.Fatalf("Failed to read series format: %v", err)
	}

	id := uuid.New().String()
	_, err := conn.Exec(`
		INSERT INTO matches (id, series_id, status)
		VALUES ($1, $2, $3)
	`, id, seriesID, status)
	if err != nil {
		t.Fatalf("Failed to create test match: %v", err)
	}

	for _, pos := range formats.Positions(format) {
		_, err := conn.Exec(`
			INSERT INTO match_teams (id, match_id, position)
			VALUES ($1, $2, $3)
		`, uuid.New().String(), id, pos)
		if err != nil {
			t.Fatalf("Failed to create test team: %v", err)
		}
	}

	return id
}

// TeamID returns the team at a position within a match
func TeamID(t *testing.T, conn *sql.DB, matchID, position string) string {
	t.Helper()

	var id string
	err := conn.QueryRow(`
		SELECT id FROM match_teams WHERE match_id = $1 AND position = $2
	`, matchID, position).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to find team at %s: %v", position, err)
	}

	return id
}

// CreateTestAllocation inserts an allocation for a registered user and
// returns its ID. teamID and speakerRole may be empty for non-speakers.
func CreateTestAllocation(t *testing.T, conn *sql.DB, matchID, userID, role, teamID, speakerRole string, isChair bool) string {
	t.Helper()

	id := uuid.New().String()
	var team, sr *string
	if teamID != "" {
		team = &teamID
	}
	if speakerRole != "" {
		sr = &speakerRole
	}

	_, err := conn.Exec(`
		INSERT INTO allocations (id, match_id, user_id, role, team_id, speaker_role, is_chair, allocated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'test-admin')
	`, id, matchID, userID, role, team, sr, isChair)
	if err != nil {
		t.Fatalf("Failed to create test allocation: %v", err)
	}

	return id
}

// CreateTestBallot inserts a ballot shell and returns its ID
func CreateTestBallot(t *testing.T, conn *sql.DB, matchID, adjudicatorID string, isVoting bool) string {
	t.Helper()

	id := uuid.New().String()
	_, err := conn.Exec(`
		INSERT INTO ballots (id, match_id, adjudicator_id, is_voting)
		VALUES ($1, $2, $3, $4)
	`, id, matchID, adjudicatorID, isVoting)
	if err != nil {
		t.Fatalf("Failed to create test ballot: %v", err)
	}

	return id
}

// AuthHeader mints an access token for a user and returns request headers
func AuthHeader(t *testing.T, cfg cliparse.Config, userID, username string) map[string]string {
	t.Helper()

	token, err := auth.GenerateAccessToken(cfg.JWTSecret, userID, username, time.Hour)
	if err != nil {
		t.Fatalf("Failed to mint test token: %v", err)
	}

	return map[string]string{"Authorization": "Bearer " + token}
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
