// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package testutil provides a throwaway database and fixtures for tests.
package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/danielhkuo/kidwa/auth"
	"github.com/danielhkuo/kidwa/cliparse"
	"github.com/danielhkuo/kidwa/db"
	"github.com/danielhkuo/kidwa/models"
)

// TestPassword is the password of every fixture user.
const TestPassword = "password123"

var (
	passwordHashOnce sync.Once
	passwordHash     string
)

// SetupTestDB creates a fresh SQLite database file with the full schema.
// The database is closed when the test finishes.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	auth.BcryptCost = bcrypt.MinCost

	path := filepath.Join(t.TempDir(), "kidwa.db")
	conn, err := db.Open(db.DriverSQLite, "file:"+path)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:           3318,
		DatabaseURL:    "file::memory:",
		DatabaseType:   db.DriverSQLite,
		JWTSecret:      "test-jwt-secret",
		IPHashSalt:     "test-ip-salt",
		TokenTTL:       time.Hour,
		BaseURL:        "https://kidwa.test",
		ExpiryInterval: time.Second,
		LogLevel:       "debug",
	}
}

// NewLogger returns a logger that writes through t.Log.
func NewLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// CreateTestUser inserts a user with TestPassword and returns it.
func CreateTestUser(t *testing.T, conn *sql.DB, username string) models.User {
	t.Helper()

	passwordHashOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
		if err != nil {
			panic(err)
		}
		passwordHash = string(h)
	})

	u := models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        username + "@example.com",
		DisplayName:  "Test " + username,
		PasswordHash: passwordHash,
		CreatedAt:    db.Now(),
	}
	_, err := conn.Exec(`
		INSERT INTO app_user (id, username, email, display_name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.Username, u.Email, u.DisplayName, u.PasswordHash, u.CreatedAt)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return u
}

// MakeAdmin grants admin rights to a user.
func MakeAdmin(t *testing.T, conn *sql.DB, userID string) {
	t.Helper()
	if _, err := conn.Exec(`UPDATE app_user SET is_admin = TRUE WHERE id = $1`, userID); err != nil {
		t.Fatalf("Failed to make admin: %v", err)
	}
}

// SetReputation overwrites a user's reputation.
func SetReputation(t *testing.T, conn *sql.DB, userID string, rep int) {
	t.Helper()
	if _, err := conn.Exec(`UPDATE app_user SET reputation = $1 WHERE id = $2`, rep, userID); err != nil {
		t.Fatalf("Failed to set reputation: %v", err)
	}
}

// TokenFor issues a session token for the user with the test config secret.
func TokenFor(t *testing.T, userID string) string {
	t.Helper()
	cfg := GetTestConfig()
	token, err := auth.IssueToken(userID, cfg.JWTSecret, cfg.TokenTTL, time.Now())
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return token
}

// AuthHeader returns the Authorization header for the user.
func AuthHeader(t *testing.T, userID string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + TokenFor(t, userID)}
}

// CreateTestPoll creates a poll with the given option labels (two defaults
// when none are given) and returns its ID and option IDs in order.
// status should be "open", "closed" or "resolved"; open polls end in an hour.
func CreateTestPoll(t *testing.T, conn *sql.DB, creatorID, status string, labels ...string) (string, []string) {
	t.Helper()

	if len(labels) == 0 {
		labels = []string{"ใช่", "ไม่ใช่"}
	}

	now := db.Now()
	endsAt := now.Add(time.Hour)
	var closedAt *time.Time
	if status != models.StatusOpen {
		endsAt = now.Add(-time.Minute)
		closedAt = &endsAt
	}

	pollID := uuid.NewString()
	_, err := conn.Exec(`
		INSERT INTO poll (id, creator_id, question, description, category, kind, status, ends_at, closed_at, created_at)
		VALUES ($1, $2, 'Test question?', 'A test poll', 'other', 'standard', $3, $4, $5, $6)
	`, pollID, creatorID, status, endsAt, closedAt, now)
	if err != nil {
		t.Fatalf("Failed to create test poll: %v", err)
	}

	optionIDs := make([]string, len(labels))
	for i, label := range labels {
		optionIDs[i] = uuid.NewString()
		_, err := conn.Exec(`
			INSERT INTO poll_option (id, poll_id, label, position)
			VALUES ($1, $2, $3, $4)
		`, optionIDs[i], pollID, label, i)
		if err != nil {
			t.Fatalf("Failed to create test option: %v", err)
		}
	}

	if _, err := conn.Exec(`UPDATE app_user SET polls_created = polls_created + 1 WHERE id = $1`, creatorID); err != nil {
		t.Fatalf("Failed to bump polls_created: %v", err)
	}

	return pollID, optionIDs
}

// SetPollEndsAt moves a poll's deadline.
func SetPollEndsAt(t *testing.T, conn *sql.DB, pollID string, endsAt time.Time) {
	t.Helper()
	if _, err := conn.Exec(`UPDATE poll SET ends_at = $1 WHERE id = $2`, endsAt.UTC().Truncate(time.Second), pollID); err != nil {
		t.Fatalf("Failed to set ends_at: %v", err)
	}
}

// CastTestVote records a vote and keeps the denormalized counters in step.
func CastTestVote(t *testing.T, conn *sql.DB, pollID, userID, optionID, confidence string) string {
	t.Helper()

	voteID := uuid.NewString()
	now := db.Now()
	stmts := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO vote (id, poll_id, user_id, option_id, confidence, created_at, updated_at)
		  VALUES ($1, $2, $3, $4, $5, $6, $7)`, []any{voteID, pollID, userID, optionID, confidence, now, now}},
		{`UPDATE poll_option SET vote_count = vote_count + 1 WHERE id = $1`, []any{optionID}},
		{`UPDATE poll SET total_votes = total_votes + 1 WHERE id = $1`, []any{pollID}},
		{`UPDATE app_user SET vote_count = vote_count + 1 WHERE id = $1`, []any{userID}},
	}
	for _, s := range stmts {
		if _, err := conn.Exec(s.query, s.args...); err != nil {
			t.Fatalf("Failed to cast test vote: %v", err)
		}
	}

	return voteID
}

// Follow inserts a follow edge directly.
func Follow(t *testing.T, conn *sql.DB, followerID, followeeID string) {
	t.Helper()
	_, err := conn.Exec(`
		INSERT INTO follow (follower_id, followee_id, created_at) VALUES ($1, $2, $3)
	`, followerID, followeeID, db.Now())
	if err != nil {
		t.Fatalf("Failed to follow: %v", err)
	}
}

// AddReputationEvent inserts a ledger row without touching app_user.
func AddReputationEvent(t *testing.T, conn *sql.DB, userID string, delta int, at time.Time) {
	t.Helper()
	_, err := conn.Exec(`
		INSERT INTO reputation_event (id, user_id, delta, reason, created_at)
		VALUES ($1, $2, $3, 'test', $4)
	`, uuid.NewString(), userID, delta, at.UTC().Truncate(time.Second))
	if err != nil {
		t.Fatalf("Failed to add reputation event: %v", err)
	}
}

// QueryInt runs a single-value integer query.
func QueryInt(t *testing.T, conn *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := conn.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("Query %q failed: %v", query, err)
	}
	return n
}

// QueryString runs a single-value text query.
func QueryString(t *testing.T, conn *sql.DB, query string, args ...any) string {
	t.Helper()
	var s string
	if err := conn.QueryRow(query, args...).Scan(&s); err != nil {
		t.Fatalf("Query %q failed: %v", query, err)
	}
	return s
}

// PublishedEvent is one call captured by Publisher.
type PublishedEvent struct {
	Topic   string
	Type    string
	Payload any
}

// Publisher records realtime events instead of delivering them.
type Publisher struct {
	mu     sync.Mutex
	events []PublishedEvent
}

func (p *Publisher) Publish(topic, eventType string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, PublishedEvent{Topic: topic, Type: eventType, Payload: payload})
}

func (p *Publisher) Events() []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PublishedEvent(nil), p.events...)
}

// Count returns how many events of eventType went to topic.
func (p *Publisher) Count(topic, eventType string) int {
	n := 0
	for _, e := range p.Events() {
		if e.Topic == topic && e.Type == eventType {
			n++
		}
	}
	return n
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
