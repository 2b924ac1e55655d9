// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/kidwa/db"
	"github.com/danielhkuo/kidwa/testutil"
)

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := db.Open("mysql", "user@/kidwa")
	assert.ErrorIs(t, err, db.ErrUnknownDriver)
}

func TestOpen_SQLite(t *testing.T) {
	conn, err := db.Open(db.DriverSQLite, "file:"+filepath.Join(t.TempDir(), "open.db"))
	require.NoError(t, err)
	defer conn.Close()

	var fk int
	require.NoError(t, conn.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk, "foreign keys should be enforced")
}

func TestCreateSchema_Idempotent(t *testing.T) {
	conn := testutil.SetupTestDB(t)

	// SetupTestDB already ran it once
	require.NoError(t, db.CreateSchema(conn))
	require.NoError(t, db.CreateSchema(conn))

	for _, table := range []string{"app_user", "follow", "poll", "poll_option", "vote", "reputation_event", "notification"} {
		n := testutil.QueryInt(t, conn, `SELECT COUNT(*) FROM `+table)
		assert.Zero(t, n, table)
	}
}

func TestSchema_ReputationFloor(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	u := testutil.CreateTestUser(t, conn, "alice")

	_, err := conn.Exec(`UPDATE app_user SET reputation = -1 WHERE id = $1`, u.ID)
	assert.Error(t, err, "reputation must not go below zero")
}

func TestSchema_OneVotePerUser(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	u := testutil.CreateTestUser(t, conn, "alice")
	creator := testutil.CreateTestUser(t, conn, "creator")
	pollID, options := testutil.CreateTestPoll(t, conn, creator.ID, "open", "Yes", "No")

	testutil.CastTestVote(t, conn, pollID, u.ID, options[0], "high")

	now := db.Now()
	_, err := conn.Exec(`
		INSERT INTO vote (id, poll_id, user_id, option_id, confidence, ip_hash, created_at, updated_at)
		VALUES ('dup', $1, $2, $3, 'low', '', $4, $5)
	`, pollID, u.ID, options[1], now, now)
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err))
}

func TestIsUniqueViolation(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	testutil.CreateTestUser(t, conn, "alice")

	_, err := conn.Exec(`
		INSERT INTO app_user (id, username, email, display_name, password_hash)
		VALUES ('other-id', 'alice', 'other@example.com', 'Alice', 'x')
	`)
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err))

	assert.True(t, db.IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, db.IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, db.IsUniqueViolation(errors.New("unique")))
	assert.False(t, db.IsUniqueViolation(nil))
}

func TestNow(t *testing.T) {
	now := db.Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.Zero(t, now.Nanosecond())
	assert.WithinDuration(t, time.Now(), now, 2*time.Second)
}
