// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package reputation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/kidwa/db"
	"github.com/danielhkuo/kidwa/reputation"
	"github.com/danielhkuo/kidwa/testutil"
)

func TestWindowStart(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

	since, ok, err := reputation.WindowStart(reputation.WindowWeek, now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC), since)

	since, ok, err = reputation.WindowStart(reputation.WindowMonth, now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2025, 2, 13, 12, 0, 0, 0, time.UTC), since)

	_, ok, err = reputation.WindowStart(reputation.WindowAll, now)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = reputation.WindowStart("year", now)
	assert.ErrorIs(t, err, reputation.ErrInvalidWindow)
}

func TestLeaderboard_AllTime(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	ctx := context.Background()

	alice := testutil.CreateTestUser(t, conn, "alice")
	bob := testutil.CreateTestUser(t, conn, "bob")
	carol := testutil.CreateTestUser(t, conn, "carol")
	banned := testutil.CreateTestUser(t, conn, "mallory")
	testutil.SetReputation(t, conn, alice.ID, 1500)
	testutil.SetReputation(t, conn, bob.ID, 1500)
	testutil.SetReputation(t, conn, carol.ID, 20)
	testutil.SetReputation(t, conn, banned.ID, 9000)
	_, err := conn.Exec(`UPDATE app_user SET is_banned = TRUE WHERE id = $1`, banned.ID)
	require.NoError(t, err)

	board, err := reputation.Leaderboard(ctx, conn, reputation.WindowAll, 10, db.Now())
	require.NoError(t, err)
	assert.Nil(t, board.Since)
	require.Len(t, board.Entries, 3)

	assert.Equal(t, 1, board.Entries[0].Rank)
	assert.Equal(t, "alice", board.Entries[0].User.Username)
	assert.Equal(t, "bob", board.Entries[1].User.Username, "ties break by username")
	assert.Equal(t, 2, board.Entries[1].Rank)
	assert.Equal(t, "1,500", board.Entries[0].ReputationDisplay)
	assert.Equal(t, "master", board.Entries[0].Tier)
	assert.Equal(t, "carol", board.Entries[2].User.Username)

	board, err = reputation.Leaderboard(ctx, conn, reputation.WindowAll, 1, db.Now())
	require.NoError(t, err)
	assert.Len(t, board.Entries, 1)
}

func TestLeaderboard_Week(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	ctx := context.Background()
	now := db.Now()

	alice := testutil.CreateTestUser(t, conn, "alice")
	bob := testutil.CreateTestUser(t, conn, "bob")
	testutil.CreateTestUser(t, conn, "idle")
	testutil.SetReputation(t, conn, alice.ID, 5000)

	testutil.AddReputationEvent(t, conn, alice.ID, 10, now.Add(-time.Hour))
	testutil.AddReputationEvent(t, conn, alice.ID, 2000, now.Add(-8*24*time.Hour))
	testutil.AddReputationEvent(t, conn, bob.ID, 10, now.Add(-2*time.Hour))
	testutil.AddReputationEvent(t, conn, bob.ID, 10, now.Add(-3*time.Hour))

	board, err := reputation.Leaderboard(ctx, conn, reputation.WindowWeek, 10, now)
	require.NoError(t, err)
	require.NotNil(t, board.Since)
	require.Len(t, board.Entries, 2, "users without events in the window are excluded")

	assert.Equal(t, "bob", board.Entries[0].User.Username)
	assert.Equal(t, int64(20), board.Entries[0].Score)
	assert.Equal(t, "alice", board.Entries[1].User.Username)
	assert.Equal(t, int64(10), board.Entries[1].Score)
	assert.Equal(t, "legend", board.Entries[1].Tier)

	board, err = reputation.Leaderboard(ctx, conn, reputation.WindowMonth, 10, now)
	require.NoError(t, err)
	assert.Equal(t, "alice", board.Entries[0].User.Username)
	assert.Equal(t, "2,010", board.Entries[0].ReputationDisplay)
}

func TestLeaderboard_InvalidWindow(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	_, err := reputation.Leaderboard(context.Background(), conn, "forever", 10, db.Now())
	assert.ErrorIs(t, err, reputation.ErrInvalidWindow)
}
