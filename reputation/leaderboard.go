// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package reputation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/danielhkuo/kidwa/db"
	"github.com/danielhkuo/kidwa/models"
)

// Leaderboard windows
const (
	WindowWeek  = "week"
	WindowMonth = "month"
	WindowAll   = "all"
)

var ErrInvalidWindow = errors.New("invalid leaderboard window")

// WindowStart returns the cutoff for a windowed leaderboard. ok is false for
// the all-time window, which has no cutoff.
func WindowStart(window string, now time.Time) (time.Time, bool, error) {
	switch window {
	case WindowWeek:
		return now.Add(-7 * 24 * time.Hour), true, nil
	case WindowMonth:
		return now.Add(-30 * 24 * time.Hour), true, nil
	case WindowAll:
		return time.Time{}, false, nil
	}
	return time.Time{}, false, fmt.Errorf("%w: %q", ErrInvalidWindow, window)
}

// Leaderboard ranks users for the window. Windowed boards sum reputation
// events since the cutoff and skip users without events in it; the all-time
// board ranks by current reputation. Banned users are excluded and ties are
// broken by username.
func Leaderboard(ctx context.Context, q db.Querier, window string, limit int, now time.Time) (models.Leaderboard, error) {
	since, windowed, err := WindowStart(window, now)
	if err != nil {
		return models.Leaderboard{}, err
	}

	board := models.Leaderboard{Window: window, GeneratedAt: now, Entries: []models.LeaderboardEntry{}}

	var query string
	var args []any
	if windowed {
		board.Since = &since
		query = `
			SELECT u.id, u.username, u.display_name, u.reputation, SUM(e.delta) AS score
			FROM reputation_event e
			JOIN app_user u ON u.id = e.user_id
			WHERE e.created_at >= $1 AND u.is_banned = FALSE
			GROUP BY u.id, u.username, u.display_name, u.reputation
			ORDER BY score DESC, u.username ASC
			LIMIT $2`
		args = []any{since, limit}
	} else {
		query = `
			SELECT id, username, display_name, reputation, reputation AS score
			FROM app_user
			WHERE is_banned = FALSE
			ORDER BY reputation DESC, username ASC
			LIMIT $1`
		args = []any{limit}
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return models.Leaderboard{}, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.User.ID, &e.User.Username, &e.User.DisplayName, &e.User.Reputation, &e.Score); err != nil {
			return models.Leaderboard{}, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		e.Rank = len(board.Entries) + 1
		e.ReputationDisplay = humanize.Comma(e.Score)
		e.Tier = Tier(e.User.Reputation)
		board.Entries = append(board.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return models.Leaderboard{}, fmt.Errorf("failed to read leaderboard: %w", err)
	}
	return board, nil
}
