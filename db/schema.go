// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
// The DDL is valid for both PostgreSQL and SQLite.
func CreateSchema(db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema (statement %d): %w", i, err)
		}
	}

	return nil
}

// One statement per entry: lib/pq accepts multi-statement strings but the
// SQLite driver only executes the first.
var statements = []string{
	// Users
	`CREATE TABLE IF NOT EXISTS app_user (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL,
    bio TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    reputation INTEGER NOT NULL DEFAULT 0 CHECK (reputation >= 0),
    vote_count INTEGER NOT NULL DEFAULT 0 CHECK (vote_count >= 0),
    correct_count INTEGER NOT NULL DEFAULT 0,
    resolved_count INTEGER NOT NULL DEFAULT 0,
    polls_created INTEGER NOT NULL DEFAULT 0,
    is_admin BOOLEAN NOT NULL DEFAULT FALSE,
    is_banned BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS idx_app_user_reputation ON app_user(reputation)`,

	// Follows
	`CREATE TABLE IF NOT EXISTS follow (
    follower_id TEXT NOT NULL REFERENCES app_user(id) ON DELETE CASCADE,
    followee_id TEXT NOT NULL REFERENCES app_user(id) ON DELETE CASCADE,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (follower_id, followee_id),
    CHECK (follower_id <> followee_id)
)`,
	`CREATE INDEX IF NOT EXISTS idx_follow_followee ON follow(followee_id)`,

	// Polls
	`CREATE TABLE IF NOT EXISTS poll (
    id TEXT PRIMARY KEY,
    creator_id TEXT NOT NULL REFERENCES app_user(id) ON DELETE CASCADE,
    question TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL,
    kind TEXT NOT NULL DEFAULT 'standard' CHECK (kind IN ('standard', 'live')),
    status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'closed', 'resolved')),
    total_votes INTEGER NOT NULL DEFAULT 0 CHECK (total_votes >= 0),
    is_featured BOOLEAN NOT NULL DEFAULT FALSE,
    correct_option_id TEXT,
    ends_at TIMESTAMP NOT NULL,
    closed_at TIMESTAMP,
    resolved_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS idx_poll_status_ends ON poll(status, ends_at)`,
	`CREATE INDEX IF NOT EXISTS idx_poll_category ON poll(category)`,
	`CREATE INDEX IF NOT EXISTS idx_poll_creator ON poll(creator_id)`,

	// Options
	`CREATE TABLE IF NOT EXISTS poll_option (
    id TEXT PRIMARY KEY,
    poll_id TEXT NOT NULL REFERENCES poll(id) ON DELETE CASCADE,
    label TEXT NOT NULL,
    position INTEGER NOT NULL,
    vote_count INTEGER NOT NULL DEFAULT 0 CHECK (vote_count >= 0),
    UNIQUE (poll_id, position)
)`,
	`CREATE INDEX IF NOT EXISTS idx_poll_option_poll_id ON poll_option(poll_id)`,

	// Votes
	`CREATE TABLE IF NOT EXISTS vote (
    id TEXT PRIMARY KEY,
    poll_id TEXT NOT NULL REFERENCES poll(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL REFERENCES app_user(id) ON DELETE CASCADE,
    option_id TEXT NOT NULL REFERENCES poll_option(id) ON DELETE CASCADE,
    confidence TEXT NOT NULL CHECK (confidence IN ('low', 'medium', 'high')),
    is_correct BOOLEAN,
    ip_hash TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (poll_id, user_id)
)`,
	`CREATE INDEX IF NOT EXISTS idx_vote_option_id ON vote(option_id)`,
	`CREATE INDEX IF NOT EXISTS idx_vote_user_id ON vote(user_id)`,

	// Reputation ledger. poll_id is not a foreign key so history survives
	// poll deletion.
	`CREATE TABLE IF NOT EXISTS reputation_event (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES app_user(id) ON DELETE CASCADE,
    poll_id TEXT,
    delta INTEGER NOT NULL,
    reason TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS idx_reputation_event_created ON reputation_event(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_reputation_event_user ON reputation_event(user_id)`,

	// Notifications
	`CREATE TABLE IF NOT EXISTS notification (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES app_user(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    actor_id TEXT,
    poll_id TEXT,
    message TEXT NOT NULL,
    is_read BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS idx_notification_user ON notification(user_id, is_read)`,
}
