// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db opens the database and creates the schema.

# Drivers

Open accepts the DATABASE_TYPE setting and a connection string:

	conn, err := db.Open(db.DriverPostgres, "postgres://...")
	conn, err := db.Open(db.DriverSQLite, "file:kidwa.db")

PostgreSQL goes through lib/pq. SQLite goes through the pure-Go
modernc.org/sqlite driver with foreign keys enabled and a single pooled
connection.

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn); err != nil {
		return err
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.
Queries throughout the module use $N placeholders in ascending order so the
same SQL runs on both engines.

# Tables

  - app_user: Accounts, reputation and denormalized counters
  - follow: Follower graph
  - poll: Questions, lifecycle state and resolution
  - poll_option: Options with running vote counts
  - vote: One vote per user per poll, with confidence
  - reputation_event: Ledger of every reputation change
  - notification: Per-user inbox

# Relationships

	app_user 1──* poll 1──* poll_option
	app_user 1──* vote *──1 poll_option
	app_user *──* app_user (via follow)
	app_user 1──* reputation_event
	app_user 1──* notification

# Errors

IsUniqueViolation recognizes duplicate-key errors from either driver so
handlers can map them to 409 Conflict.
*/
package db
