// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the Kidwa API server.

Kidwa (คิดว่า) is a Thai prediction poll service: users ask questions about
future events, vote with a confidence level, and earn reputation when the
poll is resolved in their favor.

# Starting the Server

The server requires environment variables or CLI flags for configuration:

	DATABASE_URL=file:kidwa.db JWT_SECRET=... IP_HASH_SALT=... kidwa

Or with flags:

	kidwa serve -p 3318 -t postgres -d "postgres://..."

# Commands

  - serve (default): API server, realtime hub and expiry worker
  - migrate: create the schema and exit
  - expire: close ended polls once and exit
  - promote <username>: grant admin rights

# Configuration

Required settings:

  - DATABASE_URL (-d): database connection string
  - JWT_SECRET (--jwt-secret): session signing secret
  - IP_HASH_SALT (--ip-salt): salt for hashed voter IPs

Optional settings:

  - PORT (-p): server port (default: 3318)
  - DATABASE_TYPE (-t): sqlite (default) or postgres
  - TOKEN_TTL, BASE_URL, EXPIRY_INTERVAL, LOG_LEVEL, DEV

# Architecture

  - handlers: HTTP request handlers
  - router: route definitions using Go 1.22+ routing
  - middleware: authentication, CORS, logging, metrics, JSON helpers
  - polls, reputation, notify: shared domain logic
  - realtime: websocket hub
  - scheduler: poll expiry worker
  - catalog: embedded categories and badge rules
  - models: request, response and domain types
  - auth: passwords and session tokens
  - db: connections and schema
  - cliparse, logging, metrics: ambient configuration

See package documentation for each component.
*/
package main
