// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package reputation settles resolved polls into user reputation and derives
// everything computed from it: badges, tiers and leaderboards.
//
// Every change to app_user.reputation goes through this package and is
// mirrored by a reputation_event row, so windowed leaderboards are sums over
// the event ledger while the all-time board reads the running total.
// Confidence on a vote is informational and does not scale the delta.
package reputation
