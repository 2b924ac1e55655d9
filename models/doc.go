// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the API.

# Request Types

Types for parsing incoming JSON:

  - RegisterRequest, LoginRequest, UpdateProfileRequest
  - CreatePollRequest: question, category, kind, options, duration
  - CastVoteRequest: option_id, confidence
  - ResolvePollRequest: correct_option_id
  - FeaturePollRequest, AdjustReputationRequest, BanUserRequest

# Domain Types

  - User: account row, including denormalized counters
  - Poll, Option: poll with per-option running counts
  - PollView: poll plus options, percentages, confidence breakdown and
    the caller's own vote
  - Notification, LeaderboardEntry, Badge, UserProfile

# Poll Lifecycle

Polls move open → closed → resolved. An open poll whose ends_at has passed
is reported as closed by EffectiveStatus before the expiry worker persists
the transition.

# Security Notes

Fields marked with json:"-" are never serialized:

  - User.PasswordHash
  - User.Email
*/
package models
