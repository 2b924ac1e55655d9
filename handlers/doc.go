// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the Kidwa API.

# Handler Types

Each handler is a struct built from the shared Deps (database, config,
logger, metrics and realtime publisher):

  - UserHandler: registration, login and profiles
  - PollHandler: poll lifecycle, listings, feed and share metadata
  - VotingHandler: casting, changing and retracting votes
  - FollowHandler: follow graph
  - NotificationHandler: the notification inbox
  - LeaderboardHandler: weekly, monthly and all-time rankings
  - AdminHandler: moderation

Handlers are created via constructor functions:

	pollHandler := handlers.NewPollHandler(deps)

# Authentication

Routes that need a caller are wrapped with middleware.Auth.Require and read
the principal from the request context. Optional routes (poll views, public
profiles) personalize the response when a principal is present.

# Poll Lifecycle

Polls progress through three states: open → closed → resolved

	POST /polls              → CreatePoll
	POST /polls/{id}/close   → ClosePoll (creator or admin)
	POST /polls/{id}/resolve → ResolvePoll (settles reputation)

An open poll past its deadline is reported as closed and rejects votes even
before the expiry worker persists the change.

# Voting Flow

	PUT    /polls/{id}/vote → CastVote (insert, move or re-weight)
	DELETE /polls/{id}/vote → RetractVote

Vote changes run in one transaction that keeps poll_option.vote_count and
poll.total_votes equal to the vote rows, then publish the new tally on the
poll's realtime topic.
*/
package handlers
