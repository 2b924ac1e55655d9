// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package reputation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/kidwa/db"
	"github.com/danielhkuo/kidwa/models"
	"github.com/danielhkuo/kidwa/notify"
	"github.com/danielhkuo/kidwa/polls"
)

// Score changes applied when a poll is resolved.
const (
	CorrectDelta   = 10
	IncorrectDelta = -5
	Floor          = 0
)

// Event reasons stored in reputation_event.
const (
	ReasonCorrect   = "prediction_correct"
	ReasonIncorrect = "prediction_incorrect"
	ReasonAdmin     = "admin_adjustment"
)

var (
	ErrPollNotFound    = errors.New("poll not found")
	ErrAlreadyResolved = errors.New("poll already resolved")
	ErrInvalidOption   = errors.New("option does not belong to poll")
	ErrUserNotFound    = errors.New("user not found")
)

// Outcome is the effect of a resolution on one voter. Delta is the change
// actually applied, which differs from the nominal penalty at the floor.
type Outcome struct {
	UserID     string `json:"user_id"`
	OptionID   string `json:"option_id"`
	Confidence string `json:"confidence"`
	Correct    bool   `json:"correct"`
	Delta      int    `json:"delta"`
	Reputation int    `json:"reputation"`
}

type Resolution struct {
	Poll          models.Poll           `json:"poll"`
	Outcomes      []Outcome             `json:"outcomes"`
	Notifications []models.Notification `json:"-"`
}

// Resolve records the correct option of a poll and settles every vote in a
// single transaction. Open polls are closed as part of the resolution.
// Notifications are returned for delivery after commit.
func Resolve(ctx context.Context, conn *sql.DB, pollID, correctOptionID string, now time.Time) (Resolution, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Waits for in-flight vote changes so every committed vote is scored.
	err = polls.Lock(ctx, tx, pollID)
	if errors.Is(err, polls.ErrNotFound) {
		return Resolution{}, ErrPollNotFound
	}
	if err != nil {
		return Resolution{}, err
	}

	p, err := polls.Get(ctx, tx, pollID)
	if err != nil {
		return Resolution{}, err
	}
	if p.Status == models.StatusResolved {
		return Resolution{}, ErrAlreadyResolved
	}

	var belongs int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM poll_option WHERE id = $1 AND poll_id = $2
	`, correctOptionID, pollID).Scan(&belongs)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to check option: %w", err)
	}
	if belongs == 0 {
		return Resolution{}, ErrInvalidOption
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE poll
		SET status = $1, correct_option_id = $2, resolved_at = $3, closed_at = COALESCE(closed_at, $4)
		WHERE id = $5 AND status <> $6
	`, models.StatusResolved, correctOptionID, now, now, pollID, models.StatusResolved)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to resolve poll: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return Resolution{}, fmt.Errorf("failed to resolve poll: %w", err)
	} else if n == 0 {
		return Resolution{}, ErrAlreadyResolved
	}

	type ballot struct {
		voteID string
		Outcome
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT id, user_id, option_id, confidence FROM vote WHERE poll_id = $1 ORDER BY created_at, id
	`, pollID)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to query votes: %w", err)
	}
	var ballots []ballot
	for rows.Next() {
		var b ballot
		if err := rows.Scan(&b.voteID, &b.UserID, &b.OptionID, &b.Confidence); err != nil {
			rows.Close()
			return Resolution{}, fmt.Errorf("failed to scan vote: %w", err)
		}
		ballots = append(ballots, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Resolution{}, fmt.Errorf("failed to query votes: %w", err)
	}

	result := Resolution{Outcomes: make([]Outcome, 0, len(ballots))}
	for _, b := range ballots {
		b.Correct = b.OptionID == correctOptionID
		delta, reason, correctInc := IncorrectDelta, ReasonIncorrect, 0
		if b.Correct {
			delta, reason, correctInc = CorrectDelta, ReasonCorrect, 1
		}

		if _, err := tx.ExecContext(ctx, `UPDATE vote SET is_correct = $1 WHERE id = $2`, b.Correct, b.voteID); err != nil {
			return Resolution{}, fmt.Errorf("failed to mark vote: %w", err)
		}

		b.Delta, b.Reputation, err = apply(ctx, tx, b.UserID, delta)
		if err != nil {
			return Resolution{}, err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE app_user SET resolved_count = resolved_count + 1, correct_count = correct_count + $1
			WHERE id = $2
		`, correctInc, b.UserID)
		if err != nil {
			return Resolution{}, fmt.Errorf("failed to update counters: %w", err)
		}

		if err := recordEvent(ctx, tx, b.UserID, &pollID, b.Delta, reason, now); err != nil {
			return Resolution{}, err
		}

		n, err := notify.Create(ctx, tx, b.UserID, models.NotifyPollResolved, nil, &pollID,
			notify.PollResolvedMessage(p.Question, b.Correct, b.Delta), now)
		if err != nil {
			return Resolution{}, err
		}

		result.Outcomes = append(result.Outcomes, b.Outcome)
		result.Notifications = append(result.Notifications, n)
	}

	result.Poll, err = polls.Get(ctx, tx, pollID)
	if err != nil {
		return Resolution{}, err
	}

	if err := tx.Commit(); err != nil {
		return Resolution{}, fmt.Errorf("failed to commit resolution: %w", err)
	}
	return result, nil
}

// Adjust applies a manual change to a user's reputation and records it.
// It returns the applied delta and the new reputation.
func Adjust(ctx context.Context, conn *sql.DB, userID string, delta int, reason string, now time.Time) (int, int, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	applied, rep, err := apply(ctx, tx, userID, delta)
	if err != nil {
		return 0, 0, err
	}
	if reason == "" {
		reason = ReasonAdmin
	}
	if err := recordEvent(ctx, tx, userID, nil, applied, reason, now); err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit adjustment: %w", err)
	}
	return applied, rep, nil
}

// apply adds delta to the user's reputation without going below Floor.
func apply(ctx context.Context, tx *sql.Tx, userID string, delta int) (applied, rep int, err error) {
	// The no-op update takes the row lock on PostgreSQL before the read.
	var current int
	err = tx.QueryRowContext(ctx, `
		UPDATE app_user SET reputation = reputation WHERE id = $1 RETURNING reputation
	`, userID).Scan(&current)
	if err == sql.ErrNoRows {
		return 0, 0, ErrUserNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read reputation: %w", err)
	}

	rep = max(current+delta, Floor)
	if _, err := tx.ExecContext(ctx, `UPDATE app_user SET reputation = $1 WHERE id = $2`, rep, userID); err != nil {
		return 0, 0, fmt.Errorf("failed to update reputation: %w", err)
	}
	return rep - current, rep, nil
}

func recordEvent(ctx context.Context, q db.Querier, userID string, pollID *string, delta int, reason string, now time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO reputation_event (id, user_id, poll_id, delta, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.NewString(), userID, pollID, delta, reason, now)
	if err != nil {
		return fmt.Errorf("failed to record reputation event: %w", err)
	}
	return nil
}
