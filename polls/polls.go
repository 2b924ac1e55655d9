// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package polls holds the poll queries and state transitions shared by the
// HTTP handlers, the reputation engine and the expiry worker.
package polls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/danielhkuo/kidwa/db"
	"github.com/danielhkuo/kidwa/models"
)

var (
	ErrNotFound = errors.New("poll not found")
	ErrNotOpen  = errors.New("poll is not open")
)

// Columns is the select list matching Scan.
const Columns = `p.id, p.creator_id, p.question, p.description, p.category, p.kind, p.status,
	p.total_votes, p.is_featured, p.correct_option_id, p.ends_at, p.closed_at, p.resolved_at, p.created_at`

type scanner interface {
	Scan(dest ...any) error
}

// Scan reads a row selected with Columns.
func Scan(row scanner, p *models.Poll) error {
	return row.Scan(
		&p.ID, &p.CreatorID, &p.Question, &p.Description, &p.Category, &p.Kind, &p.Status,
		&p.TotalVotes, &p.IsFeatured, &p.CorrectOptionID, &p.EndsAt, &p.ClosedAt, &p.ResolvedAt, &p.CreatedAt,
	)
}

// Get loads one poll.
func Get(ctx context.Context, q db.Querier, id string) (models.Poll, error) {
	var p models.Poll
	err := Scan(q.QueryRowContext(ctx, `SELECT `+Columns+` FROM poll p WHERE p.id = $1`, id), &p)
	if err == sql.ErrNoRows {
		return models.Poll{}, ErrNotFound
	}
	if err != nil {
		return models.Poll{}, fmt.Errorf("failed to query poll: %w", err)
	}
	return p, nil
}

// Lock takes the poll's row lock for the rest of the transaction. Vote
// changes, resolution and deletion all lock the poll first so they apply
// in a single order. SQLite serializes writers already.
func Lock(ctx context.Context, q db.Querier, id string) error {
	res, err := q.ExecContext(ctx, `UPDATE poll SET total_votes = total_votes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to lock poll: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to lock poll: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Options loads a poll's options in display order.
func Options(ctx context.Context, q db.Querier, pollID string) ([]models.Option, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, poll_id, label, position, vote_count
		FROM poll_option
		WHERE poll_id = $1
		ORDER BY position
	`, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to query options: %w", err)
	}
	defer rows.Close()

	options := []models.Option{}
	for rows.Next() {
		var o models.Option
		if err := rows.Scan(&o.ID, &o.PollID, &o.Label, &o.Position, &o.VoteCount); err != nil {
			return nil, fmt.Errorf("failed to scan option: %w", err)
		}
		options = append(options, o)
	}
	return options, rows.Err()
}

// Close moves an open poll to closed. It returns ErrNotOpen when the poll
// has already been closed or resolved.
func Close(ctx context.Context, q db.Querier, pollID string, now time.Time) (models.Poll, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE poll SET status = $1, closed_at = $2
		WHERE id = $3 AND status = $4
	`, models.StatusClosed, now, pollID, models.StatusOpen)
	if err != nil {
		return models.Poll{}, fmt.Errorf("failed to close poll: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return models.Poll{}, fmt.Errorf("failed to close poll: %w", err)
	}

	p, err := Get(ctx, q, pollID)
	if err != nil {
		return models.Poll{}, err
	}
	if n == 0 {
		return p, ErrNotOpen
	}
	return p, nil
}

// Expired lists open polls whose deadline is at or before now, oldest first.
func Expired(ctx context.Context, q db.Querier, now time.Time, limit int) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id FROM poll
		WHERE status = $1 AND ends_at <= $2
		ORDER BY ends_at
		LIMIT $3
	`, models.StatusOpen, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired polls: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan poll id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Tally returns the current counts for the realtime feed.
func Tally(ctx context.Context, q db.Querier, pollID string) (models.Tally, error) {
	t := models.Tally{PollID: pollID, Options: map[string]int{}}
	options, err := Options(ctx, q, pollID)
	if err != nil {
		return t, err
	}
	for _, o := range options {
		t.Options[o.ID] = o.VoteCount
		t.TotalVotes += o.VoteCount
	}
	return t, nil
}
