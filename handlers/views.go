// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/danielhkuo/kidwa/db"
	"github.com/danielhkuo/kidwa/models"
	"github.com/danielhkuo/kidwa/polls"
)

// loadPollView loads a poll with everything the client renders for it.
func loadPollView(ctx context.Context, q db.Querier, pollID, viewerID string, now time.Time) (models.PollView, error) {
	p, err := polls.Get(ctx, q, pollID)
	if err != nil {
		return models.PollView{}, err
	}
	return buildPollView(ctx, q, p, viewerID, now)
}

func buildPollView(ctx context.Context, q db.Querier, p models.Poll, viewerID string, now time.Time) (models.PollView, error) {
	v := models.PollView{Poll: p}
	v.Status = p.EffectiveStatus(now)
	v.SecondsRemaining = p.SecondsRemaining(now)

	err := q.QueryRowContext(ctx, `
		SELECT id, username, display_name, reputation FROM app_user WHERE id = $1
	`, p.CreatorID).Scan(&v.Creator.ID, &v.Creator.Username, &v.Creator.DisplayName, &v.Creator.Reputation)
	if err != nil {
		return models.PollView{}, fmt.Errorf("failed to query creator: %w", err)
	}

	options, err := polls.Options(ctx, q, p.ID)
	if err != nil {
		return models.PollView{}, err
	}

	breakdown, err := confidenceBreakdown(ctx, q, p.ID)
	if err != nil {
		return models.PollView{}, err
	}

	v.Options = make([]models.OptionView, len(options))
	for i, o := range options {
		v.Options[i] = models.OptionView{
			Option:     o,
			Percentage: models.Percentage(o.VoteCount, p.TotalVotes),
			Confidence: breakdown[o.ID],
		}
	}

	if viewerID != "" {
		var mv models.MyVote
		var correct sql.NullBool
		err := q.QueryRowContext(ctx, `
			SELECT option_id, confidence, is_correct, updated_at FROM vote
			WHERE poll_id = $1 AND user_id = $2
		`, p.ID, viewerID).Scan(&mv.OptionID, &mv.Confidence, &correct, &mv.UpdatedAt)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return models.PollView{}, fmt.Errorf("failed to query vote: %w", err)
		default:
			if correct.Valid {
				mv.IsCorrect = &correct.Bool
			}
			v.MyVote = &mv
		}
	}

	return v, nil
}

func confidenceBreakdown(ctx context.Context, q db.Querier, pollID string) (map[string]models.ConfidenceBreakdown, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT option_id, confidence, COUNT(*) FROM vote
		WHERE poll_id = $1
		GROUP BY option_id, confidence
	`, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to query confidence: %w", err)
	}
	defer rows.Close()

	out := map[string]models.ConfidenceBreakdown{}
	for rows.Next() {
		var optionID, confidence string
		var n int
		if err := rows.Scan(&optionID, &confidence, &n); err != nil {
			return nil, fmt.Errorf("failed to scan confidence: %w", err)
		}
		b := out[optionID]
		b.Add(confidence, n)
		out[optionID] = b
	}
	return out, rows.Err()
}

// pollQuery accumulates WHERE clauses with placeholders numbered in order.
type pollQuery struct {
	clauses []string
	args    []any
}

// arg appends a value and returns its placeholder.
func (lq *pollQuery) arg(v any) string {
	lq.args = append(lq.args, v)
	return fmt.Sprintf("$%d", len(lq.args))
}

func (lq *pollQuery) where(clause string) {
	lq.clauses = append(lq.clauses, clause)
}

// list runs the query and builds a view per poll. Rows are read fully
// before the per-poll lookups so a single connection is never held twice.
func (lq *pollQuery) list(ctx context.Context, q db.Querier, order string, limit, offset int, viewerID string, now time.Time) ([]models.PollView, error) {
	query := `SELECT ` + polls.Columns + ` FROM poll p`
	if len(lq.clauses) > 0 {
		query += " WHERE " + strings.Join(lq.clauses, " AND ")
	}
	query += " ORDER BY " + order
	query += " LIMIT " + lq.arg(limit) + " OFFSET " + lq.arg(offset)

	rows, err := q.QueryContext(ctx, query, lq.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query polls: %w", err)
	}
	var found []models.Poll
	for rows.Next() {
		var p models.Poll
		if err := polls.Scan(rows, &p); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan poll: %w", err)
		}
		found = append(found, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query polls: %w", err)
	}

	views := make([]models.PollView, 0, len(found))
	for _, p := range found {
		v, err := buildPollView(ctx, q, p, viewerID, now)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}
