// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danielhkuo/kidwa/auth"
	"github.com/danielhkuo/kidwa/db"
	"github.com/danielhkuo/kidwa/middleware"
	"github.com/danielhkuo/kidwa/models"
	"github.com/danielhkuo/kidwa/polls"
	"github.com/danielhkuo/kidwa/realtime"
)

type VotingHandler struct {
	base
}

func NewVotingHandler(d Deps) *VotingHandler {
	return &VotingHandler{base: newBase(d)}
}

// voteError carries the HTTP status for a rejected vote change.
type voteError struct {
	status int
	msg    string
}

func (e *voteError) Error() string { return e.msg }

var (
	errPollMissing = &voteError{http.StatusNotFound, "Poll not found"}
	errPollClosed  = &voteError{http.StatusConflict, "Poll is not open for voting"}
	errBadOption   = &voteError{http.StatusBadRequest, "Option does not belong to this poll"}
	errNoVote      = &voteError{http.StatusNotFound, "You have not voted on this poll"}
	errVoteRace    = &voteError{http.StatusConflict, "Vote was changed concurrently, try again"}
)

// CastVote handles PUT /polls/{id}/vote. A first vote is inserted, a vote
// for another option is moved, and a repeat of the same option only updates
// the confidence.
func (h *VotingHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	pollID := r.PathValue("id")
	p := caller(r)

	var req models.CastVoteRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.OptionID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "option_id is required")
		return
	}
	if !models.IsConfidence(req.Confidence) {
		middleware.ErrorResponse(w, http.StatusBadRequest, "confidence must be low, medium or high")
		return
	}

	ipHash := auth.HashIP(middleware.GetClientIP(r), h.cfg.IPHashSalt)
	created, err := h.castVote(r.Context(), pollID, p.UserID, req, ipHash, h.now())
	if h.voteFailed(w, err, pollID) {
		return
	}

	if created {
		h.metrics.VotesCast.WithLabelValues(req.Confidence).Inc()
	}
	h.log.Debug("vote recorded",
		zap.String("poll_id", pollID),
		zap.String("user_id", p.UserID),
		zap.String("option_id", req.OptionID),
		zap.String("confidence", req.Confidence),
		zap.Bool("new", created),
	)

	h.respondAfterChange(w, r, pollID)
}

func (h *VotingHandler) castVote(ctx context.Context, pollID, userID string, req models.CastVoteRequest, ipHash string, now time.Time) (bool, error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := requireOpen(ctx, tx, pollID, now); err != nil {
		return false, err
	}

	var belongs int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM poll_option WHERE id = $1 AND poll_id = $2
	`, req.OptionID, pollID).Scan(&belongs)
	if err != nil {
		return false, fmt.Errorf("failed to check option: %w", err)
	}
	if belongs == 0 {
		return false, errBadOption
	}

	var voteID, currentOption string
	err = tx.QueryRowContext(ctx, `
		SELECT id, option_id FROM vote WHERE poll_id = $1 AND user_id = $2
	`, pollID, userID).Scan(&voteID, &currentOption)
	created := err == sql.ErrNoRows
	if err != nil && !created {
		return false, fmt.Errorf("failed to query vote: %w", err)
	}

	switch {
	case created:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO vote (id, poll_id, user_id, option_id, confidence, ip_hash, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, uuid.NewString(), pollID, userID, req.OptionID, req.Confidence, ipHash, now, now)
		if db.IsUniqueViolation(err) {
			return false, errVoteRace
		}
		if err != nil {
			return false, fmt.Errorf("failed to insert vote: %w", err)
		}
		if err := execAll(ctx, tx,
			stmt{`UPDATE poll_option SET vote_count = vote_count + 1 WHERE id = $1`, []any{req.OptionID}},
			stmt{`UPDATE poll SET total_votes = total_votes + 1 WHERE id = $1`, []any{pollID}},
			stmt{`UPDATE app_user SET vote_count = vote_count + 1 WHERE id = $1`, []any{userID}},
		); err != nil {
			return false, err
		}

	case currentOption != req.OptionID:
		if err := execAll(ctx, tx,
			stmt{`UPDATE poll_option SET vote_count = vote_count - 1 WHERE id = $1`, []any{currentOption}},
			stmt{`UPDATE poll_option SET vote_count = vote_count + 1 WHERE id = $1`, []any{req.OptionID}},
			stmt{`UPDATE vote SET option_id = $1, confidence = $2, updated_at = $3 WHERE id = $4`,
				[]any{req.OptionID, req.Confidence, now, voteID}},
		); err != nil {
			return false, err
		}

	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE vote SET confidence = $1, updated_at = $2 WHERE id = $3
		`, req.Confidence, now, voteID)
		if err != nil {
			return false, fmt.Errorf("failed to update confidence: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit vote: %w", err)
	}
	return created, nil
}

// RetractVote handles DELETE /polls/{id}/vote
func (h *VotingHandler) RetractVote(w http.ResponseWriter, r *http.Request) {
	pollID := r.PathValue("id")
	p := caller(r)

	err := h.retractVote(r.Context(), pollID, p.UserID, h.now())
	if h.voteFailed(w, err, pollID) {
		return
	}

	h.log.Debug("vote retracted", zap.String("poll_id", pollID), zap.String("user_id", p.UserID))
	h.respondAfterChange(w, r, pollID)
}

func (h *VotingHandler) retractVote(ctx context.Context, pollID, userID string, now time.Time) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := requireOpen(ctx, tx, pollID, now); err != nil {
		return err
	}

	var voteID, optionID string
	err = tx.QueryRowContext(ctx, `
		SELECT id, option_id FROM vote WHERE poll_id = $1 AND user_id = $2
	`, pollID, userID).Scan(&voteID, &optionID)
	if err == sql.ErrNoRows {
		return errNoVote
	}
	if err != nil {
		return fmt.Errorf("failed to query vote: %w", err)
	}

	if err := execAll(ctx, tx,
		stmt{`DELETE FROM vote WHERE id = $1`, []any{voteID}},
		stmt{`UPDATE poll_option SET vote_count = vote_count - 1 WHERE id = $1`, []any{optionID}},
		stmt{`UPDATE poll SET total_votes = total_votes - 1 WHERE id = $1`, []any{pollID}},
		stmt{`UPDATE app_user SET vote_count = vote_count - 1 WHERE id = $1`, []any{userID}},
	); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit retraction: %w", err)
	}
	return nil
}

// requireOpen locks the poll and rejects votes on missing polls and on
// polls past their deadline, even before the expiry worker has closed them.
// Holding the lock keeps the vote read below consistent with concurrent
// changes by the same user and with resolution.
func requireOpen(ctx context.Context, q db.Querier, pollID string, now time.Time) error {
	err := polls.Lock(ctx, q, pollID)
	if errors.Is(err, polls.ErrNotFound) {
		return errPollMissing
	}
	if err != nil {
		return err
	}

	p, err := polls.Get(ctx, q, pollID)
	if err != nil {
		return err
	}
	if p.EffectiveStatus(now) != models.StatusOpen {
		return errPollClosed
	}
	return nil
}

type stmt struct {
	query string
	args  []any
}

func execAll(ctx context.Context, tx *sql.Tx, stmts ...stmt) error {
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s.query, s.args...); err != nil {
			return fmt.Errorf("failed to update counts: %w", err)
		}
	}
	return nil
}

// voteFailed writes the response for err and reports whether it did.
func (h *VotingHandler) voteFailed(w http.ResponseWriter, err error, pollID string) bool {
	if err == nil {
		return false
	}
	var ve *voteError
	if errors.As(err, &ve) {
		middleware.ErrorResponse(w, ve.status, ve.msg)
		return true
	}
	h.internalError(w, "failed to change vote", err, zap.String("poll_id", pollID))
	return true
}

// respondAfterChange publishes the new tally and returns the caller's view.
func (h *VotingHandler) respondAfterChange(w http.ResponseWriter, r *http.Request, pollID string) {
	ctx := r.Context()

	tally, err := polls.Tally(ctx, h.db, pollID)
	if err != nil {
		h.log.Warn("failed to load tally", zap.String("poll_id", pollID), zap.Error(err))
	} else {
		h.pub.Publish(realtime.PollTopic(pollID), realtime.EventTally, tally)
	}

	view, err := loadPollView(ctx, h.db, pollID, caller(r).UserID, h.now())
	if err != nil {
		h.internalError(w, "failed to load poll", err, zap.String("poll_id", pollID))
		return
	}
	middleware.JSONResponse(w, http.StatusOK, view)
}
