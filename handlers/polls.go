// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danielhkuo/kidwa/catalog"
	"github.com/danielhkuo/kidwa/middleware"
	"github.com/danielhkuo/kidwa/models"
	"github.com/danielhkuo/kidwa/notify"
	"github.com/danielhkuo/kidwa/polls"
	"github.com/danielhkuo/kidwa/realtime"
	"github.com/danielhkuo/kidwa/reputation"
)

// Poll creation limits
const (
	MinQuestionLength = 5
	MaxQuestionLength = 300
	MaxDescription    = 1000
	MinOptions        = 2
	MaxOptions        = 10
	MaxOptionLength   = 100

	DefaultStandardDuration = 7 * 24 * time.Hour
	MinStandardDuration     = time.Hour
	MaxStandardDuration     = 90 * 24 * time.Hour
	DefaultLiveDuration     = 5 * time.Minute
	MinLiveDuration         = 30 * time.Second
	MaxLiveDuration         = time.Hour
)

const siteName = "Kidwa"

type PollHandler struct {
	base
}

func NewPollHandler(d Deps) *PollHandler {
	return &PollHandler{base: newBase(d)}
}

// validateCreate normalizes req in place and returns the poll duration.
func validateCreate(req *models.CreatePollRequest) (time.Duration, error) {
	req.Question = strings.TrimSpace(req.Question)
	req.Description = strings.TrimSpace(req.Description)

	if n := utf8.RuneCountInString(req.Question); n < MinQuestionLength || n > MaxQuestionLength {
		return 0, fmt.Errorf("question must be %d-%d characters", MinQuestionLength, MaxQuestionLength)
	}
	if utf8.RuneCountInString(req.Description) > MaxDescription {
		return 0, fmt.Errorf("description must be at most %d characters", MaxDescription)
	}
	if !catalog.IsCategory(req.Category) {
		return 0, errors.New("unknown category")
	}
	if len(req.Options) < MinOptions || len(req.Options) > MaxOptions {
		return 0, fmt.Errorf("polls need %d-%d options", MinOptions, MaxOptions)
	}

	seen := make(map[string]bool, len(req.Options))
	for i, label := range req.Options {
		label = strings.TrimSpace(label)
		if label == "" || utf8.RuneCountInString(label) > MaxOptionLength {
			return 0, fmt.Errorf("option labels must be 1-%d characters", MaxOptionLength)
		}
		if seen[label] {
			return 0, fmt.Errorf("duplicate option %q", label)
		}
		seen[label] = true
		req.Options[i] = label
	}

	if req.Kind == "" {
		req.Kind = models.KindStandard
	}
	def, lo, hi := DefaultStandardDuration, MinStandardDuration, MaxStandardDuration
	switch req.Kind {
	case models.KindStandard:
	case models.KindLive:
		def, lo, hi = DefaultLiveDuration, MinLiveDuration, MaxLiveDuration
	default:
		return 0, errors.New("kind must be standard or live")
	}

	if req.DurationSeconds == 0 {
		return def, nil
	}
	d := time.Duration(req.DurationSeconds) * time.Second
	if d < lo || d > hi {
		return 0, fmt.Errorf("%s polls must last between %s and %s", req.Kind, lo, hi)
	}
	return d, nil
}

// CreatePoll handles POST /polls
func (h *PollHandler) CreatePoll(w http.ResponseWriter, r *http.Request) {
	p := caller(r)

	var req models.CreatePollRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	duration, err := validateCreate(&req)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	now := h.now()
	pollID := uuid.NewString()

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		h.internalError(w, "failed to begin transaction", err)
		return
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO poll (id, creator_id, question, description, category, kind, status, ends_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, pollID, p.UserID, req.Question, req.Description, req.Category, req.Kind, models.StatusOpen, now.Add(duration), now)
	if err != nil {
		h.internalError(w, "failed to insert poll", err)
		return
	}

	for i, label := range req.Options {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO poll_option (id, poll_id, label, position) VALUES ($1, $2, $3, $4)
		`, uuid.NewString(), pollID, label, i)
		if err != nil {
			h.internalError(w, "failed to insert option", err)
			return
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE app_user SET polls_created = polls_created + 1 WHERE id = $1`, p.UserID); err != nil {
		h.internalError(w, "failed to update polls_created", err)
		return
	}

	if err := tx.Commit(); err != nil {
		h.internalError(w, "failed to commit poll", err)
		return
	}

	h.metrics.PollsCreated.Inc()
	h.log.Info("poll created",
		zap.String("poll_id", pollID),
		zap.String("creator_id", p.UserID),
		zap.String("kind", req.Kind),
		zap.Duration("duration", duration),
	)

	view, err := loadPollView(ctx, h.db, pollID, p.UserID, h.now())
	if err != nil {
		h.internalError(w, "failed to load poll", err, zap.String("poll_id", pollID))
		return
	}
	middleware.JSONResponse(w, http.StatusCreated, view)
}

// ListPolls handles GET /polls
func (h *PollHandler) ListPolls(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	now := h.now()
	q := r.URL.Query()
	var lq pollQuery

	if c := q.Get("category"); c != "" {
		if !catalog.IsCategory(c) {
			middleware.ErrorResponse(w, http.StatusBadRequest, "unknown category")
			return
		}
		lq.where("p.category = " + lq.arg(c))
	}

	switch s := q.Get("status"); s {
	case "":
	case models.StatusOpen:
		lq.where("p.status = " + lq.arg(models.StatusOpen) + " AND p.ends_at > " + lq.arg(now))
	case models.StatusClosed:
		lq.where("(p.status = " + lq.arg(models.StatusClosed) +
			" OR (p.status = " + lq.arg(models.StatusOpen) + " AND p.ends_at <= " + lq.arg(now) + "))")
	case models.StatusResolved:
		lq.where("p.status = " + lq.arg(models.StatusResolved))
	default:
		middleware.ErrorResponse(w, http.StatusBadRequest, "status must be open, closed or resolved")
		return
	}

	switch k := q.Get("kind"); k {
	case "":
	case models.KindStandard, models.KindLive:
		lq.where("p.kind = " + lq.arg(k))
	default:
		middleware.ErrorResponse(w, http.StatusBadRequest, "kind must be standard or live")
		return
	}

	if creator := strings.ToLower(q.Get("creator")); creator != "" {
		lq.where("p.creator_id IN (SELECT id FROM app_user WHERE username = " + lq.arg(creator) + ")")
	}

	if q.Get("featured") == "true" {
		lq.where("p.is_featured = TRUE")
	}

	var order string
	switch q.Get("sort") {
	case "", "new":
		order = "p.created_at DESC, p.id"
	case "hot":
		order = "p.total_votes DESC, p.created_at DESC, p.id"
	case "ending":
		order = "p.ends_at ASC, p.id"
	default:
		middleware.ErrorResponse(w, http.StatusBadRequest, "sort must be new, hot or ending")
		return
	}

	h.respondList(w, r, &lq, order, limit, offset, now)
}

// ListLive handles GET /live
func (h *PollHandler) ListLive(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	now := h.now()
	var lq pollQuery
	lq.where("p.kind = " + lq.arg(models.KindLive))
	lq.where("p.status = " + lq.arg(models.StatusOpen))
	lq.where("p.ends_at > " + lq.arg(now))

	h.respondList(w, r, &lq, "p.ends_at ASC, p.id", limit, offset, now)
}

// Feed handles GET /feed
func (h *PollHandler) Feed(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	var lq pollQuery
	lq.where("p.creator_id IN (SELECT followee_id FROM follow WHERE follower_id = " + lq.arg(caller(r).UserID) + ")")

	h.respondList(w, r, &lq, "p.created_at DESC, p.id", limit, offset, h.now())
}

func (h *PollHandler) respondList(w http.ResponseWriter, r *http.Request, lq *pollQuery, order string, limit, offset int, now time.Time) {
	viewer := ""
	if p, ok := middleware.PrincipalFrom(r.Context()); ok {
		viewer = p.UserID
	}

	views, err := lq.list(r.Context(), h.db, order, limit, offset, viewer, now)
	if err != nil {
		h.internalError(w, "failed to list polls", err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ListResponse[models.PollView]{
		Items:  views,
		Limit:  limit,
		Offset: offset,
	})
}

// GetPoll handles GET /polls/{id}
func (h *PollHandler) GetPoll(w http.ResponseWriter, r *http.Request) {
	pollID := r.PathValue("id")

	viewer := ""
	if p, ok := middleware.PrincipalFrom(r.Context()); ok {
		viewer = p.UserID
	}

	view, err := loadPollView(r.Context(), h.db, pollID, viewer, h.now())
	if errors.Is(err, polls.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
		return
	}
	if err != nil {
		h.internalError(w, "failed to load poll", err, zap.String("poll_id", pollID))
		return
	}
	middleware.JSONResponse(w, http.StatusOK, view)
}

// authorizeOwner loads the poll and checks the caller is its creator or an
// admin. It writes the error response itself and returns ok=false.
func (h *PollHandler) authorizeOwner(w http.ResponseWriter, r *http.Request) (models.Poll, bool) {
	pollID := r.PathValue("id")
	p, err := polls.Get(r.Context(), h.db, pollID)
	if errors.Is(err, polls.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
		return models.Poll{}, false
	}
	if err != nil {
		h.internalError(w, "failed to load poll", err, zap.String("poll_id", pollID))
		return models.Poll{}, false
	}

	c := caller(r)
	if p.CreatorID != c.UserID && !c.IsAdmin {
		middleware.ErrorResponse(w, http.StatusForbidden, "Only the poll creator can do this")
		return models.Poll{}, false
	}
	return p, true
}

// ClosePoll handles POST /polls/{id}/close
func (h *PollHandler) ClosePoll(w http.ResponseWriter, r *http.Request) {
	p, ok := h.authorizeOwner(w, r)
	if !ok {
		return
	}

	closed, err := polls.Close(r.Context(), h.db, p.ID, h.now())
	if errors.Is(err, polls.ErrNotOpen) {
		middleware.ErrorResponse(w, http.StatusConflict, "Poll is not open")
		return
	}
	if err != nil {
		h.internalError(w, "failed to close poll", err, zap.String("poll_id", p.ID))
		return
	}

	h.metrics.PollsClosed.Inc()
	h.pub.Publish(realtime.PollTopic(p.ID), realtime.EventPollClosed, closed)
	h.log.Info("poll closed", zap.String("poll_id", p.ID), zap.String("by", caller(r).UserID))

	h.GetPoll(w, r)
}

// ResolvePoll handles POST /polls/{id}/resolve
func (h *PollHandler) ResolvePoll(w http.ResponseWriter, r *http.Request) {
	p, ok := h.authorizeOwner(w, r)
	if !ok {
		return
	}

	var req models.ResolvePollRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.CorrectOptionID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "correct_option_id is required")
		return
	}

	res, err := reputation.Resolve(r.Context(), h.db, p.ID, req.CorrectOptionID, h.now())
	switch {
	case errors.Is(err, reputation.ErrPollNotFound):
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
		return
	case errors.Is(err, reputation.ErrAlreadyResolved):
		middleware.ErrorResponse(w, http.StatusConflict, "Poll already resolved")
		return
	case errors.Is(err, reputation.ErrInvalidOption):
		middleware.ErrorResponse(w, http.StatusBadRequest, "Option does not belong to this poll")
		return
	case err != nil:
		h.internalError(w, "failed to resolve poll", err, zap.String("poll_id", p.ID))
		return
	}

	h.metrics.PollsResolved.Inc()
	notify.Deliver(h.pub, res.Notifications...)
	h.pub.Publish(realtime.PollTopic(p.ID), realtime.EventPollResolved, res.Poll)
	h.log.Info("poll resolved",
		zap.String("poll_id", p.ID),
		zap.String("correct_option_id", req.CorrectOptionID),
		zap.Int("voters", len(res.Outcomes)),
	)

	middleware.JSONResponse(w, http.StatusOK, res)
}

// DeletePoll handles DELETE /polls/{id}. Creators may only delete polls
// nobody has voted on; admins may delete any poll.
func (h *PollHandler) DeletePoll(w http.ResponseWriter, r *http.Request) {
	p, ok := h.authorizeOwner(w, r)
	if !ok {
		return
	}

	c := caller(r)
	err := h.deletePoll(r.Context(), p.ID, p.CreatorID, c.IsAdmin)
	if errors.Is(err, polls.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
		return
	}
	if errors.Is(err, errPollHasVotes) {
		middleware.ErrorResponse(w, http.StatusConflict, "Polls with votes cannot be deleted")
		return
	}
	if err != nil {
		h.internalError(w, "failed to delete poll", err, zap.String("poll_id", p.ID))
		return
	}

	h.log.Info("poll deleted", zap.String("poll_id", p.ID), zap.String("by", c.UserID))
	w.WriteHeader(http.StatusNoContent)
}

var errPollHasVotes = errors.New("poll has votes")

// deletePoll removes the poll and takes its votes back out of the voters'
// and the creator's counters. Earned reputation stays in the ledger.
func (h *PollHandler) deletePoll(ctx context.Context, pollID, creatorID string, force bool) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := polls.Lock(ctx, tx, pollID); err != nil {
		return err
	}
	p, err := polls.Get(ctx, tx, pollID)
	if err != nil {
		return err
	}
	if !force && p.TotalVotes > 0 {
		return errPollHasVotes
	}

	if err := execAll(ctx, tx,
		stmt{`UPDATE app_user SET vote_count = vote_count - 1
		      WHERE id IN (SELECT user_id FROM vote WHERE poll_id = $1)`, []any{pollID}},
		stmt{`UPDATE app_user SET resolved_count = resolved_count - 1
		      WHERE id IN (SELECT user_id FROM vote WHERE poll_id = $1 AND is_correct IS NOT NULL)`, []any{pollID}},
		stmt{`UPDATE app_user SET correct_count = correct_count - 1
		      WHERE id IN (SELECT user_id FROM vote WHERE poll_id = $1 AND is_correct = TRUE)`, []any{pollID}},
		stmt{`UPDATE app_user SET polls_created = polls_created - 1 WHERE id = $1`, []any{creatorID}},
		stmt{`DELETE FROM poll WHERE id = $1`, []any{pollID}},
	); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit poll deletion: %w", err)
	}
	return nil
}

// GetMeta handles GET /polls/{id}/meta, the data behind link previews.
func (h *PollHandler) GetMeta(w http.ResponseWriter, r *http.Request) {
	pollID := r.PathValue("id")
	p, err := polls.Get(r.Context(), h.db, pollID)
	if errors.Is(err, polls.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
		return
	}
	if err != nil {
		h.internalError(w, "failed to load poll", err, zap.String("poll_id", pollID))
		return
	}

	category := p.Category
	if c, ok := catalog.LookupCategory(p.Category); ok {
		category = c.Name
	}

	middleware.JSONResponse(w, http.StatusOK, models.ShareMetadata{
		Title:       p.Question,
		Description: fmt.Sprintf("%s · %s คนร่วมทาย · ทายผลบน %s", category, humanize.Comma(int64(p.TotalVotes)), siteName),
		URL:         strings.TrimRight(h.cfg.BaseURL, "/") + "/polls/" + p.ID,
		SiteName:    siteName,
		Locale:      "th_TH",
		Type:        "website",
	})
}
