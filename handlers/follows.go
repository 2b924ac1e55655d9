// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/danielhkuo/kidwa/db"
	"github.com/danielhkuo/kidwa/middleware"
	"github.com/danielhkuo/kidwa/models"
	"github.com/danielhkuo/kidwa/notify"
)

type FollowHandler struct {
	base
}

func NewFollowHandler(d Deps) *FollowHandler {
	return &FollowHandler{base: newBase(d)}
}

// target resolves the {username} path value, writing 404 when it is unknown.
func (h *FollowHandler) target(w http.ResponseWriter, r *http.Request) (models.UserSummary, bool) {
	u, err := userByUsername(r.Context(), h.db, strings.ToLower(r.PathValue("username")))
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "User not found")
		return u, false
	}
	if err != nil {
		h.internalError(w, "failed to query user", err)
		return u, false
	}
	return u, true
}

// Follow handles POST /users/{username}/follow. Following twice is a no-op.
func (h *FollowHandler) Follow(w http.ResponseWriter, r *http.Request) {
	p := caller(r)
	target, ok := h.target(w, r)
	if !ok {
		return
	}
	if target.ID == p.UserID {
		middleware.ErrorResponse(w, http.StatusBadRequest, "You cannot follow yourself")
		return
	}

	ctx := r.Context()
	now := h.now()

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		h.internalError(w, "failed to begin transaction", err)
		return
	}
	defer tx.Rollback()

	var existing int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM follow WHERE follower_id = $1 AND followee_id = $2
	`, p.UserID, target.ID).Scan(&existing)
	if err != nil {
		h.internalError(w, "failed to check follow", err)
		return
	}
	if existing > 0 {
		middleware.JSONResponse(w, http.StatusOK, models.FollowResponse{Following: true})
		return
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO follow (follower_id, followee_id, created_at) VALUES ($1, $2, $3)
	`, p.UserID, target.ID, now)
	if db.IsUniqueViolation(err) {
		middleware.JSONResponse(w, http.StatusOK, models.FollowResponse{Following: true})
		return
	}
	if err != nil {
		h.internalError(w, "failed to insert follow", err)
		return
	}

	// Only the first follow notifies; re-following after an unfollow is silent.
	var notified int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notification WHERE user_id = $1 AND kind = $2 AND actor_id = $3
	`, target.ID, models.NotifyNewFollower, p.UserID).Scan(&notified)
	if err != nil {
		h.internalError(w, "failed to check notifications", err)
		return
	}

	var created []models.Notification
	if notified == 0 {
		var displayName string
		if err := tx.QueryRowContext(ctx, `SELECT display_name FROM app_user WHERE id = $1`, p.UserID).Scan(&displayName); err != nil {
			h.internalError(w, "failed to query follower", err)
			return
		}

		n, err := notify.Create(ctx, tx, target.ID, models.NotifyNewFollower, &p.UserID, nil, notify.NewFollowerMessage(displayName), now)
		if err != nil {
			h.internalError(w, "failed to create notification", err)
			return
		}
		created = append(created, n)
	}

	if err := tx.Commit(); err != nil {
		h.internalError(w, "failed to commit follow", err)
		return
	}

	notify.Deliver(h.pub, created...)
	h.log.Info("user followed", zap.String("follower_id", p.UserID), zap.String("followee_id", target.ID))
	middleware.JSONResponse(w, http.StatusOK, models.FollowResponse{Following: true})
}

// Unfollow handles DELETE /users/{username}/follow. Unfollowing a user who
// is not followed succeeds.
func (h *FollowHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	p := caller(r)
	target, ok := h.target(w, r)
	if !ok {
		return
	}

	_, err := h.db.ExecContext(r.Context(), `
		DELETE FROM follow WHERE follower_id = $1 AND followee_id = $2
	`, p.UserID, target.ID)
	if err != nil {
		h.internalError(w, "failed to delete follow", err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.FollowResponse{Following: false})
}

// Followers handles GET /users/{username}/followers
func (h *FollowHandler) Followers(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, `
		SELECT u.id, u.username, u.display_name, u.reputation
		FROM follow f JOIN app_user u ON u.id = f.follower_id
		WHERE f.followee_id = $1
		ORDER BY f.created_at DESC, u.username
		LIMIT $2 OFFSET $3`)
}

// Following handles GET /users/{username}/following
func (h *FollowHandler) Following(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, `
		SELECT u.id, u.username, u.display_name, u.reputation
		FROM follow f JOIN app_user u ON u.id = f.followee_id
		WHERE f.follower_id = $1
		ORDER BY f.created_at DESC, u.username
		LIMIT $2 OFFSET $3`)
}

func (h *FollowHandler) list(w http.ResponseWriter, r *http.Request, query string) {
	limit, offset, err := pagination(r)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	target, ok := h.target(w, r)
	if !ok {
		return
	}

	rows, err := h.db.QueryContext(r.Context(), query, target.ID, limit, offset)
	if err != nil {
		h.internalError(w, "failed to query follows", err)
		return
	}
	defer rows.Close()

	users := []models.UserSummary{}
	for rows.Next() {
		var u models.UserSummary
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Reputation); err != nil {
			h.internalError(w, "failed to scan user", err)
			return
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		h.internalError(w, "failed to read follows", err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ListResponse[models.UserSummary]{
		Items:  users,
		Limit:  limit,
		Offset: offset,
	})
}
