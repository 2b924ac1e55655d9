// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/danielhkuo/kidwa/middleware"
	"github.com/danielhkuo/kidwa/models"
	"github.com/danielhkuo/kidwa/reputation"
)

// AdminHandler serves the moderation endpoints. Routes are wrapped with
// Auth.RequireAdmin.
type AdminHandler struct {
	base
}

func NewAdminHandler(d Deps) *AdminHandler {
	return &AdminHandler{base: newBase(d)}
}

// FeaturePoll handles POST /admin/polls/{id}/feature
func (h *AdminHandler) FeaturePoll(w http.ResponseWriter, r *http.Request) {
	var req models.FeaturePollRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	pollID := r.PathValue("id")
	res, err := h.db.ExecContext(r.Context(), `UPDATE poll SET is_featured = $1 WHERE id = $2`, req.Featured, pollID)
	if err != nil {
		h.internalError(w, "failed to feature poll", err, zap.String("poll_id", pollID))
		return
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
		return
	}

	h.log.Info("poll featured", zap.String("poll_id", pollID), zap.Bool("featured", req.Featured))
	view, err := loadPollView(r.Context(), h.db, pollID, "", h.now())
	if err != nil {
		h.internalError(w, "failed to load poll", err, zap.String("poll_id", pollID))
		return
	}
	middleware.JSONResponse(w, http.StatusOK, view)
}

// AdjustReputation handles POST /admin/users/{username}/reputation
func (h *AdminHandler) AdjustReputation(w http.ResponseWriter, r *http.Request) {
	var req models.AdjustReputationRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Delta == 0 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "delta must not be zero")
		return
	}

	u, err := userByUsername(r.Context(), h.db, strings.ToLower(r.PathValue("username")))
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.internalError(w, "failed to query user", err)
		return
	}

	applied, rep, err := reputation.Adjust(r.Context(), h.db, u.ID, req.Delta, strings.TrimSpace(req.Reason), h.now())
	if errors.Is(err, reputation.ErrUserNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.internalError(w, "failed to adjust reputation", err, zap.String("user_id", u.ID))
		return
	}

	h.log.Info("reputation adjusted",
		zap.String("user_id", u.ID),
		zap.Int("requested", req.Delta),
		zap.Int("applied", applied),
		zap.String("by", caller(r).UserID),
	)
	u.Reputation = rep
	middleware.JSONResponse(w, http.StatusOK, u)
}

// BanUser handles POST /admin/users/{username}/ban
func (h *AdminHandler) BanUser(w http.ResponseWriter, r *http.Request) {
	var req models.BanUserRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	username := strings.ToLower(r.PathValue("username"))
	if req.Banned && username == caller(r).Username {
		middleware.ErrorResponse(w, http.StatusBadRequest, "You cannot ban yourself")
		return
	}

	res, err := h.db.ExecContext(r.Context(), `UPDATE app_user SET is_banned = $1 WHERE username = $2`, req.Banned, username)
	if err != nil {
		h.internalError(w, "failed to ban user", err)
		return
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		middleware.ErrorResponse(w, http.StatusNotFound, "User not found")
		return
	}

	h.log.Info("user ban changed", zap.String("username", username), zap.Bool("banned", req.Banned))
	w.WriteHeader(http.StatusNoContent)
}
