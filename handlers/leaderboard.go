// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/danielhkuo/kidwa/middleware"
	"github.com/danielhkuo/kidwa/models"
	"github.com/danielhkuo/kidwa/reputation"
)

const defaultLeaderboardLimit = 50

type LeaderboardHandler struct {
	base
	group singleflight.Group
}

func NewLeaderboardHandler(d Deps) *LeaderboardHandler {
	return &LeaderboardHandler{base: newBase(d)}
}

// Get handles GET /leaderboard?window=week|month|all&limit=. Concurrent
// requests for the same window and limit share one query.
func (h *LeaderboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	window := r.URL.Query().Get("window")
	if window == "" {
		window = reputation.WindowWeek
	}
	if _, _, err := reputation.WindowStart(window, h.now()); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "window must be week, month or all")
		return
	}

	limit := defaultLeaderboardLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			middleware.ErrorResponse(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLimit)
	}

	key := window + ":" + strconv.Itoa(limit)
	v, err, _ := h.group.Do(key, func() (any, error) {
		// Detached so one caller going away does not fail the others.
		return reputation.Leaderboard(context.WithoutCancel(r.Context()), h.db, window, limit, h.now())
	})
	if errors.Is(err, reputation.ErrInvalidWindow) {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, "failed to build leaderboard", err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, v.(models.Leaderboard))
}
