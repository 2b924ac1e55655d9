// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danielhkuo/kidwa/auth"
	"github.com/danielhkuo/kidwa/catalog"
	"github.com/danielhkuo/kidwa/db"
	"github.com/danielhkuo/kidwa/middleware"
	"github.com/danielhkuo/kidwa/models"
	"github.com/danielhkuo/kidwa/reputation"
)

const (
	maxDisplayName = 50
	maxBio         = 300
)

type UserHandler struct {
	base
}

func NewUserHandler(d Deps) *UserHandler {
	return &UserHandler{base: newBase(d)}
}

// Register handles POST /auth/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	username, err := auth.NormalizeUsername(req.Username)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	email, err := auth.NormalizeEmail(req.Email)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = username
	}
	if utf8.RuneCountInString(displayName) > maxDisplayName {
		middleware.ErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("display_name must be at most %d characters", maxDisplayName))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrWeakPassword) {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, "failed to hash password", err)
		return
	}

	userID := uuid.NewString()
	_, err = h.db.ExecContext(r.Context(), `
		INSERT INTO app_user (id, username, email, display_name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, userID, username, email, displayName, hash, h.now())
	if db.IsUniqueViolation(err) {
		middleware.ErrorResponse(w, http.StatusConflict, "Username or email already registered")
		return
	}
	if err != nil {
		h.internalError(w, "failed to insert user", err)
		return
	}

	h.log.Info("user registered", zap.String("user_id", userID), zap.String("username", username))
	h.respondWithSession(w, r, http.StatusCreated, userID)
}

// Login handles POST /auth/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	login := strings.ToLower(strings.TrimSpace(req.Login))
	if login == "" || req.Password == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "login and password are required")
		return
	}

	column := "username"
	if strings.Contains(login, "@") {
		column = "email"
	}

	var userID, hash string
	var banned bool
	err := h.db.QueryRowContext(r.Context(),
		`SELECT id, password_hash, is_banned FROM app_user WHERE `+column+` = $1`, login,
	).Scan(&userID, &hash, &banned)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid login or password")
		return
	}
	if err != nil {
		h.internalError(w, "failed to query user", err)
		return
	}

	if err := auth.CheckPassword(hash, req.Password); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid login or password")
		return
	}
	if banned {
		middleware.ErrorResponse(w, http.StatusForbidden, "Account is banned")
		return
	}

	h.respondWithSession(w, r, http.StatusOK, userID)
}

func (h *UserHandler) respondWithSession(w http.ResponseWriter, r *http.Request, status int, userID string) {
	token, err := auth.IssueToken(userID, h.cfg.JWTSecret, h.cfg.TokenTTL, h.now())
	if err != nil {
		h.internalError(w, "failed to issue token", err)
		return
	}

	profile, err := loadProfile(r.Context(), h.db, userID, "")
	if err != nil {
		h.internalError(w, "failed to load profile", err, zap.String("user_id", userID))
		return
	}

	middleware.JSONResponse(w, status, models.AuthResponse{Token: token, User: profile})
}

// GetMe handles GET /me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	p := caller(r)
	profile, err := loadProfile(r.Context(), h.db, p.UserID, "")
	if err != nil {
		h.internalError(w, "failed to load profile", err, zap.String("user_id", p.UserID))
		return
	}
	middleware.JSONResponse(w, http.StatusOK, profile)
}

// UpdateMe handles PATCH /me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	p := caller(r)

	var req models.UpdateProfileRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if name == "" || utf8.RuneCountInString(name) > maxDisplayName {
			middleware.ErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("display_name must be 1-%d characters", maxDisplayName))
			return
		}
		if _, err := h.db.ExecContext(r.Context(), `UPDATE app_user SET display_name = $1 WHERE id = $2`, name, p.UserID); err != nil {
			h.internalError(w, "failed to update display name", err)
			return
		}
	}

	if req.Bio != nil {
		bio := strings.TrimSpace(*req.Bio)
		if utf8.RuneCountInString(bio) > maxBio {
			middleware.ErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("bio must be at most %d characters", maxBio))
			return
		}
		if _, err := h.db.ExecContext(r.Context(), `UPDATE app_user SET bio = $1 WHERE id = $2`, bio, p.UserID); err != nil {
			h.internalError(w, "failed to update bio", err)
			return
		}
	}

	h.GetMe(w, r)
}

// GetUser handles GET /users/{username}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	username := strings.ToLower(r.PathValue("username"))

	u, err := userByUsername(r.Context(), h.db, username)
	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.internalError(w, "failed to query user", err)
		return
	}

	viewer := ""
	if p, ok := middleware.PrincipalFrom(r.Context()); ok {
		viewer = p.UserID
	}

	profile, err := loadProfile(r.Context(), h.db, u.ID, viewer)
	if err != nil {
		h.internalError(w, "failed to load profile", err, zap.String("user_id", u.ID))
		return
	}
	profile.IsAdmin = false
	middleware.JSONResponse(w, http.StatusOK, profile)
}

// loadProfile builds a profile with stats and badges. When viewerID is set
// and differs from the user, IsFollowing is filled in.
func loadProfile(ctx context.Context, q db.Querier, userID, viewerID string) (models.UserProfile, error) {
	var p models.UserProfile
	var s models.UserStats
	err := q.QueryRowContext(ctx, `
		SELECT id, username, display_name, bio, is_admin, created_at,
			reputation, vote_count, correct_count, resolved_count, polls_created
		FROM app_user WHERE id = $1
	`, userID).Scan(&p.ID, &p.Username, &p.DisplayName, &p.Bio, &p.IsAdmin, &p.CreatedAt,
		&s.Reputation, &s.Votes, &s.Correct, &s.Resolved, &s.PollsCreated)
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("failed to query user: %w", err)
	}

	err = q.QueryRowContext(ctx, `SELECT COUNT(*) FROM follow WHERE followee_id = $1`, userID).Scan(&s.Followers)
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("failed to count followers: %w", err)
	}
	err = q.QueryRowContext(ctx, `SELECT COUNT(*) FROM follow WHERE follower_id = $1`, userID).Scan(&s.Following)
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("failed to count following: %w", err)
	}

	if viewerID != "" && viewerID != userID {
		var n int
		err = q.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM follow WHERE follower_id = $1 AND followee_id = $2
		`, viewerID, userID).Scan(&n)
		if err != nil {
			return models.UserProfile{}, fmt.Errorf("failed to check follow: %w", err)
		}
		following := n > 0
		p.IsFollowing = &following
	}

	s.Accuracy = reputation.Accuracy(s.Correct, s.Resolved)
	p.Stats = s
	p.Tier = reputation.Tier(s.Reputation)
	p.Badges = reputation.Badges(s, catalog.Badges())
	return p, nil
}
