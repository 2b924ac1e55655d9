// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/danielhkuo/kidwa/auth"
	"github.com/danielhkuo/kidwa/models"
)

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying the authenticated caller.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller attached by Auth.Require or Auth.Optional.
func PrincipalFrom(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(models.Principal)
	return p, ok
}

// Auth resolves bearer tokens to principals. The user row is read on every
// request so bans and admin changes take effect immediately.
type Auth struct {
	db     *sql.DB
	secret string
	log    *zap.Logger
}

func NewAuth(db *sql.DB, secret string, log *zap.Logger) *Auth {
	return &Auth{db: db, secret: secret, log: log}
}

var errNoToken = errors.New("no bearer token")

// Principal resolves a raw token to a principal.
func (a *Auth) Principal(ctx context.Context, token string) (models.Principal, error) {
	claims, err := auth.ParseToken(token, a.secret)
	if err != nil {
		return models.Principal{}, err
	}

	p := models.Principal{UserID: claims.UserID()}
	err = a.db.QueryRowContext(ctx, `
		SELECT username, is_admin, is_banned FROM app_user WHERE id = $1
	`, p.UserID).Scan(&p.Username, &p.IsAdmin, &p.IsBanned)
	if err == sql.ErrNoRows {
		return models.Principal{}, auth.ErrInvalidToken
	}
	if err != nil {
		return models.Principal{}, err
	}
	return p, nil
}

func (a *Auth) fromRequest(r *http.Request) (models.Principal, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return models.Principal{}, errNoToken
	}
	return a.Principal(r.Context(), token)
}

// Require rejects requests without a valid token, and banned users.
func (a *Auth) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := a.fromRequest(r)
		if !a.handleError(w, err) {
			return
		}
		if p.IsBanned {
			ErrorResponse(w, http.StatusForbidden, "Account is banned")
			return
		}
		next(w, r.WithContext(WithPrincipal(r.Context(), p)))
	}
}

// Optional attaches a principal when a valid token is present. Invalid
// tokens are still rejected so clients notice expired sessions.
func (a *Auth) Optional(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := a.fromRequest(r)
		if errors.Is(err, errNoToken) {
			next(w, r)
			return
		}
		if !a.handleError(w, err) {
			return
		}
		next(w, r.WithContext(WithPrincipal(r.Context(), p)))
	}
}

// RequireAdmin is Require plus the is_admin flag.
func (a *Auth) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return a.Require(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFrom(r.Context())
		if !p.IsAdmin {
			ErrorResponse(w, http.StatusForbidden, "Admin access required")
			return
		}
		next(w, r)
	})
}

// handleError writes the response for a failed lookup and reports whether
// the request may proceed.
func (a *Auth) handleError(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, errNoToken):
		ErrorResponse(w, http.StatusUnauthorized, "Authorization header required")
	case errors.Is(err, auth.ErrExpiredToken):
		ErrorResponse(w, http.StatusUnauthorized, "Session expired")
	case errors.Is(err, auth.ErrInvalidToken):
		ErrorResponse(w, http.StatusUnauthorized, "Invalid session token")
	default:
		a.log.Error("failed to load principal", zap.Error(err))
		ErrorResponse(w, http.StatusInternalServerError, "Database error")
	}
	return false
}

// UserID resolves a token for the realtime hub. Banned users are refused.
func (a *Auth) UserID(ctx context.Context, token string) (string, error) {
	p, err := a.Principal(ctx, token)
	if err != nil {
		return "", err
	}
	if p.IsBanned {
		return "", auth.ErrInvalidToken
	}
	return p.UserID, nil
}
