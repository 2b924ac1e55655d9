// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/danielhkuo/kidwa/cliparse"
	"github.com/danielhkuo/kidwa/db"
	"github.com/danielhkuo/kidwa/metrics"
	"github.com/danielhkuo/kidwa/middleware"
	"github.com/danielhkuo/kidwa/models"
)

// Publisher pushes realtime events. *realtime.Hub implements it.
type Publisher interface {
	Publish(topic, eventType string, payload any)
}

// Deps are the dependencies shared by every handler.
type Deps struct {
	DB        *sql.DB
	Config    cliparse.Config
	Log       *zap.Logger
	Metrics   *metrics.Metrics
	Publisher Publisher

	// Now defaults to db.Now.
	Now func() time.Time
}

type base struct {
	db      *sql.DB
	cfg     cliparse.Config
	log     *zap.Logger
	metrics *metrics.Metrics
	pub     Publisher
	now     func() time.Time
}

func newBase(d Deps) base {
	b := base{db: d.DB, cfg: d.Config, log: d.Log, metrics: d.Metrics, pub: d.Publisher, now: d.Now}
	if b.log == nil {
		b.log = zap.NewNop()
	}
	if b.metrics == nil {
		b.metrics = metrics.New()
	}
	if b.pub == nil {
		b.pub = nopPublisher{}
	}
	if b.now == nil {
		b.now = db.Now
	}
	return b
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string, any) {}

// internalError logs err and writes a generic 500.
func (b base) internalError(w http.ResponseWriter, msg string, err error, fields ...zap.Field) {
	b.log.Error(msg, append(fields, zap.Error(err))...)
	middleware.ErrorResponse(w, http.StatusInternalServerError, "Internal server error")
}

// caller returns the authenticated principal. Only valid behind Auth.Require.
func caller(r *http.Request) models.Principal {
	p, _ := middleware.PrincipalFrom(r.Context())
	return p
}

const (
	defaultLimit = 20
	maxLimit     = 100
)

var errBadPagination = errors.New("limit and offset must be non-negative integers")

// pagination reads limit and offset from the query string.
func pagination(r *http.Request) (limit, offset int, err error) {
	limit, offset = defaultLimit, 0
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 {
			return 0, 0, errBadPagination
		}
		limit = min(limit, maxLimit)
	}
	if v := q.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, errBadPagination
		}
	}
	return limit, offset, nil
}

// userByUsername resolves a path username to a user ID.
func userByUsername(ctx context.Context, q db.Querier, username string) (models.UserSummary, error) {
	var u models.UserSummary
	err := q.QueryRowContext(ctx, `
		SELECT id, username, display_name, reputation FROM app_user WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.DisplayName, &u.Reputation)
	return u, err
}
