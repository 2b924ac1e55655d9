// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"net/http"

	"github.com/danielhkuo/kidwa/catalog"
	"github.com/danielhkuo/kidwa/handlers"
	"github.com/danielhkuo/kidwa/metrics"
	"github.com/danielhkuo/kidwa/middleware"
	"github.com/danielhkuo/kidwa/realtime"
)

func NewRouter(d handlers.Deps, authMW *middleware.Auth, hub *realtime.Hub) http.Handler {
	mux := http.NewServeMux()
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Publisher == nil && hub != nil {
		d.Publisher = hub
	}

	// Initialize handlers
	userHandler := handlers.NewUserHandler(d)
	pollHandler := handlers.NewPollHandler(d)
	votingHandler := handlers.NewVotingHandler(d)
	followHandler := handlers.NewFollowHandler(d)
	notificationHandler := handlers.NewNotificationHandler(d)
	leaderboardHandler := handlers.NewLeaderboardHandler(d)
	adminHandler := handlers.NewAdminHandler(d)

	wrap := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.WithMetrics(d.Metrics, middleware.WithLogging(d.Log, h))
	}
	public := func(pattern string, h http.HandlerFunc) { mux.HandleFunc(pattern, wrap(h)) }
	optional := func(pattern string, h http.HandlerFunc) { mux.HandleFunc(pattern, wrap(authMW.Optional(h))) }
	private := func(pattern string, h http.HandlerFunc) { mux.HandleFunc(pattern, wrap(authMW.Require(h))) }
	admin := func(pattern string, h http.HandlerFunc) { mux.HandleFunc(pattern, wrap(authMW.RequireAdmin(h))) }

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", d.Metrics.Handler())

	// Accounts and profiles
	public("POST /auth/register", userHandler.Register)
	public("POST /auth/login", userHandler.Login)
	private("GET /me", userHandler.GetMe)
	private("PATCH /me", userHandler.UpdateMe)
	optional("GET /users/{username}", userHandler.GetUser)

	// Follows
	private("POST /users/{username}/follow", followHandler.Follow)
	private("DELETE /users/{username}/follow", followHandler.Unfollow)
	public("GET /users/{username}/followers", followHandler.Followers)
	public("GET /users/{username}/following", followHandler.Following)

	// Polls
	private("POST /polls", pollHandler.CreatePoll)
	optional("GET /polls", pollHandler.ListPolls)
	optional("GET /polls/{id}", pollHandler.GetPoll)
	public("GET /polls/{id}/meta", pollHandler.GetMeta)
	private("POST /polls/{id}/close", pollHandler.ClosePoll)
	private("POST /polls/{id}/resolve", pollHandler.ResolvePoll)
	private("DELETE /polls/{id}", pollHandler.DeletePoll)
	optional("GET /live", pollHandler.ListLive)
	private("GET /feed", pollHandler.Feed)
	public("GET /categories", func(w http.ResponseWriter, r *http.Request) {
		middleware.JSONResponse(w, http.StatusOK, catalog.Categories())
	})

	// Voting
	private("PUT /polls/{id}/vote", votingHandler.CastVote)
	private("DELETE /polls/{id}/vote", votingHandler.RetractVote)

	// Notifications
	private("GET /notifications", notificationHandler.List)
	private("GET /notifications/unread-count", notificationHandler.UnreadCount)
	private("POST /notifications/{id}/read", notificationHandler.MarkRead)
	private("POST /notifications/read-all", notificationHandler.MarkAllRead)

	// Leaderboard
	public("GET /leaderboard", leaderboardHandler.Get)

	// Admin
	admin("POST /admin/polls/{id}/feature", adminHandler.FeaturePoll)
	admin("POST /admin/users/{username}/reputation", adminHandler.AdjustReputation)
	admin("POST /admin/users/{username}/ban", adminHandler.BanUser)

	// Realtime
	if hub != nil {
		public("GET /realtime", hub.ServeWS)
	}

	// Root endpoint
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("kidwa API v1"))
	})

	return middleware.CORS(mux)
}
