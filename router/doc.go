// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the Kidwa API.

# Route Registration

NewRouter builds the handlers from shared dependencies and returns the
CORS-wrapped mux:

	handler := router.NewRouter(handlers.Deps{DB: conn, Config: cfg, Log: log, Metrics: m, Publisher: hub}, authMW, hub)

Every route is wrapped with request logging and metrics.

# Endpoints

Accounts:

	POST  /auth/register, /auth/login
	GET   /me
	PATCH /me
	GET   /users/{username}
	POST  /users/{username}/follow
	DELETE /users/{username}/follow
	GET   /users/{username}/followers, /users/{username}/following

Polls:

	POST   /polls                 - Create (auth)
	GET    /polls                 - List with filters and sort
	GET    /polls/{id}            - Poll view
	GET    /polls/{id}/meta       - Share metadata
	POST   /polls/{id}/close      - Close (creator or admin)
	POST   /polls/{id}/resolve    - Resolve (creator or admin)
	DELETE /polls/{id}
	PUT    /polls/{id}/vote       - Cast or change vote
	DELETE /polls/{id}/vote       - Retract vote

Other:

	GET  /live                    - Open live battles
	GET  /feed                    - Polls by followed creators
	GET  /notifications, /notifications/unread-count
	POST /notifications/{id}/read, /notifications/read-all
	GET  /leaderboard?window=week|month|all
	GET  /categories
	POST /admin/polls/{id}/feature, /admin/users/{username}/reputation,
	     /admin/users/{username}/ban (admin)
	GET  /realtime                - Websocket
	GET  /health, /metrics
*/
package router
