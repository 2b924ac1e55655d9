// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging and Metrics

Wrap handlers with request logging and per-route metrics:

	mux.HandleFunc("GET /health", middleware.WithMetrics(m, middleware.WithLogging(log, handler)))

Completion is logged at info level with method, path, status and duration.
Metrics are labelled by the matched route pattern, not the raw path.

# Authentication

Auth resolves "Authorization: Bearer <token>" headers to a models.Principal:

	authMW := middleware.NewAuth(db, cfg.JWTSecret, log)
	mux.HandleFunc("POST /polls", authMW.Require(h.CreatePoll))
	mux.HandleFunc("GET /polls", authMW.Optional(h.ListPolls))
	mux.HandleFunc("POST /admin/users/{id}/ban", authMW.RequireAdmin(h.BanUser))

Handlers read the caller with PrincipalFrom. Banned users are refused by
Require with 403.

# CORS Middleware

Enable cross-origin requests for the web client:

	server := http.Server{
		Handler: middleware.CORS(mux),
	}

# JSON Helpers

	middleware.JSONResponse(w, http.StatusOK, data)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")

ParseJSONBody rejects unknown fields, trailing data and bodies over
MaxBodyBytes.

# Client IP Extraction

	ip := middleware.GetClientIP(r)

Used for the salted IP hash stored with each vote.
*/
package middleware
