// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielhkuo/kidwa/middleware"
	"github.com/danielhkuo/kidwa/models"
	"github.com/danielhkuo/kidwa/testutil"
)

type testEnv struct {
	db   *sql.DB
	deps Deps
	pub  *testutil.Publisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn := testutil.SetupTestDB(t)
	pub := &testutil.Publisher{}
	return &testEnv{
		db:  conn,
		pub: pub,
		deps: Deps{
			DB:        conn,
			Config:    testutil.GetTestConfig(),
			Log:       testutil.NewLogger(t),
			Publisher: pub,
		},
	}
}

// as attaches u as the authenticated caller, the way Auth.Require would.
func as(req *http.Request, u models.User) *http.Request {
	p := models.Principal{UserID: u.ID, Username: u.Username, IsAdmin: u.IsAdmin}
	return req.WithContext(middleware.WithPrincipal(req.Context(), p))
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, req)
	return w
}
