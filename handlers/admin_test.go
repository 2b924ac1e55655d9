// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/danielhkuo/kidwa/models"
	"github.com/danielhkuo/kidwa/testutil"
)

func TestFeaturePoll(t *testing.T) {
	env := newTestEnv(t)
	h := NewAdminHandler(env.deps)
	admin := testutil.CreateTestUser(t, env.db, "admin")
	pollID, _ := testutil.CreateTestPoll(t, env.db, admin.ID, models.StatusOpen)

	feature := func(id string, featured bool) int {
		req := testutil.MakeRequest("POST", "/admin/polls/"+id+"/feature", models.FeaturePollRequest{Featured: featured}, nil)
		req.SetPathValue("id", id)
		return serve(h.FeaturePoll, as(req, admin)).Code
	}

	assert.Equal(t, http.StatusOK, feature(pollID, true))
	assert.Equal(t, 1, testutil.QueryInt(t, env.db, `SELECT COUNT(*) FROM poll WHERE is_featured = TRUE`))
	assert.Equal(t, http.StatusOK, feature(pollID, false))
	assert.Zero(t, testutil.QueryInt(t, env.db, `SELECT COUNT(*) FROM poll WHERE is_featured = TRUE`))
	assert.Equal(t, http.StatusNotFound, feature("missing", true))
}

func TestAdjustReputation(t *testing.T) {
	env := newTestEnv(t)
	h := NewAdminHandler(env.deps)
	admin := testutil.CreateTestUser(t, env.db, "admin")
	user := testutil.CreateTestUser(t, env.db, "alice")

	adjust := func(username string, delta int) (int, models.UserSummary) {
		req := testutil.MakeRequest("POST", "/admin/users/"+username+"/reputation", models.AdjustReputationRequest{Delta: delta, Reason: "contest prize"}, nil)
		req.SetPathValue("username", username)
		w := serve(h.AdjustReputation, as(req, admin))
		var u models.UserSummary
		if w.Code == http.StatusOK {
			testutil.AssertJSON(t, w, &u)
		}
		return w.Code, u
	}

	code, u := adjust("alice", 50)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 50, u.Reputation)

	code, u = adjust("alice", -80)
	assert.Equal(t, http.StatusOK, code)
	assert.Zero(t, u.Reputation)

	code, _ = adjust("alice", 0)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = adjust("ghost", 5)
	assert.Equal(t, http.StatusNotFound, code)

	assert.Equal(t, 2, testutil.QueryInt(t, env.db, `SELECT COUNT(*) FROM reputation_event WHERE user_id = $1 AND reason = 'contest prize'`, user.ID))
	assert.Equal(t, -50, testutil.QueryInt(t, env.db, `SELECT delta FROM reputation_event WHERE user_id = $1 AND delta < 0`, user.ID))
}

func TestBanUser(t *testing.T) {
	env := newTestEnv(t)
	h := NewAdminHandler(env.deps)
	admin := testutil.CreateTestUser(t, env.db, "admin")
	user := testutil.CreateTestUser(t, env.db, "mallory")

	ban := func(username string, banned bool) int {
		req := testutil.MakeRequest("POST", "/admin/users/"+username+"/ban", models.BanUserRequest{Banned: banned}, nil)
		req.SetPathValue("username", username)
		return serve(h.BanUser, as(req, admin)).Code
	}

	assert.Equal(t, http.StatusNoContent, ban("mallory", true))
	assert.Equal(t, 1, testutil.QueryInt(t, env.db, `SELECT COUNT(*) FROM app_user WHERE id = $1 AND is_banned = TRUE`, user.ID))
	assert.Equal(t, http.StatusNoContent, ban("mallory", false))
	assert.Zero(t, testutil.QueryInt(t, env.db, `SELECT COUNT(*) FROM app_user WHERE is_banned = TRUE`))
	assert.Equal(t, http.StatusBadRequest, ban("admin", true))
	assert.Equal(t, http.StatusNotFound, ban("ghost", true))
}
