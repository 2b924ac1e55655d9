// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/kidwa/models"
	"github.com/danielhkuo/kidwa/realtime"
	"github.com/danielhkuo/kidwa/testutil"
)

func followRequest(h http.HandlerFunc, method, username string, u models.User) *httptest.ResponseRecorder {
	req := testutil.MakeRequest(method, "/users/"+username+"/follow", nil, nil)
	req.SetPathValue("username", username)
	return serve(h, as(req, u))
}

func TestFollow(t *testing.T) {
	env := newTestEnv(t)
	h := NewFollowHandler(env.deps)
	alice := testutil.CreateTestUser(t, env.db, "alice")
	bob := testutil.CreateTestUser(t, env.db, "bob")

	w := followRequest(h.Follow, "POST", "bob", alice)
	testutil.AssertStatus(t, w, http.StatusOK)
	var resp models.FollowResponse
	testutil.AssertJSON(t, w, &resp)
	assert.True(t, resp.Following)

	// Second follow is a no-op and does not notify again.
	testutil.AssertStatus(t, followRequest(h.Follow, "POST", "BOB", alice), http.StatusOK)
	assert.Equal(t, 1, testutil.QueryInt(t, env.db, `SELECT COUNT(*) FROM follow`))
	assert.Equal(t, 1, testutil.QueryInt(t, env.db, `SELECT COUNT(*) FROM notification WHERE user_id = $1 AND kind = $2`, bob.ID, models.NotifyNewFollower))
	assert.Equal(t, 1, env.pub.Count(realtime.UserTopic(bob.ID), realtime.EventNotification))

	events := env.pub.Events()
	require.Len(t, events, 1)
	n := events[0].Payload.(models.Notification)
	require.NotNil(t, n.ActorID)
	assert.Equal(t, alice.ID, *n.ActorID)
	assert.Contains(t, n.Message, alice.DisplayName)

	testutil.AssertStatus(t, followRequest(h.Follow, "POST", "alice", alice), http.StatusBadRequest)
	testutil.AssertStatus(t, followRequest(h.Follow, "POST", "ghost", alice), http.StatusNotFound)
}

func TestUnfollow(t *testing.T) {
	env := newTestEnv(t)
	h := NewFollowHandler(env.deps)
	alice := testutil.CreateTestUser(t, env.db, "alice")
	testutil.CreateTestUser(t, env.db, "bob")

	testutil.AssertStatus(t, followRequest(h.Follow, "POST", "bob", alice), http.StatusOK)

	for range 2 {
		w := followRequest(h.Unfollow, "DELETE", "bob", alice)
		testutil.AssertStatus(t, w, http.StatusOK)
		var resp models.FollowResponse
		testutil.AssertJSON(t, w, &resp)
		assert.False(t, resp.Following)
	}
	assert.Zero(t, testutil.QueryInt(t, env.db, `SELECT COUNT(*) FROM follow`))

	testutil.AssertStatus(t, followRequest(h.Unfollow, "DELETE", "ghost", alice), http.StatusNotFound)
}

func TestFollow_RefollowNotifiesOnce(t *testing.T) {
	env := newTestEnv(t)
	h := NewFollowHandler(env.deps)
	alice := testutil.CreateTestUser(t, env.db, "alice")
	bob := testutil.CreateTestUser(t, env.db, "bob")
	carol := testutil.CreateTestUser(t, env.db, "carol")

	for range 3 {
		testutil.AssertStatus(t, followRequest(h.Follow, "POST", "bob", alice), http.StatusOK)
		testutil.AssertStatus(t, followRequest(h.Unfollow, "DELETE", "bob", alice), http.StatusOK)
	}
	testutil.AssertStatus(t, followRequest(h.Follow, "POST", "bob", alice), http.StatusOK)
	testutil.AssertStatus(t, followRequest(h.Follow, "POST", "bob", carol), http.StatusOK)

	assert.Equal(t, 1, testutil.QueryInt(t, env.db, `SELECT COUNT(*) FROM notification WHERE user_id = $1 AND actor_id = $2`, bob.ID, alice.ID))
	assert.Equal(t, 1, testutil.QueryInt(t, env.db, `SELECT COUNT(*) FROM notification WHERE user_id = $1 AND actor_id = $2`, bob.ID, carol.ID))
	assert.Equal(t, 2, env.pub.Count(realtime.UserTopic(bob.ID), realtime.EventNotification))
	assert.Equal(t, 2, testutil.QueryInt(t, env.db, `SELECT COUNT(*) FROM follow WHERE followee_id = $1`, bob.ID))
}

func TestFollowLists(t *testing.T) {
	env := newTestEnv(t)
	h := NewFollowHandler(env.deps)
	alice := testutil.CreateTestUser(t, env.db, "alice")
	bob := testutil.CreateTestUser(t, env.db, "bob")
	carol := testutil.CreateTestUser(t, env.db, "carol")
	testutil.Follow(t, env.db, bob.ID, alice.ID)
	testutil.Follow(t, env.db, carol.ID, alice.ID)
	testutil.Follow(t, env.db, alice.ID, carol.ID)

	list := func(handler http.HandlerFunc, username, query string) []string {
		req := testutil.MakeRequest("GET", "/users/"+username+"/x"+query, nil, nil)
		req.SetPathValue("username", username)
		w := serve(handler, req)
		testutil.AssertStatus(t, w, http.StatusOK)
		var resp models.ListResponse[models.UserSummary]
		testutil.AssertJSON(t, w, &resp)
		names := make([]string, len(resp.Items))
		for i, u := range resp.Items {
			names[i] = u.Username
		}
		return names
	}

	assert.ElementsMatch(t, []string{"bob", "carol"}, list(h.Followers, "alice", ""))
	assert.Equal(t, []string{"carol"}, list(h.Following, "alice", ""))
	assert.Empty(t, list(h.Following, "bob", "?offset=1"))
	assert.Len(t, list(h.Followers, "alice", "?limit=1"), 1)
}
