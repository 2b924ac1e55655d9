// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/kidwa/db"
	"github.com/danielhkuo/kidwa/models"
	"github.com/danielhkuo/kidwa/realtime"
	"github.com/danielhkuo/kidwa/reputation"
	"github.com/danielhkuo/kidwa/testutil"
)

func validPoll() models.CreatePollRequest {
	return models.CreatePollRequest{
		Question: "ทีมชาติไทยจะเข้ารอบไหม?",
		Category: "sports",
		Options:  []string{"เข้า", "ไม่เข้า"},
	}
}

func TestCreatePoll(t *testing.T) {
	env := newTestEnv(t)
	h := NewPollHandler(env.deps)
	u := testutil.CreateTestUser(t, env.db, "alice")

	tests := []struct {
		name           string
		mutate         func(r *models.CreatePollRequest)
		expectedStatus int
	}{
		{"valid standard", func(r *models.CreatePollRequest) {}, http.StatusCreated},
		{"valid live", func(r *models.CreatePollRequest) { r.Kind = models.KindLive; r.DurationSeconds = 60 }, http.StatusCreated},
		{"question too short", func(r *models.CreatePollRequest) { r.Question = "ใช่?" }, http.StatusBadRequest},
		{"question too long", func(r *models.CreatePollRequest) { r.Question = strings.Repeat("ก", 301) }, http.StatusBadRequest},
		{"unknown category", func(r *models.CreatePollRequest) { r.Category = "weather" }, http.StatusBadRequest},
		{"one option", func(r *models.CreatePollRequest) { r.Options = []string{"เข้า"} }, http.StatusBadRequest},
		{"eleven options", func(r *models.CreatePollRequest) {
			r.Options = strings.Split("a b c d e f g h i j k", " ")
		}, http.StatusBadRequest},
		{"duplicate options", func(r *models.CreatePollRequest) { r.Options = []string{"เข้า", " เข้า "} }, http.StatusBadRequest},
		{"blank option", func(r *models.CreatePollRequest) { r.Options = []string{"เข้า", "  "} }, http.StatusBadRequest},
		{"unknown kind", func(r *models.CreatePollRequest) { r.Kind = "flash" }, http.StatusBadRequest},
		{"standard too short", func(r *models.CreatePollRequest) { r.DurationSeconds = 60 }, http.StatusBadRequest},
		{"live too long", func(r *models.CreatePollRequest) { r.Kind = models.KindLive; r.DurationSeconds = 7200 }, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := validPoll()
			tt.mutate(&body)
			w := serve(h.CreatePoll, as(testutil.MakeRequest("POST", "/polls", body, nil), u))
			testutil.AssertStatus(t, w, tt.expectedStatus)
		})
	}

	assert.Equal(t, 2, testutil.QueryInt(t, env.db, `SELECT polls_created FROM app_user WHERE id = $1`, u.ID))
}

func TestCreatePoll_Defaults(t *testing.T) {
	env := newTestEnv(t)
	now := db.Now()
	env.deps.Now = func() time.Time { return now }
	h := NewPollHandler(env.deps)
	u := testutil.CreateTestUser(t, env.db, "alice")

	w := serve(h.CreatePoll, as(testutil.MakeRequest("POST", "/polls", validPoll(), nil), u))
	testutil.AssertStatus(t, w, http.StatusCreated)

	var view models.PollView
	testutil.AssertJSON(t, w, &view)
	assert.Equal(t, models.KindStandard, view.Kind)
	assert.Equal(t, models.StatusOpen, view.Status)
	assert.True(t, now.Add(7*24*time.Hour).Equal(view.EndsAt))
	assert.Equal(t, int64(7*24*3600), view.SecondsRemaining)
	assert.Equal(t, "alice", view.Creator.Username)
	require.Len(t, view.Options, 2)
	assert.Equal(t, "เข้า", view.Options[0].Label)
	assert.Equal(t, 1, view.Options[1].Position)

	live := validPoll()
	live.Kind = models.KindLive
	w = serve(h.CreatePoll, as(testutil.MakeRequest("POST", "/polls", live, nil), u))
	testutil.AssertStatus(t, w, http.StatusCreated)
	view = models.PollView{}
	testutil.AssertJSON(t, w, &view)
	assert.Equal(t, int64(300), view.SecondsRemaining)
}

func TestGetPoll(t *testing.T) {
	env := newTestEnv(t)
	h := NewPollHandler(env.deps)
	creator := testutil.CreateTestUser(t, env.db, "creator")
	voters := []models.User{
		testutil.CreateTestUser(t, env.db, "v1"),
		testutil.CreateTestUser(t, env.db, "v2"),
		testutil.CreateTestUser(t, env.db, "v3"),
	}
	pollID, opts := testutil.CreateTestPoll(t, env.db, creator.ID, models.StatusOpen)
	testutil.CastTestVote(t, env.db, pollID, voters[0].ID, opts[0], models.ConfidenceHigh)
	testutil.CastTestVote(t, env.db, pollID, voters[1].ID, opts[0], models.ConfidenceLow)
	testutil.CastTestVote(t, env.db, pollID, voters[2].ID, opts[1], models.ConfidenceHigh)

	req := testutil.MakeRequest("GET", "/polls/"+pollID, nil, nil)
	req.SetPathValue("id", pollID)
	w := serve(h.GetPoll, as(req, voters[1]))
	testutil.AssertStatus(t, w, http.StatusOK)

	var view models.PollView
	testutil.AssertJSON(t, w, &view)
	assert.Equal(t, 3, view.TotalVotes)
	require.Len(t, view.Options, 2)
	assert.Equal(t, 66.7, view.Options[0].Percentage)
	assert.Equal(t, 33.3, view.Options[1].Percentage)
	assert.Equal(t, models.ConfidenceBreakdown{Low: 1, High: 1}, view.Options[0].Confidence)
	assert.Equal(t, models.ConfidenceBreakdown{High: 1}, view.Options[1].Confidence)
	require.NotNil(t, view.MyVote)
	assert.Equal(t, opts[0], view.MyVote.OptionID)
	assert.Equal(t, models.ConfidenceLow, view.MyVote.Confidence)
	assert.Nil(t, view.MyVote.IsCorrect)

	req = testutil.MakeRequest("GET", "/polls/missing", nil, nil)
	req.SetPathValue("id", "missing")
	testutil.AssertStatus(t, serve(h.GetPoll, req), http.StatusNotFound)
}

func TestGetPoll_LazyExpiry(t *testing.T) {
	env := newTestEnv(t)
	h := NewPollHandler(env.deps)
	creator := testutil.CreateTestUser(t, env.db, "creator")
	pollID, _ := testutil.CreateTestPoll(t, env.db, creator.ID, models.StatusOpen)
	testutil.SetPollEndsAt(t, env.db, pollID, db.Now().Add(-time.Second))

	req := testutil.MakeRequest("GET", "/polls/"+pollID, nil, nil)
	req.SetPathValue("id", pollID)
	w := serve(h.GetPoll, req)
	testutil.AssertStatus(t, w, http.StatusOK)

	var view models.PollView
	testutil.AssertJSON(t, w, &view)
	assert.Equal(t, models.StatusClosed, view.Status)
	assert.Zero(t, view.SecondsRemaining)

	var stored string
	require.NoError(t, env.db.QueryRow(`SELECT status FROM poll WHERE id = $1`, pollID).Scan(&stored))
	assert.Equal(t, models.StatusOpen, stored, "reads do not write")
}

func listIDs(t *testing.T, h *PollHandler, url string) []string {
	t.Helper()
	w := serve(h.ListPolls, testutil.MakeRequest("GET", url, nil, nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	var resp models.ListResponse[models.PollView]
	testutil.AssertJSON(t, w, &resp)
	ids := make([]string, len(resp.Items))
	for i, v := range resp.Items {
		ids[i] = v.ID
	}
	return ids
}

func TestListPolls(t *testing.T) {
	env := newTestEnv(t)
	h := NewPollHandler(env.deps)
	alice := testutil.CreateTestUser(t, env.db, "alice")
	bob := testutil.CreateTestUser(t, env.db, "bob")
	voter := testutil.CreateTestUser(t, env.db, "voter")
	now := db.Now()

	older, _ := testutil.CreateTestPoll(t, env.db, alice.ID, models.StatusOpen)
	_, err := env.db.Exec(`UPDATE poll SET created_at = $1, category = 'politics' WHERE id = $2`, now.Add(-time.Hour), older)
	require.NoError(t, err)

	hot, hotOpts := testutil.CreateTestPoll(t, env.db, bob.ID, models.StatusOpen)
	testutil.CastTestVote(t, env.db, hot, voter.ID, hotOpts[0], models.ConfidenceMedium)
	testutil.SetPollEndsAt(t, env.db, hot, now.Add(10*time.Minute))
	_, err = env.db.Exec(`UPDATE poll SET created_at = $1, is_featured = TRUE WHERE id = $2`, now.Add(-30*time.Minute), hot)
	require.NoError(t, err)

	expired, _ := testutil.CreateTestPoll(t, env.db, alice.ID, models.StatusOpen)
	testutil.SetPollEndsAt(t, env.db, expired, now.Add(-time.Minute))

	resolved, _ := testutil.CreateTestPoll(t, env.db, bob.ID, models.StatusResolved)
	_, err = env.db.Exec(`UPDATE poll SET created_at = $1 WHERE id = $2`, now.Add(-2*time.Hour), resolved)
	require.NoError(t, err)

	assert.Equal(t, []string{expired, hot, older, resolved}, listIDs(t, h, "/polls"))
	assert.Equal(t, []string{hot, older}, listIDs(t, h, "/polls?status=open"))
	assert.Equal(t, []string{expired}, listIDs(t, h, "/polls?status=closed"))
	assert.Equal(t, []string{resolved}, listIDs(t, h, "/polls?status=resolved"))
	assert.Equal(t, []string{older}, listIDs(t, h, "/polls?category=politics"))
	assert.Equal(t, []string{expired, older}, listIDs(t, h, "/polls?creator=alice"))
	assert.Equal(t, []string{hot}, listIDs(t, h, "/polls?featured=true"))
	assert.Equal(t, hot, listIDs(t, h, "/polls?sort=hot")[0])
	assert.Equal(t, []string{hot, older}, listIDs(t, h, "/polls?sort=ending&status=open"))
	assert.Equal(t, []string{hot}, listIDs(t, h, "/polls?limit=1&offset=1"))

	for _, bad := range []string{"?status=draft", "?sort=random", "?category=nope", "?kind=flash", "?limit=-1", "?offset=x"} {
		w := serve(h.ListPolls, testutil.MakeRequest("GET", "/polls"+bad, nil, nil))
		testutil.AssertStatus(t, w, http.StatusBadRequest)
	}
}

func TestListLive(t *testing.T) {
	env := newTestEnv(t)
	h := NewPollHandler(env.deps)
	u := testutil.CreateTestUser(t, env.db, "alice")
	now := db.Now()

	later, _ := testutil.CreateTestPoll(t, env.db, u.ID, models.StatusOpen)
	sooner, _ := testutil.CreateTestPoll(t, env.db, u.ID, models.StatusOpen)
	ended, _ := testutil.CreateTestPoll(t, env.db, u.ID, models.StatusOpen)
	testutil.CreateTestPoll(t, env.db, u.ID, models.StatusOpen)
	_, err := env.db.Exec(`UPDATE poll SET kind = 'live' WHERE id IN ($1, $2, $3)`, later, sooner, ended)
	require.NoError(t, err)
	testutil.SetPollEndsAt(t, env.db, later, now.Add(5*time.Minute))
	testutil.SetPollEndsAt(t, env.db, sooner, now.Add(time.Minute))
	testutil.SetPollEndsAt(t, env.db, ended, now.Add(-time.Second))

	w := serve(h.ListLive, testutil.MakeRequest("GET", "/live", nil, nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	var resp models.ListResponse[models.PollView]
	testutil.AssertJSON(t, w, &resp)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, sooner, resp.Items[0].ID)
	assert.Equal(t, later, resp.Items[1].ID)
	assert.InDelta(t, 60, resp.Items[0].SecondsRemaining, 2)
}

func TestFeed(t *testing.T) {
	env := newTestEnv(t)
	h := NewPollHandler(env.deps)
	me := testutil.CreateTestUser(t, env.db, "me")
	friend := testutil.CreateTestUser(t, env.db, "friend")
	stranger := testutil.CreateTestUser(t, env.db, "stranger")
	testutil.Follow(t, env.db, me.ID, friend.ID)

	friendPoll, _ := testutil.CreateTestPoll(t, env.db, friend.ID, models.StatusOpen)
	testutil.CreateTestPoll(t, env.db, stranger.ID, models.StatusOpen)
	testutil.CreateTestPoll(t, env.db, me.ID, models.StatusOpen)

	w := serve(h.Feed, as(testutil.MakeRequest("GET", "/feed", nil, nil), me))
	testutil.AssertStatus(t, w, http.StatusOK)
	var resp models.ListResponse[models.PollView]
	testutil.AssertJSON(t, w, &resp)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, friendPoll, resp.Items[0].ID)
}

func TestClosePoll(t *testing.T) {
	env := newTestEnv(t)
	h := NewPollHandler(env.deps)
	creator := testutil.CreateTestUser(t, env.db, "creator")
	other := testutil.CreateTestUser(t, env.db, "other")
	admin := testutil.CreateTestUser(t, env.db, "admin")
	admin.IsAdmin = true

	pollID, _ := testutil.CreateTestPoll(t, env.db, creator.ID, models.StatusOpen)
	adminPoll, _ := testutil.CreateTestPoll(t, env.db, creator.ID, models.StatusOpen)

	closeAs := func(id string, u models.User) int {
		req := testutil.MakeRequest("POST", "/polls/"+id+"/close", nil, nil)
		req.SetPathValue("id", id)
		return serve(h.ClosePoll, as(req, u)).Code
	}

	assert.Equal(t, http.StatusForbidden, closeAs(pollID, other))
	assert.Equal(t, http.StatusOK, closeAs(pollID, creator))
	assert.Equal(t, http.StatusConflict, closeAs(pollID, creator))
	assert.Equal(t, http.StatusOK, closeAs(adminPoll, admin))
	assert.Equal(t, http.StatusNotFound, closeAs("missing", creator))

	assert.Equal(t, 1, env.pub.Count(realtime.PollTopic(pollID), realtime.EventPollClosed))
}

func TestResolvePoll(t *testing.T) {
	env := newTestEnv(t)
	h := NewPollHandler(env.deps)
	creator := testutil.CreateTestUser(t, env.db, "creator")
	voter := testutil.CreateTestUser(t, env.db, "voter")
	other := testutil.CreateTestUser(t, env.db, "other")
	pollID, opts := testutil.CreateTestPoll(t, env.db, creator.ID, models.StatusClosed)
	_, otherOpts := testutil.CreateTestPoll(t, env.db, creator.ID, models.StatusClosed)
	testutil.CastTestVote(t, env.db, pollID, voter.ID, opts[0], models.ConfidenceHigh)

	resolveAs := func(u models.User, optionID string) int {
		req := testutil.MakeRequest("POST", "/polls/"+pollID+"/resolve", models.ResolvePollRequest{CorrectOptionID: optionID}, nil)
		req.SetPathValue("id", pollID)
		return serve(h.ResolvePoll, as(req, u)).Code
	}

	assert.Equal(t, http.StatusForbidden, resolveAs(other, opts[0]))
	assert.Equal(t, http.StatusBadRequest, resolveAs(creator, ""))
	assert.Equal(t, http.StatusBadRequest, resolveAs(creator, otherOpts[0]))
	assert.Equal(t, http.StatusOK, resolveAs(creator, opts[0]))
	assert.Equal(t, http.StatusConflict, resolveAs(creator, opts[1]))

	assert.Equal(t, 10, testutil.QueryInt(t, env.db, `SELECT reputation FROM app_user WHERE id = $1`, voter.ID))
	assert.Equal(t, 1, env.pub.Count(realtime.PollTopic(pollID), realtime.EventPollResolved))
	assert.Equal(t, 1, env.pub.Count(realtime.UserTopic(voter.ID), realtime.EventNotification))

	req := testutil.MakeRequest("GET", "/polls/"+pollID, nil, nil)
	req.SetPathValue("id", pollID)
	w := serve(h.GetPoll, as(req, voter))
	var view models.PollView
	testutil.AssertJSON(t, w, &view)
	require.NotNil(t, view.MyVote)
	require.NotNil(t, view.MyVote.IsCorrect)
	assert.True(t, *view.MyVote.IsCorrect)
}

func TestDeletePoll(t *testing.T) {
	env := newTestEnv(t)
	h := NewPollHandler(env.deps)
	creator := testutil.CreateTestUser(t, env.db, "creator")
	voter := testutil.CreateTestUser(t, env.db, "voter")
	admin := testutil.CreateTestUser(t, env.db, "admin")
	admin.IsAdmin = true

	empty, _ := testutil.CreateTestPoll(t, env.db, creator.ID, models.StatusOpen)
	voted, opts := testutil.CreateTestPoll(t, env.db, creator.ID, models.StatusOpen)
	testutil.CastTestVote(t, env.db, voted, voter.ID, opts[0], models.ConfidenceLow)

	deleteAs := func(id string, u models.User) int {
		req := testutil.MakeRequest("DELETE", "/polls/"+id, nil, nil)
		req.SetPathValue("id", id)
		return serve(h.DeletePoll, as(req, u)).Code
	}

	assert.Equal(t, http.StatusForbidden, deleteAs(empty, voter))
	assert.Equal(t, http.StatusNoContent, deleteAs(empty, creator))
	assert.Equal(t, http.StatusNotFound, deleteAs(empty, creator))
	assert.Equal(t, http.StatusConflict, deleteAs(voted, creator))
	assert.Equal(t, http.StatusNoContent, deleteAs(voted, admin))
	assert.Zero(t, testutil.QueryInt(t, env.db, `SELECT COUNT(*) FROM vote`))

	// Deleted polls and their votes no longer count toward profile stats.
	assert.Zero(t, testutil.QueryInt(t, env.db, `SELECT vote_count FROM app_user WHERE id = $1`, voter.ID))
	assert.Zero(t, testutil.QueryInt(t, env.db, `SELECT polls_created FROM app_user WHERE id = $1`, creator.ID))
}

func TestDeletePoll_ResolvedStats(t *testing.T) {
	env := newTestEnv(t)
	h := NewPollHandler(env.deps)
	creator := testutil.CreateTestUser(t, env.db, "creator")
	right := testutil.CreateTestUser(t, env.db, "right")
	wrong := testutil.CreateTestUser(t, env.db, "wrong")
	admin := testutil.CreateTestUser(t, env.db, "admin")
	admin.IsAdmin = true

	pollID, opts := testutil.CreateTestPoll(t, env.db, creator.ID, models.StatusOpen)
	kept, keptOpts := testutil.CreateTestPoll(t, env.db, creator.ID, models.StatusOpen)
	testutil.CastTestVote(t, env.db, pollID, right.ID, opts[0], models.ConfidenceHigh)
	testutil.CastTestVote(t, env.db, pollID, wrong.ID, opts[1], models.ConfidenceLow)
	testutil.CastTestVote(t, env.db, kept, right.ID, keptOpts[0], models.ConfidenceLow)
	_, err := reputation.Resolve(context.Background(), env.db, pollID, opts[0], db.Now())
	require.NoError(t, err)

	req := testutil.MakeRequest("DELETE", "/polls/"+pollID, nil, nil)
	req.SetPathValue("id", pollID)
	testutil.AssertStatus(t, serve(h.DeletePoll, as(req, admin)), http.StatusNoContent)

	stats := func(u models.User) [3]int {
		var s [3]int
		require.NoError(t, env.db.QueryRow(`
			SELECT vote_count, correct_count, resolved_count FROM app_user WHERE id = $1
		`, u.ID).Scan(&s[0], &s[1], &s[2]))
		return s
	}
	assert.Equal(t, [3]int{1, 0, 0}, stats(right))
	assert.Equal(t, [3]int{0, 0, 0}, stats(wrong))
	assert.Equal(t, 1, testutil.QueryInt(t, env.db, `SELECT polls_created FROM app_user WHERE id = $1`, creator.ID))

	// Earned reputation stays in the ledger.
	assert.Equal(t, reputation.CorrectDelta, testutil.QueryInt(t, env.db, `SELECT reputation FROM app_user WHERE id = $1`, right.ID))
}

func TestGetMeta(t *testing.T) {
	env := newTestEnv(t)
	h := NewPollHandler(env.deps)
	creator := testutil.CreateTestUser(t, env.db, "creator")
	pollID, _ := testutil.CreateTestPoll(t, env.db, creator.ID, models.StatusOpen)
	_, err := env.db.Exec(`UPDATE poll SET total_votes = 12345, category = 'economy' WHERE id = $1`, pollID)
	require.NoError(t, err)

	req := testutil.MakeRequest("GET", "/polls/"+pollID+"/meta", nil, nil)
	req.SetPathValue("id", pollID)
	w := serve(h.GetMeta, req)
	testutil.AssertStatus(t, w, http.StatusOK)

	var meta models.ShareMetadata
	testutil.AssertJSON(t, w, &meta)
	assert.Equal(t, "Test question?", meta.Title)
	assert.Equal(t, "https://kidwa.test/polls/"+pollID, meta.URL)
	assert.Equal(t, "th_TH", meta.Locale)
	assert.Contains(t, meta.Description, "12,345")
	assert.Contains(t, meta.Description, "เศรษฐกิจ")
}
