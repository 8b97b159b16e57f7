package tests

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/mawazo/studytrack/apps/api/echo"
	"github.com/mawazo/studytrack/core/roadmap"
	"github.com/mawazo/studytrack/core/study"
	"github.com/mawazo/studytrack/core/user"
	testutil "github.com/mawazo/studytrack/tests"
)

func Test_studyApi_authz(t *testing.T) {
	f := setup(t, templateGenerator{})
	parent := testutil.CreateUser(t, f.usrRepo, "Papa", "papa", "papa@test.cd", "", []string{user.RoleParent}, true)

	tests := []httpTest{
		{
			name: "Auth required", method: http.MethodGet, path: "/v1/subjects",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "Students only", method: http.MethodGet, path: "/v1/subjects", token: f.getToken(t, parent),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Dashboard is for students too", method: http.MethodGet, path: "/v1/dashboard", token: f.getToken(t, parent),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			f.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_studyApi_subjects(t *testing.T) {
	f := setup(t, templateGenerator{})
	student := testutil.CreateUser(t, f.usrRepo, "Awe", "awe", "awe@test.cd", "", []string{user.RoleStudent}, true)
	rival := testutil.CreateUser(t, f.usrRepo, "Riv", "riv", "riv@test.cd", "", []string{user.RoleStudent}, true)
	token := f.getToken(t, student)

	var sub study.Subject

	t.Run("create", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/subjects", token,
			marchallObj(t, map[string]string{"name": " Maths ", "description": "foundation tier"}))
		f.app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		decodeBody(t, rec, &sub)
		assert.Equal(t, "maths", sub.Name)
		assert.Equal(t, student.ID, sub.StudentID)
		assert.Equal(t, "foundation tier", sub.Description)
	})

	t.Run("duplicate rejected", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/subjects", token,
			marchallObj(t, map[string]string{"name": "maths"}))
		f.app.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "already being tracked")
	})

	t.Run("unknown subject rejected", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/subjects", token,
			marchallObj(t, map[string]string{"name": "alchemy"}))
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("query", func(t *testing.T) {
		sub2 := testutil.CreateSubject(t, f.studyRepo, student.ID, "english")
		testutil.CreateSubject(t, f.studyRepo, rival.ID, "science") // not ours

		req, rec := newAuthRequest(http.MethodGet, "/v1/subjects", token)
		f.app.ServeHTTP(rec, req)
		// sorted by name
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallList(t, sub2, sub)}, rec)
	})

	t.Run("retrieve", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/subjects/"+sub.ID, token)
		f.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, sub)}, rec)
	})

	t.Run("someone else's subject is a 404", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/subjects/"+sub.ID, f.getToken(t, rival))
		f.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})}, rec)
	})

	t.Run("update", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/subjects/"+sub.ID, token,
			marchallObj(t, map[string]string{"name": "maths", "description": "higher tier"}))
		f.app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated study.Subject
		decodeBody(t, rec, &updated)
		assert.Equal(t, "higher tier", updated.Description)
	})

	t.Run("destroy", func(t *testing.T) {
		doomed := testutil.CreateSubject(t, f.studyRepo, student.ID, "mandarin")

		req, rec := newAuthRequest(http.MethodDelete, "/v1/subjects/"+doomed.ID, token)
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		req, rec = newAuthRequest(http.MethodGet, "/v1/subjects/"+doomed.ID, token)
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_studyApi_goals(t *testing.T) {
	f := setup(t, templateGenerator{})
	student := testutil.CreateUser(t, f.usrRepo, "Awe", "awe", "awe@test.cd", "", []string{user.RoleStudent}, true)
	rival := testutil.CreateUser(t, f.usrRepo, "Riv", "riv", "riv@test.cd", "", []string{user.RoleStudent}, true)
	sub := testutil.CreateSubject(t, f.studyRepo, student.ID, "maths")
	token := f.getToken(t, student)

	var goal study.TermGoal

	t.Run("create", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/subjects/"+sub.ID+"/goals", token,
			marchallObj(t, map[string]string{
				"current_level": "5", "target_level": "7", "term": "spring_2026", "deadline": "2026-04-03",
			}))
		f.app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		decodeBody(t, rec, &goal)
		assert.Equal(t, sub.ID, goal.SubjectID)
		assert.Equal(t, "spring_2026", goal.Term)
	})

	t.Run("bad term rejected", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/subjects/"+sub.ID+"/goals", token,
			marchallObj(t, map[string]string{
				"current_level": "5", "target_level": "7", "term": "michaelmas_1999", "deadline": "2026-04-03",
			}))
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("query", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/subjects/"+sub.ID+"/goals", token)
		f.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallList(t, goal)}, rec)
	})

	t.Run("update", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/goals/"+goal.ID, token,
			marchallObj(t, map[string]string{
				"current_level": "6", "target_level": "8", "term": "spring_2026", "deadline": "2026-04-03",
			}))
		f.app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated study.TermGoal
		decodeBody(t, rec, &updated)
		assert.Equal(t, "8", updated.TargetLevel)
	})

	t.Run("someone else's goal is a 404", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/goals/"+goal.ID, f.getToken(t, rival),
			marchallObj(t, map[string]string{
				"current_level": "1", "target_level": "9", "term": "spring_2026", "deadline": "2026-04-03",
			}))
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("destroy", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/goals/"+goal.ID, token)
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		req, rec = newAuthRequest(http.MethodGet, "/v1/subjects/"+sub.ID+"/goals", token)
		f.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte("[]")}, rec)
	})
}

func Test_studyApi_feedback(t *testing.T) {
	f := setup(t, templateGenerator{})
	student := testutil.CreateUser(t, f.usrRepo, "Awe", "awe", "awe@test.cd", "", []string{user.RoleStudent}, true)
	sub := testutil.CreateSubject(t, f.studyRepo, student.ID, "science")
	token := f.getToken(t, student)

	var fb study.Feedback

	t.Run("create", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/subjects/"+sub.ID+"/feedback", token,
			marchallObj(t, map[string]string{
				"strengths":        "practical work",
				"weaknesses":       "balancing equations",
				"areas_to_improve": "revise the periodic table weekly",
				"feedback_date":    "2026-08-20",
			}))
		f.app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		decodeBody(t, rec, &fb)
		assert.Equal(t, "balancing equations", fb.Weaknesses)
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/subjects/"+sub.ID+"/feedback", token,
			marchallObj(t, map[string]string{"strengths": "everything"}))
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("query", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/subjects/"+sub.ID+"/feedback", token)
		f.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallList(t, fb)}, rec)
	})

	t.Run("update", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/feedback/"+fb.ID, token,
			marchallObj(t, map[string]string{
				"strengths":        "practical work",
				"weaknesses":       "graph interpretation",
				"areas_to_improve": "past papers",
				"feedback_date":    "2026-08-20",
			}))
		f.app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated study.Feedback
		decodeBody(t, rec, &updated)
		assert.Equal(t, "graph interpretation", updated.Weaknesses)
	})

	t.Run("destroy", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/feedback/"+fb.ID, token)
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func Test_studyApi_sessions(t *testing.T) {
	f := setup(t, templateGenerator{})
	student := testutil.CreateUser(t, f.usrRepo, "Awe", "awe", "awe@test.cd", "", []string{user.RoleStudent}, true)
	sub := testutil.CreateSubject(t, f.studyRepo, student.ID, "maths")
	token := f.getToken(t, student)

	var sess study.StudySession

	t.Run("create", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/subjects/"+sub.ID+"/sessions", token,
			marchallObj(t, map[string]interface{}{
				"hours_spent": 1.5, "session_date": "2026-08-28", "notes": "simultaneous equations",
			}))
		f.app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		decodeBody(t, rec, &sess)
		assert.Equal(t, 1.5, sess.HoursSpent)
		assert.Equal(t, student.ID, sess.StudentID)
	})

	t.Run("zero hours rejected", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/subjects/"+sub.ID+"/sessions", token,
			marchallObj(t, map[string]interface{}{"hours_spent": 0, "session_date": "2026-08-28"}))
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("query honours the limit param", func(t *testing.T) {
		for i := 0; i < 4; i++ {
			day := study.Today().AddDays(-i)
			testutil.CreateSession(t, f.studyRepo, student.ID, sub.ID, 0.5, day)
		}

		req, rec := newAuthRequest(http.MethodGet, fmt.Sprintf("/v1/subjects/%s/sessions?limit=3", sub.ID), token)
		f.app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var sessions []study.StudySession
		decodeBody(t, rec, &sessions)
		assert.Len(t, sessions, 3)
	})

	t.Run("update", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/sessions/"+sess.ID, token,
			marchallObj(t, map[string]interface{}{
				"hours_spent": 2.0, "session_date": "2026-08-28", "notes": "finished the topic",
			}))
		f.app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated study.StudySession
		decodeBody(t, rec, &updated)
		assert.Equal(t, 2.0, updated.HoursSpent)
	})

	t.Run("destroy", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/sessions/"+sess.ID, token)
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func Test_studyApi_dashboard(t *testing.T) {
	f := setup(t, templateGenerator{})
	student := testutil.CreateUser(t, f.usrRepo, "Awe", "awe", "awe@test.cd", "", []string{user.RoleStudent}, true)
	sub := testutil.CreateSubject(t, f.studyRepo, student.ID, "maths")
	goal := testutil.CreateTermGoal(t, f.studyRepo, sub.ID, study.Today().AddDays(30))
	testutil.CreateSession(t, f.studyRepo, student.ID, sub.ID, 1.5, study.Today())
	token := f.getToken(t, student)

	req, rec := newAuthRequest(http.MethodGet, "/v1/dashboard", token)
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res DashboardResponse
	decodeBody(t, rec, &res)

	assert.Equal(t, 1.5, res.Analytics.TotalHours)
	assert.Equal(t, 1, res.Analytics.StudyStreak)
	require.Len(t, res.OpenGoals, 1)
	assert.Equal(t, goal.ID, res.OpenGoals[0].ID)
	require.NotEmpty(t, res.RecentActivity)
	assert.Equal(t, "session", res.RecentActivity[0].Type)
	assert.Equal(t, "Logged 1.5h of study", res.RecentActivity[0].Description)

	// no roadmap yet, so nothing to complete
	assert.Equal(t, 0, res.TotalTasks)
	assert.Equal(t, 0.0, res.CompletionPct)

	t.Run("roadmap completion feeds the dashboard", func(t *testing.T) {
		rm := generateRoadmap(t, f, token, sub)
		item := rm.Steps[0].ChecklistItems[0]
		req, rec := newAuthRequest(http.MethodPost, "/v1/checklist-items/"+item.ID+"/toggle", token)
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		req, rec = newAuthRequest(http.MethodGet, "/v1/dashboard", token)
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var res DashboardResponse
		decodeBody(t, rec, &res)
		assert.Equal(t, 1, res.CompletedTasks)
		assert.NotZero(t, res.TotalTasks)
		assert.Equal(t, roadmap.Percentage(1, res.TotalTasks), res.CompletionPct)
	})
}
