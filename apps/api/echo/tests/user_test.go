package tests

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/mawazo/studytrack/apps/api/echo"
	"github.com/mawazo/studytrack/core/user"
	emailsvc "github.com/mawazo/studytrack/services/email"
	testutil "github.com/mawazo/studytrack/tests"
)

func Test_home(t *testing.T) {
	f := setup(t, templateGenerator{})

	req, rec := newRequest(http.MethodGet, "/")
	f.app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to StudyTrack API!", rec.Body.String())
}

func Test_userApi_register(t *testing.T) {
	f := setup(t, templateGenerator{})

	body := func(name, uname, email, role, pwd string, yearGroup int) []byte {
		payload := map[string]interface{}{
			"name": name, "username": uname, "email": email, "role": role,
			"password": pwd, "password_confirm": pwd,
		}
		if yearGroup > 0 {
			payload["year_group"] = yearGroup
		}
		return marchallObj(t, payload)
	}

	t.Run("student signup", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/register",
			body("Awe Mwa", "awe", "awe@test.cd", user.RoleStudent, "p@ssw0rd", 11))
		f.app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var usr user.User
		decodeBody(t, rec, &usr)
		assert.NotEmpty(t, usr.ID)
		assert.Equal(t, "awe", usr.Username)
		assert.True(t, usr.IsActive)
		assert.Equal(t, []string{user.RoleStudent}, usr.Roles)
		assert.Equal(t, 11, int(usr.YearGroup.Int))
	})

	t.Run("parent signup", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/register",
			body("Papa Mwa", "papa", "papa@test.cd", user.RoleParent, "p@ssw0rd", 0))
		f.app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var usr user.User
		decodeBody(t, rec, &usr)
		assert.Equal(t, []string{user.RoleParent}, usr.Roles)
		assert.False(t, usr.YearGroup.Valid)
	})

	t.Run("admin signup rejected", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/register",
			body("Sneaky", "sneaky", "sneaky@test.cd", user.RoleAdmin, "p@ssw0rd", 0))
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("duplicate username", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/register",
			body("Copy Cat", "awe", "copy@test.cd", user.RoleStudent, "p@ssw0rd", 10))
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "username")
	})

	t.Run("password mismatch", func(t *testing.T) {
		payload := marchallObj(t, map[string]interface{}{
			"name": "X", "username": "xxx", "email": "x@test.cd", "role": user.RoleStudent,
			"password": "one", "password_confirm": "two",
		})
		req, rec := newRequest(http.MethodPost, "/v1/users/register", payload)
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func Test_userApi_login(t *testing.T) {
	f := setup(t, templateGenerator{})
	testutil.CreateUser(t, f.usrRepo, "Awe Mwa", "awe", "awe@test.cd", "p@ssw0rd", []string{user.RoleStudent}, true)
	testutil.CreateUser(t, f.usrRepo, "Gone", "gone", "gone@test.cd", "p@ssw0rd", []string{user.RoleStudent}, false)

	login := func(uname, pwd string) (*http.Request, *httptest.ResponseRecorder) {
		return newRequest(http.MethodPost, "/v1/users/login",
			marchallObj(t, map[string]string{"username": uname, "password": pwd}))
	}

	tests := []struct {
		name     string
		uname    string
		pwd      string
		wantCode int
		wantErr  string
	}{
		{"by username", "awe", "p@ssw0rd", http.StatusOK, ""},
		{"by email", "awe@test.cd", "p@ssw0rd", http.StatusOK, ""},
		{"username is case insensitive", "AWE", "p@ssw0rd", http.StatusOK, ""},
		{"wrong password", "awe", "lol", http.StatusBadRequest, "authentication failed"},
		{"unknown user", "ghost", "p@ssw0rd", http.StatusBadRequest, "authentication failed"},
		{"deactivated account", "gone", "p@ssw0rd", http.StatusForbidden, "account deactivated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := login(tt.uname, tt.pwd)
			f.app.ServeHTTP(rec, req)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantErr != "" {
				assert.Contains(t, rec.Body.String(), tt.wantErr)
				return
			}
			var res LoginResponse
			decodeBody(t, rec, &res)
			assert.NotEmpty(t, res.Token)
		})
	}

	t.Run("login stamps last_login", func(t *testing.T) {
		req, rec := login("awe", "p@ssw0rd")
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		usr, err := f.usrSvc.GetByUsername(context.Background(), "awe")
		require.NoError(t, err)
		assert.False(t, usr.LastLogin.IsZero())
	})
}

func Test_userApi_tokenRefresh(t *testing.T) {
	f := setup(t, templateGenerator{})
	usr := testutil.CreateUser(t, f.usrRepo, "Awe", "awe", "awe@test.cd", "p@ss", []string{user.RoleStudent}, true)

	req, rec := newAuthRequest(http.MethodPost, "/v1/users/token-refresh", f.getToken(t, usr))
	f.app.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res LoginResponse
	decodeBody(t, rec, &res)
	assert.NotEmpty(t, res.Token)

	t.Run("auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/token-refresh")
		f.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
	})
}

func Test_userApi_passwordReset(t *testing.T) {
	f := setup(t, templateGenerator{})
	usr := testutil.CreateUser(t, f.usrRepo, "Awe", "awe", "awe@test.cd", "0ldp@ss", []string{user.RoleStudent}, true)

	t.Run("known email sends instructions", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/password-reset",
			marchallObj(t, map[string]string{"email": usr.Email}))
		f.app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Len(t, emailsvc.SentMessages, 1)
		assert.Equal(t, "Password Reset", emailsvc.SentMessages[0].Subject)
	})

	t.Run("unknown email gets the same response", func(t *testing.T) {
		emailsvc.ClearSentMessages()
		req, rec := newRequest(http.MethodPost, "/v1/users/password-reset",
			marchallObj(t, map[string]string{"email": "ghost@test.cd"}))
		f.app.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "an email will arrive in your inbox")
		assert.Empty(t, emailsvc.SentMessages)
	})

	t.Run("confirm with a valid token", func(t *testing.T) {
		token, err := user.MakeToken(f.conf, usr)
		require.NoError(t, err)

		req, rec := newRequest(http.MethodPost, "/v1/users/password-reset-confirm",
			marchallObj(t, map[string]string{
				"token":            token,
				"uid":              user.EncodeUID(usr),
				"password":         "n3wp@ss",
				"password_confirm": "n3wp@ss",
			}))
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		// the new password works
		req, rec = newRequest(http.MethodPost, "/v1/users/login",
			marchallObj(t, map[string]string{"username": "awe", "password": "n3wp@ss"}))
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("tampered token rejected", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/password-reset-confirm",
			marchallObj(t, map[string]string{
				"token":            "lol-nope",
				"uid":              user.EncodeUID(usr),
				"password":         "n3wp@ss",
				"password_confirm": "n3wp@ss",
			}))
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func Test_userApi_query(t *testing.T) {
	f := setup(t, templateGenerator{})

	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	student := testutil.CreateUser(t, f.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	parent := testutil.CreateUser(t, f.usrRepo, "Papa", "papa", "papa@test.cd", "", []string{user.RoleParent}, true)
	naughty := testutil.CreateUser(t, f.usrRepo, "N Dog", "ndog", "ndog@test.cd", "", []string{user.RoleStudent}, false)

	adminToken := f.getToken(t, admin)

	path := func(params url.Values) string { return "/v1/users?" + params.Encode() }

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", path: "/v1/users", token: f.getToken(t, student), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "Get all", path: "/v1/users", token: adminToken, wantData: marchallList(t, admin, student, parent, naughty)},
		{
			name: "search", path: path(url.Values{"search": []string{"hero"}}), token: adminToken,
			wantData: marchallList(t, student),
		},
		{
			name: "role=parent:", path: path(url.Values{"role": []string{user.RoleParent}}), token: adminToken,
			wantData: marchallList(t, parent),
		},
		{
			name: "is_active=false", path: path(url.Values{"is_active": []string{"false"}}), token: adminToken,
			wantData: marchallList(t, naughty),
		},
		{
			name: "order by name", path: path(url.Values{"ordering": []string{"name"}}), token: adminToken,
			wantData: marchallList(t, admin, student, naughty, parent),
		},
		{
			name: "order by -name", path: path(url.Values{"ordering": []string{"-name"}}), token: adminToken,
			wantData: marchallList(t, parent, naughty, student, admin),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			f.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_retrieveUpdate(t *testing.T) {
	f := setup(t, templateGenerator{})

	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin", "admin@test.cd", "", user.AllRoles, true)
	student := testutil.CreateUser(t, f.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, f.usrRepo, "Other", "other", "other@test.cd", "", []string{user.RoleStudent}, true)

	studentToken := f.getToken(t, student)

	t.Run("retrieve self", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+student.ID, studentToken)
		f.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, student)}, rec)
	})

	t.Run("cannot see other accounts", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+other.ID, studentToken)
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("admin sees anyone", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+other.ID, f.getToken(t, admin))
		f.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, other)}, rec)
	})

	t.Run("update own name", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+student.ID, studentToken,
			marchallObj(t, map[string]string{"name": "Super Hero"}))
		f.app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var usr user.User
		decodeBody(t, rec, &usr)
		assert.Equal(t, "Super Hero", usr.Name)
		assert.Equal(t, "hero", usr.Username)
	})

	t.Run("non-admin cannot grant roles", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+student.ID, studentToken,
			marchallObj(t, map[string]interface{}{"roles": user.AllRoles}))
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("non-admin cannot change username", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+student.ID, studentToken,
			marchallObj(t, map[string]string{"username": "l33t"}))
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("update alert prefs", func(t *testing.T) {
		parent := testutil.CreateUser(t, f.usrRepo, "Papa", "papa", "papa@test.cd", "", []string{user.RoleParent}, true)
		prefs := user.DefaultAlertPrefs()
		prefs.Frequency = user.FrequencyWeekly

		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+parent.ID+"/alert-prefs", f.getToken(t, parent),
			marchallObj(t, map[string]interface{}{"alert_prefs": prefs}))
		f.app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var usr user.User
		decodeBody(t, rec, &usr)
		assert.Equal(t, user.FrequencyWeekly, usr.AlertPrefs.Frequency)
	})
}

func Test_userApi_destroy(t *testing.T) {
	f := setup(t, templateGenerator{})

	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin", "admin@test.cd", "", user.AllRoles, true)
	victim := testutil.CreateUser(t, f.usrRepo, "Victim", "victim", "victim@test.cd", "", []string{user.RoleStudent}, true)
	adminToken := f.getToken(t, admin)

	t.Run("admin cannot delete themselves", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/users/"+admin.ID, adminToken)
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin deletes a user", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/users/"+victim.ID, adminToken)
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		req, rec = newAuthRequest(http.MethodGet, "/v1/users/"+victim.ID, adminToken)
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bulk delete skips requester", func(t *testing.T) {
		v1 := testutil.CreateUser(t, f.usrRepo, "V1", "v1user", "v1@test.cd", "", []string{user.RoleStudent}, true)
		v2 := testutil.CreateUser(t, f.usrRepo, "V2", "v2user", "v2@test.cd", "", []string{user.RoleStudent}, true)

		path := fmt.Sprintf("/v1/users?id=%s&id=%s&id=%s", v1.ID, v2.ID, admin.ID)
		req, rec := newAuthRequest(http.MethodDelete, path, adminToken)
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		path = fmt.Sprintf("/v1/users?id=%s&id=%s", v1.ID, v2.ID)
		req, rec = newAuthRequest(http.MethodDelete, path, adminToken)
		f.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func Test_userApi_queryRoles(t *testing.T) {
	f := setup(t, templateGenerator{})
	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin", "admin@test.cd", "", user.AllRoles, true)

	req, rec := newAuthRequest(http.MethodGet, "/v1/users/roles", f.getToken(t, admin))
	f.app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, user.Roles)}, rec)
}
