package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/mawazo/studytrack/core"
	"github.com/mawazo/studytrack/core/user"
	emailsvc "github.com/mawazo/studytrack/services/email"
	inmemdb "github.com/mawazo/studytrack/storage/database/inmem"
	testutil "github.com/mawazo/studytrack/tests"
)

func setup(t *testing.T) (*core.Config, *user.Service, user.Repository) {
	t.Helper()

	conf := &core.Config{
		TestMode:                  true,
		AppName:                   "StudyTrack",
		SecretKey:                 "s3cr3t",
		FrontendBaseURL:           "http://localhost:3000",
		WorkDir:                   core.Getwd(),
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
	}
	repo := inmemdb.NewUserRepository(inmemdb.NewDB())
	emailsvc.ClearSentMessages()
	return conf, user.NewService(conf, repo, emailsvc.NewConsoleServiceMock(conf)), repo
}

func TestService_Register(t *testing.T) {
	_, svc, _ := setup(t)
	ctx := context.Background()

	usr, err := svc.Register(ctx, user.RegisterUser{
		Name:     "Awe Mwa",
		Username: "awe",
		Email:    "awe@test.cd",
		Role:     user.RoleStudent,
		YearGroup: null.IntFrom(11),
		Password: "p@ssw0rd",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.True(t, usr.IsActive)
	assert.True(t, usr.IsStudent())
	assert.False(t, usr.IsParent())
	assert.Equal(t, 11, int(usr.YearGroup.Int))
	assert.True(t, usr.EmailNotifications)
	assert.Equal(t, user.DefaultAlertPrefs(), usr.AlertPrefs)
	assert.NoError(t, usr.CheckPassword("p@ssw0rd"))
	assert.Error(t, usr.CheckPassword("lol"))

	t.Run("parents have no year group", func(t *testing.T) {
		parent, err := svc.Register(ctx, user.RegisterUser{
			Name:      "Papa Mwa",
			Username:  "papa",
			Email:     "papa@test.cd",
			Role:      user.RoleParent,
			YearGroup: null.IntFrom(9),
			Password:  "p@ssw0rd",
		})
		require.NoError(t, err)
		assert.True(t, parent.IsParent())
		assert.False(t, parent.YearGroup.Valid)
	})
}

func TestService_GetByUsernameOrEmail(t *testing.T) {
	_, svc, repo := setup(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, repo, "Awe Mwa", "awe", "awe@test.cd", "", []string{user.RoleStudent}, true)

	got, err := svc.GetByUsernameOrEmail(ctx, "AWE")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)

	got, err = svc.GetByUsernameOrEmail(ctx, "awe@test.cd")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)

	_, err = svc.GetByUsernameOrEmail(ctx, "lol")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}

func TestService_Update(t *testing.T) {
	_, svc, repo := setup(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, repo, "Awe Mwa", "awe", "awe@test.cd", "p@ss", []string{user.RoleStudent}, true)

	updated, err := svc.Update(ctx, usr.ID, user.UpdateUser{Name: "New Name"})
	require.NoError(t, err)
	assert.Equal(t, "New Name", updated.Name)
	assert.Equal(t, usr.Username, updated.Username)
	assert.Equal(t, usr.Email, updated.Email)

	inactive := false
	updated, err = svc.Update(ctx, usr.ID, user.UpdateUser{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
}

func TestService_LinkStudent(t *testing.T) {
	_, svc, repo := setup(t)
	ctx := context.Background()

	parent := testutil.CreateUser(t, repo, "Papa", "papa", "papa@test.cd", "", []string{user.RoleParent}, true)
	student := testutil.CreateUser(t, repo, "Awe", "awe", "awe@test.cd", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, repo, "Bo", "bo", "bo@test.cd", "", []string{user.RoleStudent}, true)

	require.NoError(t, svc.LinkStudent(ctx, parent, student.Username))

	linked, err := svc.IsLinked(ctx, parent.ID, student.ID)
	require.NoError(t, err)
	assert.True(t, linked)

	linked, err = svc.IsLinked(ctx, parent.ID, other.ID)
	require.NoError(t, err)
	assert.False(t, linked)

	students, err := svc.Students(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, student.ID, students[0].ID)

	parents, err := svc.Parents(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, parents, 1)
	assert.Equal(t, parent.ID, parents[0].ID)

	t.Run("cannot link a parent account", func(t *testing.T) {
		err := svc.LinkStudent(ctx, parent, parent.Username)
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr))
	})

	t.Run("unknown student", func(t *testing.T) {
		err := svc.LinkStudent(ctx, parent, "ghost")
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	})
}

func TestService_SetAlertPrefs(t *testing.T) {
	_, svc, repo := setup(t)
	ctx := context.Background()

	parent := testutil.CreateUser(t, repo, "Papa", "papa", "papa@test.cd", "", []string{user.RoleParent}, true)

	off := false
	prefs := user.DefaultAlertPrefs()
	prefs.LowActivityDays = 7
	prefs.Frequency = user.FrequencyWeekly

	updated, err := svc.SetAlertPrefs(ctx, parent, user.UpdateAlertPrefs{
		EmailNotifications: &off,
		AlertPrefs:         &prefs,
	})
	require.NoError(t, err)
	assert.False(t, updated.EmailNotifications)
	assert.Equal(t, 7, updated.AlertPrefs.LowActivityDays)
	assert.Equal(t, user.FrequencyWeekly, updated.AlertPrefs.Frequency)

	// sticks
	got, err := svc.GetByID(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.AlertPrefs.LowActivityDays)
}

func TestService_PasswordReset(t *testing.T) {
	conf, svc, repo := setup(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, repo, "Awe", "awe", "awe@test.cd", "0ldp@ss", []string{user.RoleStudent}, true)

	require.NoError(t, svc.RequestPasswordReset(ctx, usr.Email))
	require.Len(t, emailsvc.SentMessages, 1)
	assert.Equal(t, "Password Reset", emailsvc.SentMessages[0].Subject)
	assert.Contains(t, emailsvc.SentMessages[0].TextContent, "choose a new one")

	t.Run("inactive account", func(t *testing.T) {
		inactive := testutil.CreateUser(t, repo, "Bo", "bo", "bo@test.cd", "p@ss", []string{user.RoleStudent}, false)
		err := svc.RequestPasswordReset(ctx, inactive.Email)
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	})

	t.Run("reset roundtrip", func(t *testing.T) {
		token, err := user.MakeToken(conf, usr)
		require.NoError(t, err)

		err = svc.ResetPassword(ctx, user.ResetUserPassword{
			Token:           token,
			UID:             user.EncodeUID(usr),
			Password:        "n3wp@ss",
			PasswordConfirm: "n3wp@ss",
		})
		require.NoError(t, err)

		refreshed, err := svc.GetByID(ctx, usr.ID)
		require.NoError(t, err)
		assert.NoError(t, refreshed.CheckPassword("n3wp@ss"))
	})
}
