package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mawazo/studytrack/core"
)

func tokenTestConfig() *core.Config {
	return &core.Config{
		SecretKey:                 "s3cr3t",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
	}
}

func tokenTestUser(t *testing.T) User {
	usr := User{
		ID:       "4f3a1b9e",
		Username: "awe",
		Email:    "awe@test.cd",
	}
	require.NoError(t, usr.SetPassword("p@ssw0rd"))
	return usr
}

func Test_verifyToken(t *testing.T) {
	conf := tokenTestConfig()
	usr := tokenTestUser(t)
	defer func() { NowFunc = time.Now }()

	token, err := MakeToken(conf, usr)
	require.NoError(t, err)
	assert.NoError(t, verifyToken(conf, usr, token))

	t.Run("empty token", func(t *testing.T) {
		assert.Equal(t, errInvalidToken, verifyToken(conf, usr, ""))
	})

	t.Run("malformed token", func(t *testing.T) {
		assert.Equal(t, errInvalidToken, verifyToken(conf, usr, "lol"))
		assert.Equal(t, errInvalidToken, verifyToken(conf, usr, "!!!-"+token))
	})

	t.Run("tampered token", func(t *testing.T) {
		assert.Equal(t, errInvalidToken, verifyToken(conf, usr, token+"x"))
	})

	t.Run("wrong user", func(t *testing.T) {
		other := tokenTestUser(t)
		other.ID = "deadbeef"
		assert.Equal(t, errInvalidToken, verifyToken(conf, other, token))
	})

	t.Run("password change invalidates token", func(t *testing.T) {
		changed := usr
		require.NoError(t, changed.SetPassword("n3w-p@ss"))
		assert.Equal(t, errInvalidToken, verifyToken(conf, changed, token))
	})

	t.Run("expired token", func(t *testing.T) {
		NowFunc = func() time.Time { return time.Now().Add(4 * 24 * time.Hour) }
		defer func() { NowFunc = time.Now }()
		assert.Equal(t, errTokenExpired, verifyToken(conf, usr, token))
	})

	t.Run("last login invalidates token", func(t *testing.T) {
		loggedIn := usr
		loggedIn.LastLogin = time.Now().UTC()
		assert.Equal(t, errInvalidToken, verifyToken(conf, loggedIn, token))
	})
}

func Test_EncodeUID(t *testing.T) {
	usr := User{ID: "0b9acccc-9a28-4566-b6b4-d57928e0ea0f"}

	uid := EncodeUID(usr)
	require.NotEmpty(t, uid)

	id, err := decodeUID(uid)
	require.NoError(t, err)
	assert.Equal(t, usr.ID, id)

	_, err = decodeUID("???")
	assert.Error(t, err)
}
