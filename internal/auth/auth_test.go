package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestLogin_PlainPassword(t *testing.T) {
	s, err := NewService(Config{Username: "admin", Password: "s3cret", Secret: "k"})
	require.NoError(t, err)
	require.True(t, s.Enabled())

	token, err := s.Login("admin", "s3cret")
	require.NoError(t, err)

	name, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", name)

	_, err = s.Login("admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Login("root", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_BcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	s, err := NewService(Config{Username: "admin", PasswordHash: string(hash)})
	require.NoError(t, err)

	_, err = s.Login("admin", "hunter2")
	assert.NoError(t, err)
	_, err = s.Login("admin", "hunter3")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = NewService(Config{Username: "admin", PasswordHash: "plain-text"})
	assert.Error(t, err)
}

func TestLogin_Disabled(t *testing.T) {
	s, err := NewService(Config{Username: "admin"})
	require.NoError(t, err)
	assert.False(t, s.Enabled())

	_, err = s.Login("admin", "")
	assert.ErrorIs(t, err, ErrLoginDisabled)
}

func TestVerify_Rejects(t *testing.T) {
	s, err := NewService(Config{Username: "admin", Password: "pw", Secret: "one"})
	require.NoError(t, err)
	other, err := NewService(Config{Username: "admin", Password: "pw", Secret: "two"})
	require.NoError(t, err)

	foreign, err := other.Login("admin", "pw")
	require.NoError(t, err)
	_, err = s.Verify(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	s.now = func() time.Time { return time.Now().Add(-24 * time.Hour) }
	expired, err := s.Login("admin", "pw")
	require.NoError(t, err)
	_, err = s.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCookieRoundTrip(t *testing.T) {
	s, err := NewService(Config{Username: "admin", Password: "pw"})
	require.NoError(t, err)
	token, err := s.Login("admin", "pw")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.SetCookie(rec, httptest.NewRequest(http.MethodPost, "/login", nil), token)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/import", nil)
	req.AddCookie(cookies[0])
	name, ok := s.FromRequest(req)
	assert.True(t, ok)
	assert.Equal(t, "admin", name)

	_, ok = s.FromRequest(httptest.NewRequest(http.MethodGet, "/import", nil))
	assert.False(t, ok)

	rec = httptest.NewRecorder()
	s.ClearCookie(rec)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestAdminContext(t *testing.T) {
	_, ok := AdminFrom(context.Background())
	assert.False(t, ok)

	name, ok := AdminFrom(WithAdmin(context.Background(), "admin"))
	assert.True(t, ok)
	assert.Equal(t, "admin", name)
}
