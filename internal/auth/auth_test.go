package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-lukins/compforge/internal/db/memorystorage"
	"github.com/m-lukins/compforge/internal/logger"
	"github.com/m-lukins/compforge/internal/user"
)

const testSigningKey = "supersecretkey"

func newTestAuth(t *testing.T, db userKeeper, ttl time.Duration) *Auth {
	t.Helper()
	require.NoError(t, logger.Init("debug"))
	return New(db, "test_session", []byte(testSigningKey), ttl)
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("Passw0rd1")
	require.NoError(t, err)
	assert.NotEqual(t, "Passw0rd1", hash)

	assert.True(t, CheckPassword(hash, "Passw0rd1"))
	assert.False(t, CheckPassword(hash, "wrong"))
	assert.False(t, CheckPassword("not-a-hash", "Passw0rd1"))
}

func TestBuildAndParseToken(t *testing.T) {
	db, err := memorystorage.New()
	require.NoError(t, err)
	a := newTestAuth(t, db, time.Hour)

	tokenString, err := a.BuildJWTString("user-42")
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	userID, err := a.GetUserIDFromToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)

	t.Run("garbage token is rejected", func(t *testing.T) {
		_, err := a.GetUserIDFromToken("not-a-jwt")
		assert.Error(t, err)
	})

	t.Run("token signed with another key is rejected", func(t *testing.T) {
		other := New(db, "test_session", []byte("anotherkey"), time.Hour)
		foreign, err := other.BuildJWTString("user-42")
		require.NoError(t, err)

		_, err = a.GetUserIDFromToken(foreign)
		assert.Error(t, err)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		shortLived := New(db, "test_session", []byte(testSigningKey), -time.Minute)
		expired, err := shortLived.BuildJWTString("user-42")
		require.NoError(t, err)

		_, err = a.GetUserIDFromToken(expired)
		assert.Error(t, err)
	})
}

func TestAuthenticateUserMiddleware(t *testing.T) {
	db, err := memorystorage.New()
	require.NoError(t, err)
	a := newTestAuth(t, db, time.Hour)

	usr := &user.User{
		ID:       "user-42",
		Username: "alice",
		Email:    "alice@example.com",
	}
	require.NoError(t, db.CreateUser(context.Background(), usr, nil))

	protected := a.AuthenticateUser(http.HandlerFunc(
		func(response http.ResponseWriter, request *http.Request) {
			userID, ok := UserIDFromContext(request.Context())
			assert.True(t, ok)
			assert.Equal(t, "user-42", userID)
			response.WriteHeader(http.StatusOK)
		},
	))

	tokenString, err := a.BuildJWTString("user-42")
	require.NoError(t, err)

	t.Run("token in the Authorization header", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.Header.Set("Authorization", tokenString)
		recorder := httptest.NewRecorder()

		protected.ServeHTTP(recorder, request)
		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("token in the session cookie", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.AddCookie(&http.Cookie{Name: "test_session", Value: tokenString})
		recorder := httptest.NewRecorder()

		protected.ServeHTTP(recorder, request)
		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("no token", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		recorder := httptest.NewRecorder()

		protected.ServeHTTP(recorder, request)
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("token of a deleted user", func(t *testing.T) {
		ghostToken, err := a.BuildJWTString("no-such-user")
		require.NoError(t, err)

		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.Header.Set("Authorization", ghostToken)
		recorder := httptest.NewRecorder()

		protected.ServeHTTP(recorder, request)
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})
}

func TestSessionCookie(t *testing.T) {
	db, err := memorystorage.New()
	require.NoError(t, err)
	a := newTestAuth(t, db, time.Hour)

	recorder := httptest.NewRecorder()
	a.SetSessionCookie(recorder, "some-token")

	cookies := recorder.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "test_session", cookies[0].Name)
	assert.Equal(t, "some-token", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, int(time.Hour.Seconds()), cookies[0].MaxAge)

	recorder = httptest.NewRecorder()
	a.ClearSessionCookie(recorder)

	cookies = recorder.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}
