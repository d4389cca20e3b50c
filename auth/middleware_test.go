package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"pinger/domain"
	"pinger/errors"
	"pinger/mocks"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newProtectedRouter(t *testing.T, store *mocks.MockIIdentityStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", RequireSession(store), func(c *gin.Context) {
		session, ok := SessionFrom(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, session.Identity)
	})
	return r
}

func TestRequireSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIIdentityStore(ctrl)
	router := newProtectedRouter(t, store)

	t.Run("should expose the session of a valid bearer token", func(t *testing.T) {
		req := require.New(t)
		store.EXPECT().Authenticate(gomock.Any(), "good-token").
			Return(domain.Session{ID: "s1", Identity: alice}, nil)

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/me", nil)
		r.Header.Set("Authorization", "Bearer good-token")
		router.ServeHTTP(w, r)

		req.Equal(http.StatusOK, w.Code)
		var got domain.Identity
		req.NoError(json.Unmarshal(w.Body.Bytes(), &got))
		req.Equal(alice, got)
	})

	t.Run("should accept the token from the query string", func(t *testing.T) {
		req := require.New(t)
		store.EXPECT().Authenticate(gomock.Any(), "query-token").
			Return(domain.Session{ID: "s2", Identity: alice}, nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token=query-token", nil))

		req.Equal(http.StatusOK, w.Code)
	})

	t.Run("should reject a missing token without calling the store", func(t *testing.T) {
		req := require.New(t)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))

		req.Equal(http.StatusUnauthorized, w.Code)
		req.JSONEq(`{"error":"authorization token is missing"}`, w.Body.String())
	})

	t.Run("should reject an expired token", func(t *testing.T) {
		req := require.New(t)
		store.EXPECT().Authenticate(gomock.Any(), "old-token").Return(domain.Session{}, errors.ErrTokenExpired)

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/me", nil)
		r.Header.Set("Authorization", "bearer old-token")
		router.ServeHTTP(w, r)

		req.Equal(http.StatusUnauthorized, w.Code)
		req.JSONEq(`{"error":"token expired"}`, w.Body.String())
	})
}
