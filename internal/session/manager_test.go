package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(store Store) *Manager {
	return NewManager(store, CookieConfig{Name: "sessionid"}, time.Hour, zerolog.New(io.Discard))
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "sessionid" {
			return c
		}
	}
	return nil
}

func TestMiddlewareStartsAndPersistsSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := NewMemoryStore()
	m := newTestManager(store)

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/set", func(c *gin.Context) {
		FromContext(c).Set(KeyFlash, "hello")
		c.Status(http.StatusNoContent)
	})
	r.GET("/get", func(c *gin.Context) {
		v, _ := FromContext(c).Pop(KeyFlash)
		c.String(http.StatusOK, v)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/set", nil))
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	values, err := store.Load(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "hello", values[KeyFlash])

	req := httptest.NewRequest(http.MethodGet, "/get", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "hello", rec.Body.String())
	assert.Nil(t, sessionCookie(rec), "known session must not be re-issued")

	_, err = store.Load(context.Background(), cookie.Value)
	assert.ErrorIs(t, err, ErrSessionNotFound, "popping the last value empties the session")
}

func TestMiddlewareIgnoresUnknownCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newTestManager(NewMemoryStore())

	var seen string
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/", func(c *gin.Context) {
		seen = FromContext(c).ID()
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: "forged"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.NotEqual(t, "forged", seen)
	require.NotNil(t, sessionCookie(rec))
	assert.Equal(t, seen, sessionCookie(rec).Value)
}

func TestRenewRotatesID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := NewMemoryStore()
	m := newTestManager(store)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "old", map[string]string{KeyFlash: "x"}, time.Hour))

	var renewedID string
	r := gin.New()
	r.Use(m.Middleware())
	r.POST("/login", func(c *gin.Context) {
		s := m.Renew(c, FromContext(c))
		s.Set(KeyUserID, "9")
		renewedID = s.ID()
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: "old"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.NotEqual(t, "old", renewedID)
	_, err := store.Load(ctx, "old")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	values, err := store.Load(ctx, renewedID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{KeyFlash: "x", KeyUserID: "9"}, values)
}

func TestDestroyDropsValues(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := NewMemoryStore()
	m := newTestManager(store)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "old", map[string]string{KeyUserID: "9"}, time.Hour))

	r := gin.New()
	r.Use(m.Middleware())
	r.POST("/logout", func(c *gin.Context) {
		s := m.Destroy(c, FromContext(c))
		_, ok := s.Get(KeyUserID)
		assert.False(t, ok)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: "old"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	_, err := store.Load(ctx, "old")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	_, err = store.Load(ctx, cookie.Value)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

type unreachableStore struct {
	*MemoryStore
}

func (unreachableStore) Load(context.Context, string) (map[string]string, error) {
	return nil, errors.New("dial tcp 127.0.0.1:6379: connection refused")
}

func TestMiddlewareKeepsCookieWhenStoreUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newTestManager(unreachableStore{NewMemoryStore()})

	called := false
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/", func(c *gin.Context) {
		called = true
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: "live-session"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"session store unavailable"}`, rec.Body.String())
	assert.False(t, called)
	assert.Nil(t, sessionCookie(rec), "the client's session cookie must not be replaced")
}
