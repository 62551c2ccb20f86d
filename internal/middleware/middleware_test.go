package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger/internal/liveness"
	"messenger/internal/mocks"
	"messenger/internal/models"
	"messenger/internal/repositories"
	"messenger/internal/session"
	"messenger/internal/telemetry"
)

var now = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	router *gin.Engine
	store  *session.MemoryStore
	users  *mocks.UserRepositoryMock
	audit  *mocks.PublisherMock
}

func setupTimeoutRouter(t *testing.T) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := session.NewMemoryStore()
	users := &mocks.UserRepositoryMock{}
	users.On("GetByID", mock.Anything, 1).Return(models.User{ID: 1, Username: "alice"}, nil).Maybe()
	users.On("GetByID", mock.Anything, 2).Return(nil, repositories.ErrUserNotFound).Maybe()

	pub := &mocks.PublisherMock{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	emitter := telemetry.NewAuditEmitter(pub, "audit.messenger", "messenger", "test", zerolog.Nop())

	manager := session.NewManager(store, session.CookieConfig{Name: "sessionid"}, time.Hour, zerolog.Nop())
	timeout := NewSessionTimeout(liveness.NewGuard(30*time.Minute), manager, emitter, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	r := gin.New()
	r.Use(RequestID(), manager.Middleware(), LoadIdentity(users, zerolog.Nop()))

	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"user_id": c.GetInt(UserIDKey)}) }
	guarded := r.Group("/", timeout.Handler(), RequireLogin())
	guarded.GET("/messages", ok)
	guarded.GET("/api/messages/latest", ok)

	return testEnv{router: r, store: store, users: users, audit: pub}
}

func seed(t *testing.T, store *session.MemoryStore, values map[string]string) {
	t.Helper()
	require.NoError(t, store.Save(context.Background(), "sid", values, time.Hour))
}

func do(env testEnv, req *http.Request) *httptest.ResponseRecorder {
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: "sid"})
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func cookieValue(rec *httptest.ResponseRecorder) string {
	value := ""
	for _, c := range rec.Result().Cookies() {
		if c.Name == "sessionid" {
			value = c.Value
		}
	}
	return value
}

func stamp(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func TestBackgroundRequestDoesNotRefreshActivity(t *testing.T) {
	env := setupTimeoutRouter(t)
	last := now.Add(-10 * time.Minute)
	seed(t, env.store, map[string]string{session.KeyUserID: "1", session.KeyLastActivity: stamp(last)})

	rec := do(env, httptest.NewRequest(http.MethodGet, "/api/messages/latest", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	values, err := env.store.Load(context.Background(), "sid")
	require.NoError(t, err)
	assert.Equal(t, stamp(last), values[session.KeyLastActivity])
}

func TestXHRPageRequestDoesNotRefreshActivity(t *testing.T) {
	env := setupTimeoutRouter(t)
	last := now.Add(-10 * time.Minute)
	seed(t, env.store, map[string]string{session.KeyUserID: "1", session.KeyLastActivity: stamp(last)})

	req := httptest.NewRequest(http.MethodGet, "/messages", nil)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	rec := do(env, req)
	require.Equal(t, http.StatusOK, rec.Code)

	values, err := env.store.Load(context.Background(), "sid")
	require.NoError(t, err)
	assert.Equal(t, stamp(last), values[session.KeyLastActivity])
}

func TestInteractiveRequestRefreshesActivity(t *testing.T) {
	env := setupTimeoutRouter(t)
	seed(t, env.store, map[string]string{session.KeyUserID: "1", session.KeyLastActivity: stamp(now.Add(-29 * time.Minute))})

	rec := do(env, httptest.NewRequest(http.MethodGet, "/messages", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	values, err := env.store.Load(context.Background(), "sid")
	require.NoError(t, err)
	assert.Equal(t, stamp(now), values[session.KeyLastActivity])
}

func TestExpiredBackgroundRequestGets440(t *testing.T) {
	env := setupTimeoutRouter(t)
	seed(t, env.store, map[string]string{session.KeyUserID: "1", session.KeyLastActivity: stamp(now.Add(-31 * time.Minute))})

	rec := do(env, httptest.NewRequest(http.MethodGet, "/api/messages/latest", nil))
	require.Equal(t, StatusSessionExpired, rec.Code)
	assert.JSONEq(t, `{"session_expired":true}`, rec.Body.String())

	_, err := env.store.Load(context.Background(), "sid")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	newID := cookieValue(rec)
	require.NotEmpty(t, newID)
	require.NotEqual(t, "sid", newID)
	values, err := env.store.Load(context.Background(), newID)
	require.NoError(t, err)
	assert.Equal(t, ExpiredNotice, values[session.KeyFlash])
	assert.NotContains(t, values, session.KeyUserID)

	envs := env.audit.Envelopes()
	require.Len(t, envs, 1)
	assert.Equal(t, telemetry.EventSessionExpiry, envs[0].EventType)
}

func TestExpiredInteractiveRequestRedirectsToLogin(t *testing.T) {
	env := setupTimeoutRouter(t)
	seed(t, env.store, map[string]string{session.KeyUserID: "1", session.KeyLastActivity: stamp(now.Add(-2 * time.Hour))})

	rec := do(env, httptest.NewRequest(http.MethodGet, "/messages", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestRequireLoginAnonymous(t *testing.T) {
	env := setupTimeoutRouter(t)

	rec := do(env, httptest.NewRequest(http.MethodGet, "/api/messages/latest", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "authentication required", body["error"])

	rec = do(env, httptest.NewRequest(http.MethodGet, "/messages", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?next=%2Fmessages", rec.Header().Get("Location"))
}

func TestLoadIdentityDropsDeletedUser(t *testing.T) {
	env := setupTimeoutRouter(t)
	seed(t, env.store, map[string]string{session.KeyUserID: "2", session.KeyLastActivity: stamp(now)})

	rec := do(env, httptest.NewRequest(http.MethodGet, "/api/messages/latest", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	values, err := env.store.Load(context.Background(), "sid")
	require.NoError(t, err)
	assert.NotContains(t, values, session.KeyUserID)
}

func TestRequestIDPropagation(t *testing.T) {
	env := setupTimeoutRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/messages", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rec := do(env, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-Id"))

	rec = do(env, httptest.NewRequest(http.MethodGet, "/messages", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
