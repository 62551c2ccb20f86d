package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger/internal/accounts"
	"messenger/internal/liveness"
	"messenger/internal/messaging"
	"messenger/internal/mocks"
	"messenger/internal/models"
	"messenger/internal/repositories"
	"messenger/internal/session"
	"messenger/internal/telemetry"
	"messenger/internal/threads"
)

func setupMessageRouter(handler *MessageHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.GET("/api/messages/latest", handler.Latest)
	r.GET("/api/users/search", handler.SearchUsers)
	r.POST("/api/messages/send", handler.Send)
	return r
}

func newMessageHandler(users *mocks.UserRepositoryMock, msgs *mocks.MessageRepositoryMock, pub *mocks.PublisherMock) *MessageHandler {
	audit := telemetry.NewAuditEmitter(pub, "audit.messenger", "messenger", "test", zerolog.Nop())
	return NewMessageHandler(
		threads.NewAssembler(msgs, time.UTC, 20),
		messaging.NewService(users, msgs, zerolog.Nop()),
		accounts.NewService(users, msgs, zerolog.Nop()),
		audit,
		zerolog.Nop(),
	)
}

func postForm(router *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestLatestSuccess(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	msgs := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(newMessageHandler(users, msgs, new(mocks.PublisherMock)))

	root := models.Message{ID: 4, SenderID: 1, RecipientID: 2, Content: "hi", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		SenderFirstName: "Alice", SenderLastName: "Smith", RecipientFirstName: "Bob", RecipientLastName: "Jones"}
	msgs.On("RootsFor", mock.Anything, 1, 20).Return([]models.Message{root}, nil).Once()
	msgs.On("MembersOf", mock.Anything, []int{4}).Return([]models.Message{root}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/messages/latest", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"threads":[{"thread_id":4,"messages":[{
		"id":4,"sender_name":"Smith, Alice","recipient_name":"Jones, Bob",
		"content":"hi","timestamp":"2024-01-01T00:00:00Z","is_sender":true}]}]}`, rec.Body.String())
	msgs.AssertExpectations(t)
}

func TestLatestRepoError(t *testing.T) {
	msgs := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(newMessageHandler(new(mocks.UserRepositoryMock), msgs, new(mocks.PublisherMock)))

	msgs.On("RootsFor", mock.Anything, 1, 20).Return(nil, assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/messages/latest", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"An error occurred"}`, rec.Body.String())
}

func TestSearchUsers(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router := setupMessageRouter(newMessageHandler(users, new(mocks.MessageRepositoryMock), new(mocks.PublisherMock)))

	users.On("Search", mock.Anything, "bo", 1, 5).
		Return([]models.User{{ID: 2, Username: "bob", FirstName: "Bob", LastName: "Jones", PasswordHash: "secret"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/users/search?username=bo", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"users":[{"username":"bob","first_name":"Bob","last_name":"Jones"}]}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/users/search?username=b", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"users":[]}`, rec.Body.String())
	users.AssertExpectations(t)
}

func TestSendSuccessEmitsAudit(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	msgs := new(mocks.MessageRepositoryMock)
	pub := new(mocks.PublisherMock)
	router := setupMessageRouter(newMessageHandler(users, msgs, pub))

	users.On("GetByUsername", mock.Anything, "bob").Return(models.User{ID: 2, Username: "bob"}, nil).Once()
	msgs.On("Insert", mock.Anything, 1, 2, "hello", (*int)(nil)).Return(models.Message{ID: 9, SenderID: 1, RecipientID: 2}, nil).Once()
	pub.On("Publish", mock.Anything, "audit.messenger", mock.Anything).Return(nil).Once()

	rec := postForm(router, "/api/messages/send", url.Values{"recipient": {"bob"}, "content": {"hello"}})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	envs := pub.Envelopes()
	require.Len(t, envs, 1)
	assert.Equal(t, telemetry.EventMessageSent, envs[0].EventType)
	assert.Equal(t, "9", envs[0].Payload.Attrs["message_id"])
}

func TestSendErrors(t *testing.T) {
	root := models.Message{ID: 5, SenderID: 2, RecipientID: 1}

	tests := []struct {
		name   string
		form   url.Values
		setup  func(users *mocks.UserRepositoryMock, msgs *mocks.MessageRepositoryMock)
		status int
		body   string
	}{
		{
			name:   "missing recipient",
			form:   url.Values{"content": {"x"}},
			status: http.StatusBadRequest,
			body:   `{"error":"Recipient is required","field":"recipient"}`,
		},
		{
			name:   "too long",
			form:   url.Values{"recipient": {"bob"}, "content": {strings.Repeat("a", 1025)}},
			status: http.StatusBadRequest,
			body:   `{"error":"Message content exceeds maximum length of 1024 characters","field":"content"}`,
		},
		{
			name: "unknown recipient",
			form: url.Values{"recipient": {"ghost"}, "content": {"x"}},
			setup: func(users *mocks.UserRepositoryMock, _ *mocks.MessageRepositoryMock) {
				users.On("GetByUsername", mock.Anything, "ghost").Return(nil, repositories.ErrUserNotFound)
			},
			status: http.StatusBadRequest,
			body:   `{"error":"Recipient not found","field":"recipient"}`,
		},
		{
			name: "reply target missing",
			form: url.Values{"recipient": {"bob"}, "content": {"x"}, "reply_to": {"77"}},
			setup: func(users *mocks.UserRepositoryMock, msgs *mocks.MessageRepositoryMock) {
				users.On("GetByUsername", mock.Anything, "bob").Return(models.User{ID: 2, Username: "bob"}, nil)
				msgs.On("GetByID", mock.Anything, 77).Return(nil, repositories.ErrMessageNotFound)
			},
			status: http.StatusNotFound,
			body:   `{"error":"Message not found","field":"recipient"}`,
		},
		{
			name: "reply to wrong person",
			form: url.Values{"recipient": {"carol"}, "content": {"x"}, "reply_to": {"5"}},
			setup: func(users *mocks.UserRepositoryMock, msgs *mocks.MessageRepositoryMock) {
				users.On("GetByUsername", mock.Anything, "carol").Return(models.User{ID: 3, Username: "carol"}, nil)
				msgs.On("GetByID", mock.Anything, 5).Return(root, nil)
			},
			status: http.StatusBadRequest,
			body:   `{"error":"Invalid recipient for this reply","field":"recipient"}`,
		},
		{
			name: "store failure",
			form: url.Values{"recipient": {"bob"}, "content": {"x"}},
			setup: func(users *mocks.UserRepositoryMock, msgs *mocks.MessageRepositoryMock) {
				users.On("GetByUsername", mock.Anything, "bob").Return(models.User{ID: 2, Username: "bob"}, nil)
				msgs.On("Insert", mock.Anything, 1, 2, "x", (*int)(nil)).Return(nil, assert.AnError)
			},
			status: http.StatusInternalServerError,
			body:   `{"error":"An error occurred","field":"content"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(mocks.UserRepositoryMock)
			msgs := new(mocks.MessageRepositoryMock)
			if tt.setup != nil {
				tt.setup(users, msgs)
			}
			pub := new(mocks.PublisherMock)
			router := setupMessageRouter(newMessageHandler(users, msgs, pub))

			rec := postForm(router, "/api/messages/send", tt.form)

			require.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
			pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestHeartbeatStampsSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2024, 2, 2, 8, 0, 0, 0, time.UTC)
	s := session.New("sid", map[string]string{session.KeyUserID: "1"})

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("session", s)
		c.Set("userID", 1)
		c.Next()
	})
	r.POST("/api/activity", NewActivityHandler().WithClock(func() time.Time { return now }).Heartbeat)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/activity", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	last, ok, err := liveness.LastActivity(s)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, last.Equal(now))
}

func TestHealthDegraded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", Health(
		PingFunc(func(context.Context) error { return nil }),
		PingFunc(func(context.Context) error { return assert.AnError }),
	))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["database"])
}

func TestSafeNext(t *testing.T) {
	assert.Equal(t, "/messages", safeNext("/messages"))
	assert.Equal(t, "", safeNext("//evil.example"))
	assert.Equal(t, "", safeNext("https://evil.example"))
	assert.Equal(t, "", safeNext(`/\evil.example`))
}
