package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"messenger/internal/liveness"
	"messenger/internal/observability"
	"messenger/internal/session"
	"messenger/internal/telemetry"
)

// StatusSessionExpired is returned to background callers whose session timed out.
const StatusSessionExpired = 440

const ExpiredNotice = "Your session has expired. Please log in again."

// SessionTimeout ends authenticated sessions that have been idle longer than
// the guard's timeout. It must run after LoadIdentity and before RequireLogin.
type SessionTimeout struct {
	guard    *liveness.Guard
	sessions *session.Manager
	audit    *telemetry.AuditEmitter
	logger   zerolog.Logger
	now      func() time.Time
}

func NewSessionTimeout(guard *liveness.Guard, sessions *session.Manager, audit *telemetry.AuditEmitter, logger zerolog.Logger) *SessionTimeout {
	return &SessionTimeout{
		guard:    guard,
		sessions: sessions,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (m *SessionTimeout) WithClock(now func() time.Time) *SessionTimeout {
	m.now = now
	return m
}

func (m *SessionTimeout) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := session.FromContext(c)
		if s == nil {
			c.Next()
			return
		}

		userID := c.GetInt(UserIDKey)
		ch := liveness.ChannelOf(c.Request)
		outcome := m.guard.Evaluate(userID != 0, s, ch, m.now())
		if outcome != liveness.Expired {
			c.Next()
			return
		}

		fresh := m.sessions.Destroy(c, s)
		fresh.Set(session.KeyFlash, ExpiredNotice)
		ClearIdentity(c)

		observability.IncSessionExpired(ch.String())
		m.logger.Info().
			Int("user_id", userID).
			Str("channel", ch.String()).
			Str("request_id", RequestIDFromContext(c)).
			Msg("session expired")
		m.audit.Emit(c.Request.Context(), telemetry.Event{
			Type:      telemetry.EventSessionExpiry,
			Text:      "session expired after inactivity",
			RequestID: RequestIDFromContext(c),
			UserID:    userID,
			Attrs:     map[string]string{"channel": ch.String(), "path": c.Request.URL.Path},
		})

		if ch == liveness.Background {
			c.AbortWithStatusJSON(StatusSessionExpired, gin.H{"session_expired": true})
			return
		}
		c.Redirect(http.StatusFound, "/login")
		c.Abort()
	}
}
