package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const contextKey = "session"

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// Manager loads the session for every request and persists it afterwards.
type Manager struct {
	store  Store
	cookie CookieConfig
	ttl    time.Duration
	logger zerolog.Logger
}

// NewManager builds a Manager. ttl bounds how long a stored session lives.
func NewManager(store Store, cookie CookieConfig, ttl time.Duration, logger zerolog.Logger) *Manager {
	return &Manager{store: store, cookie: cookie, ttl: ttl, logger: logger}
}

// Store exposes the backing store.
func (m *Manager) Store() Store { return m.store }

// Middleware attaches the client's session to the context and saves it once
// the rest of the chain has run. A store failure aborts with 503 and leaves
// the client's cookie alone.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := m.load(c)
		if err != nil {
			m.logger.Error().Err(err).Msg("session load failed")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
			return
		}
		c.Set(contextKey, s)
		c.Next()

		s = FromContext(c)
		if s == nil || !s.Modified() {
			return
		}
		if err := m.store.Save(c.Request.Context(), s.ID(), s.values, m.ttl); err != nil {
			m.logger.Error().Err(err).Msg("session save failed")
			return
		}
		s.markSaved()
	}
}

// load returns the session named by the cookie, or a new one when there is
// no cookie or the store does not know it.
func (m *Manager) load(c *gin.Context) (*Session, error) {
	if id, err := c.Cookie(m.cookie.Name); err == nil && id != "" {
		values, err := m.store.Load(c.Request.Context(), id)
		switch {
		case err == nil:
			return New(id, values), nil
		case !errors.Is(err, ErrSessionNotFound):
			return nil, err
		}
	}
	s := New(uuid.NewString(), nil)
	m.setCookie(c, s.ID())
	return s, nil
}

// Renew moves the session's values to a new id and drops the old record.
func (m *Manager) Renew(c *gin.Context, s *Session) *Session {
	if err := m.store.Delete(c.Request.Context(), s.ID()); err != nil {
		m.logger.Error().Err(err).Msg("session delete failed")
	}
	renewed := New(uuid.NewString(), s.values)
	renewed.modified = true
	m.setCookie(c, renewed.ID())
	c.Set(contextKey, renewed)
	return renewed
}

// Destroy discards all session state and starts an empty session.
func (m *Manager) Destroy(c *gin.Context, s *Session) *Session {
	s.Clear()
	return m.Renew(c, s)
}

func (m *Manager) setCookie(c *gin.Context, id string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookie.Name, id, int(m.ttl.Seconds()), "/", "", m.cookie.Secure, true)
}

// FromContext returns the session attached by Manager, or nil.
func FromContext(c *gin.Context) *Session {
	if val, ok := c.Get(contextKey); ok {
		if s, ok := val.(*Session); ok {
			return s
		}
	}
	return nil
}
