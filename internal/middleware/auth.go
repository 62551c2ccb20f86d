package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"messenger/internal/liveness"
	"messenger/internal/models"
	"messenger/internal/repositories"
	"messenger/internal/session"
)

// Context keys set by LoadIdentity.
const (
	UserIDKey = "userID"
	UserKey   = "user"
)

// UserGetter resolves the user a session points at.
type UserGetter interface {
	GetByID(ctx context.Context, id int) (models.User, error)
}

// LoadIdentity resolves the session's user_id into the authenticated user.
// A session pointing at a deleted or unparseable user is treated as anonymous
// and its user_id dropped.
func LoadIdentity(users UserGetter, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := session.FromContext(c)
		if s == nil {
			c.Next()
			return
		}
		raw, ok := s.Get(session.KeyUserID)
		if !ok {
			c.Next()
			return
		}

		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			s.Delete(session.KeyUserID)
			c.Next()
			return
		}

		user, err := users.GetByID(c.Request.Context(), id)
		switch {
		case errors.Is(err, repositories.ErrUserNotFound):
			s.Delete(session.KeyUserID)
		case err != nil:
			logger.Error().Err(err).Int("user_id", id).Msg("load session user")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "An error occurred"})
			return
		default:
			SetIdentity(c, user)
		}
		c.Next()
	}
}

// SetIdentity marks the request as authenticated as user.
func SetIdentity(c *gin.Context, user models.User) {
	c.Set(UserIDKey, user.ID)
	c.Set(UserKey, user)
}

// ClearIdentity marks the request as anonymous.
func ClearIdentity(c *gin.Context) {
	c.Set(UserIDKey, 0)
	c.Set(UserKey, models.User{})
}

// CurrentUser returns the authenticated user, if any.
func CurrentUser(c *gin.Context) (models.User, bool) {
	if val, ok := c.Get(UserKey); ok {
		if user, ok := val.(models.User); ok && user.ID != 0 {
			return user, true
		}
	}
	return models.User{}, false
}

// RequireLogin rejects anonymous requests: background callers get a 401,
// page requests are sent to the login page.
func RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetInt(UserIDKey) != 0 {
			c.Next()
			return
		}

		if liveness.ChannelOf(c.Request) == liveness.Background {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Redirect(http.StatusFound, "/login?next="+url.QueryEscape(c.Request.URL.RequestURI()))
		c.Abort()
	}
}
