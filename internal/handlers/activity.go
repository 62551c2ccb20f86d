package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"messenger/internal/liveness"
	"messenger/internal/session"
)

// ActivityHandler serves the client heartbeat.
type ActivityHandler struct {
	now func() time.Time
}

func NewActivityHandler() *ActivityHandler {
	return &ActivityHandler{now: time.Now}
}

// Heartbeat records user activity reported by the page. It runs behind the
// idle timeout, so it refreshes a live session but cannot revive an expired one.
func (h *ActivityHandler) Heartbeat(c *gin.Context) {
	if s := session.FromContext(c); s != nil {
		liveness.Touch(s, h.now())
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// WithClock replaces the time source.
func (h *ActivityHandler) WithClock(now func() time.Time) *ActivityHandler {
	h.now = now
	return h
}
