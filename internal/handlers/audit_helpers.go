package handlers

import (
	"github.com/gin-gonic/gin"

	"messenger/internal/middleware"
	"messenger/internal/observability"
	"messenger/internal/telemetry"
)

// emitAudit fills the request-scoped fields of ev and publishes it.
func emitAudit(c *gin.Context, emitter *telemetry.AuditEmitter, ev telemetry.Event) {
	ev.RequestID = middleware.RequestIDFromContext(c)
	if ev.UserID == 0 {
		ev.UserID = c.GetInt(middleware.UserIDKey)
	}
	if ev.Attrs == nil {
		ev.Attrs = map[string]string{}
	}
	ev.Attrs["client_ip"] = observability.IPFromRequest(c.Request)
	emitter.Emit(c.Request.Context(), ev)
}
