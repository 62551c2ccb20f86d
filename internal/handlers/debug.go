package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messenger/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitAudit(c, emitter, telemetry.Event{Type: telemetry.EventAuditTest, Text: "audit test"})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
