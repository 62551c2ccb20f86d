// Package server assembles the HTTP router.
package server

import (
	"html/template"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messenger/internal/handlers"
	"messenger/internal/liveness"
	"messenger/internal/middleware"
	"messenger/internal/observability"
	"messenger/internal/session"
	"messenger/internal/telemetry"
	"messenger/internal/web"
)

const serviceName = "messenger"

// Deps is everything the router needs. Services are passed in already built.
type Deps struct {
	Logger      zerolog.Logger
	Templates   *template.Template
	Sessions    *session.Manager
	Users       middleware.UserGetter
	Accounts    handlers.AccountService
	Search      handlers.UserSearcher
	Threads     handlers.ThreadLister
	Messages    handlers.MessageService
	Audit       *telemetry.AuditEmitter
	Database    handlers.Pinger
	IdleTimeout time.Duration
	DebugRoutes bool
	Clock       func() time.Time
}

// NewRouter wires middleware and routes.
//
// Chain: request id, request log, metrics, tracing, recovery, session load,
// identity. Guarded routes then add the idle timeout and require login.
func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.SetHTMLTemplate(d.Templates)

	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(d.Logger),
		observability.HTTPMetricsMiddleware(),
		otelgin.Middleware(serviceName),
		gin.Recovery(),
		d.Sessions.Middleware(),
		middleware.LoadIdentity(d.Users, d.Logger),
	)

	timeout := middleware.NewSessionTimeout(liveness.NewGuard(d.IdleTimeout), d.Sessions, d.Audit, d.Logger)
	authHandler := handlers.NewAuthHandler(d.Accounts, d.Sessions, d.Audit)
	messageHandler := handlers.NewMessageHandler(d.Threads, d.Messages, d.Search, d.Audit, d.Logger)
	activityHandler := handlers.NewActivityHandler()
	if d.Clock != nil {
		timeout.WithClock(d.Clock)
		authHandler.WithClock(d.Clock)
		activityHandler.WithClock(d.Clock)
	}
	guarded := []gin.HandlerFunc{timeout.Handler(), middleware.RequireLogin()}

	router.StaticFS("/static", web.Static())
	router.GET("/healthz", handlers.Health(d.Database, handlers.PingFunc(d.Sessions.Store().Ping)))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/", authHandler.LoginPage)
	router.GET("/login", authHandler.LoginPage)
	router.POST("/login", authHandler.Login)
	router.GET("/registration", authHandler.RegistrationPage)
	router.POST("/registration", authHandler.Register)
	router.POST("/logout", authHandler.Logout)

	pages := router.Group("/", guarded...)
	pages.GET("/messages", messageHandler.MessagesPage)
	pages.GET("/new_message", messageHandler.NewMessagePage)

	guardedAPI := router.Group("/api", guarded...)
	guardedAPI.POST("/activity", activityHandler.Heartbeat)
	guardedAPI.GET("/messages/latest", messageHandler.Latest)
	guardedAPI.GET("/users/search", messageHandler.SearchUsers)
	guardedAPI.POST("/messages/send", messageHandler.Send)

	handlers.RegisterDebugRoutes(router, d.Audit, d.DebugRoutes)

	return router
}
