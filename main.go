package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"messenger/internal/accounts"
	"messenger/internal/config"
	"messenger/internal/db"
	"messenger/internal/logging"
	"messenger/internal/messaging"
	"messenger/internal/observability"
	"messenger/internal/rabbitmq"
	"messenger/internal/repositories"
	"messenger/internal/server"
	"messenger/internal/session"
	"messenger/internal/telemetry"
	"messenger/internal/threads"
	"messenger/internal/web"
)

var rootCmd = &cobra.Command{
	Use:           "messenger",
	Short:         "Threaded direct messaging web app",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run migrations and start the HTTP server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE:  runMigrate,
}

var deleteUserCmd = &cobra.Command{
	Use:   "delete-user <username>",
	Short: "Delete a user together with every message they sent or received",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteUser,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, deleteUserCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logging.New(cfg.Env, cfg.LogLevel), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName:  "messenger",
		Environment:  cfg.Env,
		Exporter:     cfg.TracingExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	database, err := db.Connect(cfg.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	store, closeStore, err := sessionStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AuditExchange, logger)
	defer publisher.Close()
	logger.Info().
		Str("mode", rabbitmq.PublisherMode(publisher)).
		Str("reason", rabbitmq.PublisherNoopReason(publisher)).
		Msg("audit publisher ready")
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, "messenger", cfg.Env, logger)

	templates, err := web.Templates()
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}

	userRepo := repositories.NewUserRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	accountService := accounts.NewService(userRepo, messageRepo, logger)

	router := server.NewRouter(server.Deps{
		Logger:      logger,
		Templates:   templates,
		Sessions:    session.NewManager(store, session.CookieConfig{Name: cfg.SessionCookieName, Secure: cfg.SessionCookieSecure}, cfg.SessionTTL(), logger),
		Users:       userRepo,
		Accounts:    accountService,
		Search:      accountService,
		Threads:     threads.NewAssembler(messageRepo, cfg.Location(), cfg.ThreadWindow),
		Messages:    messaging.NewService(userRepo, messageRepo, logger),
		Audit:       audit,
		Database:    database,
		IdleTimeout: cfg.IdleTimeout(),
		DebugRoutes: cfg.DebugRoutes,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Dur("idle_timeout", cfg.IdleTimeout()).
			Msg("starting messenger")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// sessionStore picks Redis when configured and the in-process store otherwise.
func sessionStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (session.Store, func(), error) {
	if cfg.RedisURL == "" {
		logger.Warn().Msg("REDIS_URL not set, sessions are kept in memory")
		return session.NewMemoryStore(), func() {}, nil
	}
	store, err := session.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info().Msg("connected to Redis")
	return store, func() { _ = store.Close() }, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	database, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer database.Close()

	version, err := db.Migrate(database)
	if err != nil {
		return err
	}
	logger.Info().Uint("schema_version", version).Msg("migrations completed")
	return nil
}

func runDeleteUser(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	database, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer database.Close()

	svc := accounts.NewService(repositories.NewUserRepo(database), repositories.NewMessageRepo(database), logger)
	res, err := svc.Delete(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AuditExchange, logger)
	defer publisher.Close()
	telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, "messenger", cfg.Env, logger).
		Emit(cmd.Context(), telemetry.Event{
			Type:   telemetry.EventAccountPurged,
			Text:   "account deleted from the command line",
			UserID: res.UserID,
			Attrs:  map[string]string{"username": res.Username},
		})

	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s: %d messages removed, %d reply links cleared\n",
		res.Username, res.MessagesDeleted, res.LinksCleared)
	return nil
}
