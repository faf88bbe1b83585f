package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/userdesk/internal/app"
	"github.com/odyssey-erp/userdesk/internal/audit"
	"github.com/odyssey-erp/userdesk/internal/auth"
	"github.com/odyssey-erp/userdesk/internal/directory"
	"github.com/odyssey-erp/userdesk/internal/observability"
	"github.com/odyssey-erp/userdesk/internal/platform/cache"
	"github.com/odyssey-erp/userdesk/internal/platform/db"
	"github.com/odyssey-erp/userdesk/internal/shared"
	"github.com/odyssey-erp/userdesk/internal/users"
	"github.com/odyssey-erp/userdesk/internal/view"
	"github.com/odyssey-erp/userdesk/jobs"
)

const sessionCookie = "userdesk_session"

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, sessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	sessionManager.Subscribe(metrics)
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("load templates", slog.Any("error", err))
		os.Exit(1)
	}

	api := directory.NewClient(directory.Options{
		BaseURL:  cfg.APIBaseURL,
		APIKey:   cfg.APIKey,
		Timeout:  cfg.APITimeout,
		Observer: metrics,
	})

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	var (
		recorder     audit.Recorder = audit.NopRecorder{}
		auditHandler                = audit.NewHandler(nil, logger)
		jobHandler                  = jobs.NewHandler(nil, logger)
	)
	if cfg.AuditEnabled() {
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect database", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()

		repo := audit.NewRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Error("audit schema", slog.Any("error", err))
			os.Exit(1)
		}

		jobClient := jobs.NewClient(redisOpts)
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()

		recorder = jobs.NewAuditRecorder(jobClient)
		auditHandler = audit.NewHandler(repo, logger)
		jobHandler = jobs.NewHandler(inspector, logger)
		sessionManager.Subscribe(audit.NewSessionListener(recorder, logger))
	}

	listings := users.NewListingStore(redisClient, sessionManager.TTL())
	usersService := users.NewService(api, listings, recorder, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthHandler:    auth.NewHandler(logger, api, usersService, templates, csrfManager),
		UsersHandler:   users.NewHandler(logger, usersService, templates, csrfManager),
		AuditHandler:   auditHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server starting", slog.String("addr", cfg.AppAddr), slog.String("api", cfg.APIBaseURL), slog.Bool("audit", cfg.AuditEnabled()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
