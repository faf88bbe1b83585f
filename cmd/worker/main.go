package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/userdesk/cmd/worker/cli"
	"github.com/odyssey-erp/userdesk/internal/app"
	"github.com/odyssey-erp/userdesk/internal/audit"
	jobmetrics "github.com/odyssey-erp/userdesk/internal/jobs"
	"github.com/odyssey-erp/userdesk/internal/platform/db"
	"github.com/odyssey-erp/userdesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	if len(os.Args) > 1 {
		if err := runCommand(ctx, cfg, redisOpts, os.Args[1:]); err != nil {
			logger.Error("command failed", slog.String("command", os.Args[1]), slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if !cfg.AuditEnabled() {
		logger.Error("PG_DSN is not set; the worker only serves the audit trail")
		os.Exit(1)
	}

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

	registry := prometheus.NewRegistry()
	auditJob := jobs.NewAuditJob(repo, logger, jobmetrics.NewMetrics(registry))

	pruneTask, err := jobs.NewAuditPruneTask(cfg.AuditRetention)
	if err != nil {
		logger.Error("build prune task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditRecord, Handler: auditJob.HandleRecord},
			{Type: jobs.TaskAuditPrune, Handler: auditJob.HandlePrune},
		},
		Cron: []jobs.CronRegistration{
			{Spec: jobs.AuditPruneSchedule, Task: pruneTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.WorkerMetricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

// runCommand handles "prune [-retention d]" and "stats".
func runCommand(ctx context.Context, cfg *app.Config, redisOpts asynq.RedisClientOpt, args []string) error {
	client := jobs.NewClient(redisOpts)
	defer client.Close()
	inspector := asynq.NewInspector(redisOpts)
	defer inspector.Close()
	helpers := cli.NewJobsCLI(client, inspector)

	switch args[0] {
	case "prune":
		fs := flag.NewFlagSet("prune", flag.ContinueOnError)
		retention := fs.Duration("retention", cfg.AuditRetention, "delete audit events older than this")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		info, err := helpers.Trigger(ctx, jobs.TaskAuditPrune, *retention)
		if err != nil {
			return err
		}
		slog.Default().Info("prune enqueued", slog.String("task_id", info.ID), slog.Duration("retention", *retention))
		return nil
	case "stats":
		stats, err := helpers.InspectQueue()
		if err != nil {
			return err
		}
		return stats.Print(os.Stdout)
	default:
		return errors.New("usage: worker [prune [-retention 720h] | stats]")
	}
}
