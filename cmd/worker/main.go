package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plume-cms/plume/internal/app"
	"github.com/plume-cms/plume/internal/articles"
	"github.com/plume-cms/plume/internal/comments"
	"github.com/plume-cms/plume/internal/rbac"
	"github.com/plume-cms/plume/internal/render"
	"github.com/plume-cms/plume/internal/shared"
	"github.com/plume-cms/plume/jobs"
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

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Asynq manages its own Redis connections from these options.
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	queueClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	rbacService := rbac.NewService(pool)
	auditLogger := shared.NewAuditLogger(pool)
	htmlPipeline := render.NewPipeline(render.NewGoldmarkRenderer(), render.NewBluemondaySanitizer())

	articleRepo := articles.NewRepository(pool)
	articleService := articles.NewService(articleRepo, rbacService, htmlPipeline, auditLogger)

	commentRepo := comments.NewPGRepository(pool)
	commentService := comments.NewService(logger, commentRepo, articleService, rbacService, auditLogger, &jobs.QueueNotifier{Client: queueClient})

	mailer := jobs.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	sendEmailJob := jobs.NewSendEmailJob(mailer, logger, nil)

	moderators := &jobs.PGModeratorDirectory{Pool: pool}
	notifyJob := jobs.NewCommentNotifyJob(commentService, moderators, queueClient, logger, nil, cfg.AppBaseURL)

	publishJob := jobs.NewPublishDueJob(articleService, logger, nil)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: sendEmailJob.Handle},
			{Type: jobs.TaskTypeCommentNotify, Handler: notifyJob.Handle},
			{Type: jobs.TaskTypePublishDue, Handler: publishJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "* * * * *", Task: jobs.NewPublishDueTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
