package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plume-cms/plume/internal/app"
	"github.com/plume-cms/plume/internal/articles"
	"github.com/plume-cms/plume/internal/audit"
	audithttp "github.com/plume-cms/plume/internal/audit/http"
	"github.com/plume-cms/plume/internal/auth"
	"github.com/plume-cms/plume/internal/comments"
	"github.com/plume-cms/plume/internal/observability"
	"github.com/plume-cms/plume/internal/platform/cache"
	"github.com/plume-cms/plume/internal/rbac"
	"github.com/plume-cms/plume/internal/render"
	"github.com/plume-cms/plume/internal/roles"
	"github.com/plume-cms/plume/internal/shared"
	"github.com/plume-cms/plume/internal/tags"
	"github.com/plume-cms/plume/internal/uploads"
	"github.com/plume-cms/plume/internal/users"
	"github.com/plume-cms/plume/internal/view"
	"github.com/plume-cms/plume/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	poolConfig, err := pgxpool.ParseConfig(cfg.PGDSN)
	if err != nil {
		logger.Error("parse postgres dsn", slog.Any("error", err))
		os.Exit(1)
	}
	poolConfig.MaxConns = cfg.PGMaxConns
	poolConfig.MinConns = cfg.PGMinConns
	poolConfig.MaxConnLifetime = cfg.PGConnMaxLifetime
	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	// Sessions live in Redis, so an unreachable Redis is fatal at boot.
	redisClient, err := cache.New(ctx, cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	rbacService := rbac.NewService(dbpool)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	auditLogger := shared.NewAuditLogger(dbpool)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, rbacService)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)

	htmlPipeline := render.NewPipeline(render.NewGoldmarkRenderer(), render.NewBluemondaySanitizer())

	articleRepo := articles.NewRepository(dbpool)
	articleService := articles.NewService(articleRepo, rbacService, htmlPipeline, auditLogger)

	tagRepo := tags.NewPGRepository(dbpool)
	tagService := tags.NewService(tagRepo, rbacService, auditLogger)

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

	commentRepo := comments.NewPGRepository(dbpool)
	commentService := comments.NewService(logger, commentRepo, articleService, rbacService, auditLogger, &jobs.QueueNotifier{Client: queueClient})

	userRepo := users.NewPGRepository(dbpool)
	userService := users.NewService(userRepo, rbacService, sessionManager, rbacService, auditLogger)

	roleService := roles.NewService(rbacService, rbacService, auditLogger)

	auditRepo := audit.NewPGRepository(dbpool)
	auditService := audit.NewService(auditRepo)

	uploadStore, err := uploads.NewDiskStore(cfg.UploadDir)
	if err != nil {
		logger.Error("init upload store", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		RBACMiddleware: rbacMiddleware,

		AuthHandler:        authHandler,
		PublicArticles:     articles.NewPublicHandler(logger, articleService, commentService, tagService, templates, csrfManager, sessionManager),
		PublicComments:     comments.NewPublicHandler(logger, commentService),
		AdminArticles:      articles.NewAdminHandler(logger, articleService, tagService, templates, csrfManager, sessionManager, rbacMiddleware),
		TagsHandler:        tags.NewHandler(logger, tagService, templates, csrfManager, sessionManager, rbacMiddleware),
		CommentsAdmin:      comments.NewAdminHandler(logger, commentService, templates, csrfManager, sessionManager, rbacMiddleware),
		UsersHandler:       users.NewHandler(logger, userService, templates, csrfManager, sessionManager, rbacMiddleware),
		RolesHandler:       roles.NewHandler(logger, roleService, templates, csrfManager, sessionManager, rbacMiddleware),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService, templates, csrfManager, sessionManager, rbacMiddleware),
		AuditHandler:       audithttp.NewHandler(logger, auditService, templates, audit.NewCSVExporter()),
		UploadsHandler:     uploads.NewHandler(logger, uploadStore, rbacMiddleware, cfg.UploadMaxBytes),
		JobsHandler:        jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
