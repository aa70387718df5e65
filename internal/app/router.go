package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/plume-cms/plume/internal/articles"
	audithttp "github.com/plume-cms/plume/internal/audit/http"
	auth "github.com/plume-cms/plume/internal/auth"
	"github.com/plume-cms/plume/internal/comments"
	"github.com/plume-cms/plume/internal/observability"
	"github.com/plume-cms/plume/internal/rbac"
	"github.com/plume-cms/plume/internal/roles"
	"github.com/plume-cms/plume/internal/shared"
	"github.com/plume-cms/plume/internal/tags"
	"github.com/plume-cms/plume/internal/uploads"
	"github.com/plume-cms/plume/internal/users"
	"github.com/plume-cms/plume/jobs"
	"github.com/plume-cms/plume/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	RBACMiddleware rbac.Middleware

	AuthHandler        *auth.Handler
	PublicArticles     *articles.PublicHandler
	PublicComments     *comments.PublicHandler
	AdminArticles      *articles.AdminHandler
	TagsHandler        *tags.Handler
	CommentsAdmin      *comments.AdminHandler
	UsersHandler       *users.Handler
	RolesHandler       *roles.Handler
	PermissionsHandler *rbac.PermissionsHandler
	AuditHandler       *audithttp.Handler
	UploadsHandler     *uploads.Handler
	JobsHandler        *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Plume defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Public blog surface at the site root. Readers never authenticate,
	// so these routes sit outside the admin guard entirely.
	params.PublicArticles.MountRoutes(r)
	params.PublicComments.MountRoutes(r)
	params.AuthHandler.MountRoutes(r)
	r.Route("/media", params.UploadsHandler.MountMediaRoutes)

	// Admin area. Authentication is checked once at the subtree root;
	// each section mounts its own permission guard, so a contributor
	// with article_create alone still reaches the dashboard.
	r.Route("/admin", func(r chi.Router) {
		r.Use(params.RBACMiddleware.RequireAuthenticated())
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/admin/articles", http.StatusSeeOther)
		})
		r.Route("/articles", params.AdminArticles.MountRoutes)
		r.Route("/tags", params.TagsHandler.MountRoutes)
		r.Route("/comments", params.CommentsAdmin.MountRoutes)
		r.Route("/users", params.UsersHandler.MountRoutes)
		r.Route("/roles", params.RolesHandler.MountRoutes)
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Group(func(r chi.Router) {
				r.Use(params.RBACMiddleware.RequireAny(shared.PermAdminAccess))
				params.AuditHandler.MountRoutes(r)
			})
		}
		r.Route("/uploads", params.UploadsHandler.MountAdminRoutes)
		if params.JobsHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Use(params.RBACMiddleware.RequireAny(shared.PermAdminAccess))
				params.JobsHandler.MountRoutes(r)
			})
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		// Static file server with Cache-Control headers
		// Note: Static files are served without rate limiting (no session/CSRF needed)
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
// Static assets (JS, CSS, fonts, images) are cached for 1 hour in browser.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Set Cache-Control header for static assets
		// public: can be cached by browsers and CDNs
		// max-age=3600: cache for 1 hour (3600 seconds)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
