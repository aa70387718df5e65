package articles

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/plume-cms/plume/internal/shared"
	"github.com/plume-cms/plume/internal/view"
)

// CommentRef is the approved comment projection shown on article pages.
type CommentRef struct {
	ID         int64
	AuthorName string
	Body       string
	CreatedAt  time.Time
}

// CommentSource lists approved comments for public article pages.
type CommentSource interface {
	ApprovedForArticle(ctx context.Context, articleID int64) ([]CommentRef, error)
}

// PublicHandler serves the reader-facing site. Everything it returns has
// passed the published-only filter.
type PublicHandler struct {
	logger    *slog.Logger
	service   *Service
	comments  CommentSource
	tags      TagSource
	templates *view.Engine
	csrf      *shared.CSRFManager
	sessions  *shared.SessionManager
}

// NewPublicHandler builds PublicHandler instance.
func NewPublicHandler(logger *slog.Logger, service *Service, comments CommentSource, tags TagSource, templates *view.Engine, csrf *shared.CSRFManager, sessions *shared.SessionManager) *PublicHandler {
	return &PublicHandler{logger: logger, service: service, comments: comments, tags: tags, templates: templates, csrf: csrf, sessions: sessions}
}

// MountRoutes registers the public routes at the site root.
func (h *PublicHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.Home)
	r.Get("/articles", h.Index)
	r.Get("/articles/{slug}", h.Show)
	r.Get("/tags/{slug}", h.ByTag)
}

func (h *PublicHandler) Home(w http.ResponseWriter, r *http.Request) {
	items, _, err := h.service.ListPublished(r.Context(), ListFilters{PerPage: 5})
	if err != nil {
		h.logger.Error("list published failed", slog.Any("error", err))
		http.Error(w, "Failed to load articles", http.StatusInternalServerError)
		return
	}

	h.render(w, r, "pages/home.html", "Home", map[string]any{
		"Articles": items,
		"Tags":     h.tagCloud(r.Context()),
	}, http.StatusOK)
}

func (h *PublicHandler) Index(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	filters := ListFilters{
		TagSlug: r.URL.Query().Get("tag"),
		Search:  r.URL.Query().Get("q"),
		Page:    page,
	}

	items, pagination, err := h.service.ListPublished(r.Context(), filters)
	if err != nil {
		h.logger.Error("list published failed", slog.Any("error", err))
		http.Error(w, "Failed to load articles", http.StatusInternalServerError)
		return
	}

	h.render(w, r, "pages/articles/index.html", "Articles", map[string]any{
		"Articles":   items,
		"Filters":    filters,
		"Pagination": pagination,
		"Tags":       h.tagCloud(r.Context()),
	}, http.StatusOK)
}

func (h *PublicHandler) Show(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	article, err := h.service.PublishedBySlug(r.Context(), slug)
	if err != nil {
		if err == shared.ErrNotFound {
			h.notFound(w, r)
			return
		}
		h.logger.Error("load article failed", slog.Any("error", err), slog.String("slug", slug))
		http.Error(w, "Failed to load article", http.StatusInternalServerError)
		return
	}

	comments, err := h.comments.ApprovedForArticle(r.Context(), article.ID)
	if err != nil {
		h.logger.Error("list comments failed", slog.Any("error", err), slog.Int64("article_id", article.ID))
		comments = nil
	}

	h.render(w, r, "pages/articles/show.html", article.Title, map[string]any{
		"Article":  article,
		"Comments": comments,
	}, http.StatusOK)
}

func (h *PublicHandler) ByTag(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	var tag *TagRef
	for _, ref := range h.tagCloud(r.Context()) {
		if ref.Slug == slug {
			t := ref
			tag = &t
			break
		}
	}
	if tag == nil {
		h.notFound(w, r)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	items, pagination, err := h.service.ListPublished(r.Context(), ListFilters{TagSlug: slug, Page: page})
	if err != nil {
		h.logger.Error("list published failed", slog.Any("error", err), slog.String("tag", slug))
		http.Error(w, "Failed to load articles", http.StatusInternalServerError)
		return
	}

	h.render(w, r, "pages/tags/show.html", tag.Name, map[string]any{
		"Tag":        tag,
		"Articles":   items,
		"Pagination": pagination,
	}, http.StatusOK)
}

func (h *PublicHandler) notFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/404.html", "Not Found", map[string]any{}, http.StatusNotFound)
}

func (h *PublicHandler) tagCloud(ctx context.Context) []TagRef {
	refs, err := h.tags.ListRefs(ctx)
	if err != nil {
		h.logger.Error("list tags failed", slog.Any("error", err))
		return nil
	}
	return refs
}

func (h *PublicHandler) render(w http.ResponseWriter, r *http.Request, template, title string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	var claims *shared.SessionClaims
	if sess != nil {
		flash = sess.PopFlash()
		claims = sess.Claims()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		CurrentUser: claims,
		Data:        data,
	}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err), slog.String("template", template))
	}
}
