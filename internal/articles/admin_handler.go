package articles

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/plume-cms/plume/internal/rbac"
	"github.com/plume-cms/plume/internal/shared"
	"github.com/plume-cms/plume/internal/view"
)

// TagSource supplies the selectable tags for the article form.
type TagSource interface {
	ListRefs(ctx context.Context) ([]TagRef, error)
}

// AdminHandler serves the authoring area under /admin/articles.
type AdminHandler struct {
	logger    *slog.Logger
	service   *Service
	tags      TagSource
	templates *view.Engine
	csrf      *shared.CSRFManager
	sessions  *shared.SessionManager
	rbac      rbac.Middleware
}

// NewAdminHandler builds AdminHandler instance.
func NewAdminHandler(logger *slog.Logger, service *Service, tags TagSource, templates *view.Engine, csrf *shared.CSRFManager, sessions *shared.SessionManager, rbac rbac.Middleware) *AdminHandler {
	return &AdminHandler{logger: logger, service: service, tags: tags, templates: templates, csrf: csrf, sessions: sessions, rbac: rbac}
}

// MountRoutes registers authoring routes. Lifecycle moves and deletion sit
// behind their own grants; the service re-checks each one against the
// database before acting.
func (h *AdminHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermArticleCreate, shared.PermArticleEditAll))
		r.Get("/", h.List)
		r.Get("/new", h.Form)
		r.Post("/", h.Create)
		r.Get("/{id}/edit", h.EditForm)
		r.Post("/{id}", h.Update)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermArticlePublish))
		r.Post("/{id}/publish", h.Publish)
		r.Post("/{id}/unpublish", h.Unpublish)
		r.Post("/{id}/archive", h.Archive)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermArticleDelete))
		r.Post("/{id}/delete", h.Delete)
	})
}

func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	filters := ListFilters{
		Search:  r.URL.Query().Get("search"),
		Page:    page,
		PerPage: 20,
	}
	if status := Status(r.URL.Query().Get("status")); status.Valid() {
		filters.Status = status
	}

	items, pagination, err := h.service.ListAdmin(r.Context(), actorID, filters)
	if err != nil {
		h.logger.Error("list articles failed", slog.Any("error", err))
		http.Error(w, "Failed to load articles", http.StatusInternalServerError)
		return
	}

	counts, err := h.service.CountByStatus(r.Context())
	if err != nil {
		h.logger.Error("count articles failed", slog.Any("error", err))
		counts = map[Status]int{}
	}

	h.render(w, r, "pages/articles/list.html", map[string]any{
		"Articles":   items,
		"Filters":    filters,
		"Pagination": pagination,
		"Counts":     counts,
		"Statuses":   []Status{StatusDraft, StatusPublished, StatusArchived},
	}, http.StatusOK)
}

func (h *AdminHandler) Form(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/articles/form.html", map[string]any{
		"Errors":  map[string]string{},
		"Article": nil,
		"Tags":    h.tagOptions(r.Context()),
	}, http.StatusOK)
}

func (h *AdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	in := formInput(r)
	created, err := h.service.Create(r.Context(), actorID, in)
	if err != nil {
		h.logger.Error("create article failed", slog.Any("error", err))
		h.render(w, r, "pages/articles/form.html", map[string]any{
			"Errors":  map[string]string{"general": shared.UserSafeMessage(err)},
			"Article": submittedArticle(0, in),
			"Tags":    h.tagOptions(r.Context()),
		}, http.StatusBadRequest)
		return
	}

	h.redirectWithFlash(w, r, "/admin/articles/"+strconv.FormatInt(created.ID, 10)+"/edit", "success", "Draft saved")
}

func (h *AdminHandler) EditForm(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid article ID", http.StatusBadRequest)
		return
	}

	article, err := h.service.GetForEdit(r.Context(), actorID, id)
	if err != nil {
		h.respondLoadError(w, r, err, id)
		return
	}

	h.render(w, r, "pages/articles/form.html", map[string]any{
		"Errors":  map[string]string{},
		"Article": article,
		"Tags":    h.tagOptions(r.Context()),
	}, http.StatusOK)
}

func (h *AdminHandler) Update(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid article ID", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	in := formInput(r)
	if _, err := h.service.Update(r.Context(), actorID, id, in); err != nil {
		h.logger.Error("update article failed", slog.Any("error", err), slog.Int64("id", id))
		h.render(w, r, "pages/articles/form.html", map[string]any{
			"Errors":  map[string]string{"general": shared.UserSafeMessage(err)},
			"Article": submittedArticle(id, in),
			"Tags":    h.tagOptions(r.Context()),
		}, http.StatusBadRequest)
		return
	}

	h.redirectWithFlash(w, r, "/admin/articles/"+strconv.FormatInt(id, 10)+"/edit", "success", "Article updated")
}

func (h *AdminHandler) Publish(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid article ID", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	var at *time.Time
	if raw := strings.TrimSpace(r.PostFormValue("publish_at")); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02T15:04", raw, time.Local)
		if err != nil {
			h.redirectWithFlash(w, r, "/admin/articles", "error", "Invalid schedule time")
			return
		}
		at = &parsed
	}

	article, err := h.service.Publish(r.Context(), actorID, id, at)
	if err != nil {
		h.logger.Error("publish article failed", slog.Any("error", err), slog.Int64("id", id))
		h.redirectWithFlash(w, r, "/admin/articles", "error", shared.UserSafeMessage(err))
		return
	}

	message := "Article published"
	if article.Status == StatusDraft {
		message = "Publication scheduled"
	}
	h.redirectWithFlash(w, r, "/admin/articles", "success", message)
}

func (h *AdminHandler) Unpublish(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "unpublish", h.service.Unpublish, "Article moved back to draft")
}

func (h *AdminHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "archive", h.service.Archive, "Article archived")
}

func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid article ID", http.StatusBadRequest)
		return
	}

	if err := h.service.Delete(r.Context(), actorID, id); err != nil {
		h.logger.Error("delete article failed", slog.Any("error", err), slog.Int64("id", id))
		h.redirectWithFlash(w, r, "/admin/articles", "error", shared.UserSafeMessage(err))
		return
	}

	h.redirectWithFlash(w, r, "/admin/articles", "success", "Article deleted")
}

func (h *AdminHandler) lifecycle(w http.ResponseWriter, r *http.Request, name string, op func(context.Context, int64, int64) (*Article, error), message string) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid article ID", http.StatusBadRequest)
		return
	}

	if _, err := op(r.Context(), actorID, id); err != nil {
		h.logger.Error(name+" article failed", slog.Any("error", err), slog.Int64("id", id))
		h.redirectWithFlash(w, r, "/admin/articles", "error", shared.UserSafeMessage(err))
		return
	}

	h.redirectWithFlash(w, r, "/admin/articles", "success", message)
}

func (h *AdminHandler) respondLoadError(w http.ResponseWriter, r *http.Request, err error, id int64) {
	switch {
	case err == shared.ErrForbidden:
		http.Error(w, "Forbidden", http.StatusForbidden)
	case err == shared.ErrNotFound:
		http.Error(w, "Article not found", http.StatusNotFound)
	default:
		h.logger.Error("load article failed", slog.Any("error", err), slog.Int64("id", id))
		http.Error(w, "Failed to load article", http.StatusInternalServerError)
	}
}

func (h *AdminHandler) actorID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := shared.CurrentUserID(r.Context())
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return 0, false
	}
	return id, true
}

func (h *AdminHandler) tagOptions(ctx context.Context) []TagRef {
	refs, err := h.tags.ListRefs(ctx)
	if err != nil {
		h.logger.Error("list tags failed", slog.Any("error", err))
		return nil
	}
	return refs
}

func formInput(r *http.Request) Input {
	var tagIDs []int64
	for _, raw := range r.PostForm["tags"] {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			tagIDs = append(tagIDs, id)
		}
	}
	return Input{
		Title:        r.PostFormValue("title"),
		Excerpt:      r.PostFormValue("excerpt"),
		BodyMarkdown: r.PostFormValue("body_markdown"),
		CoverPath:    strings.TrimSpace(r.PostFormValue("cover_path")),
		TagIDs:       tagIDs,
	}
}

// submittedArticle rebuilds a transient article so the form keeps the
// author's input after a failed save.
func submittedArticle(id int64, in Input) *Article {
	return &Article{
		ID:           id,
		Title:        in.Title,
		Excerpt:      in.Excerpt,
		BodyMarkdown: in.BodyMarkdown,
		CoverPath:    in.CoverPath,
	}
}

func (h *AdminHandler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	var claims *shared.SessionClaims
	if sess != nil {
		flash = sess.PopFlash()
		claims = sess.Claims()
	}
	viewData := view.TemplateData{
		Title:       "Articles",
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

func (h *AdminHandler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
