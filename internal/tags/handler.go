package tags

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/plume-cms/plume/internal/platform/httpx"
	"github.com/plume-cms/plume/internal/rbac"
	"github.com/plume-cms/plume/internal/shared"
	"github.com/plume-cms/plume/internal/view"
)

// Handler serves tag management under /admin/tags.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	sessions  *shared.SessionManager
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, sessions *shared.SessionManager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, sessions: sessions, rbac: rbac}
}

// MountRoutes registers tag routes. Suggest is open to any signed-in
// author; everything that mutates the vocabulary needs tag_manage.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated())
		r.Get("/suggest", h.Suggest)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermTagManage))
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Post("/{id}", h.Rename)
		r.Post("/{id}/delete", h.Delete)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tags, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list tags failed", slog.Any("error", err))
		http.Error(w, "Failed to load tags", http.StatusInternalServerError)
		return
	}

	h.render(w, r, map[string]any{"Tags": tags, "Errors": map[string]string{}}, http.StatusOK)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	name := r.PostFormValue("name")
	if _, err := h.service.Create(r.Context(), actorID, name); err != nil {
		h.logger.Error("create tag failed", slog.Any("error", err))
		h.renderWithError(w, r, shared.UserSafeMessage(err))
		return
	}

	h.redirectWithFlash(w, r, "/admin/tags", "success", "Tag created")
}

func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid tag ID", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if _, err := h.service.Rename(r.Context(), actorID, id, r.PostFormValue("name")); err != nil {
		h.logger.Error("rename tag failed", slog.Any("error", err), slog.Int64("id", id))
		h.renderWithError(w, r, shared.UserSafeMessage(err))
		return
	}

	h.redirectWithFlash(w, r, "/admin/tags", "success", "Tag renamed")
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid tag ID", http.StatusBadRequest)
		return
	}

	if err := h.service.Delete(r.Context(), actorID, id); err != nil {
		h.logger.Error("delete tag failed", slog.Any("error", err), slog.Int64("id", id))
		h.redirectWithFlash(w, r, "/admin/tags", "error", shared.UserSafeMessage(err))
		return
	}

	h.redirectWithFlash(w, r, "/admin/tags", "success", "Tag deleted")
}

// Suggest answers the editor autocomplete with a small JSON list.
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	matches, err := h.service.Suggest(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.logger.Error("suggest tags failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	type suggestion struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		Slug string `json:"slug"`
	}
	out := make([]suggestion, 0, len(matches))
	for _, t := range matches {
		out = append(out, suggestion{ID: t.ID, Name: t.Name, Slug: t.Slug})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tags": out})
}

func (h *Handler) renderWithError(w http.ResponseWriter, r *http.Request, message string) {
	tags, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list tags failed", slog.Any("error", err))
	}
	h.render(w, r, map[string]any{
		"Tags":   tags,
		"Errors": map[string]string{"general": message},
	}, http.StatusBadRequest)
}

func (h *Handler) actorID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := shared.CurrentUserID(r.Context())
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return 0, false
	}
	return id, true
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	var claims *shared.SessionClaims
	if sess != nil {
		flash = sess.PopFlash()
		claims = sess.Claims()
	}
	viewData := view.TemplateData{
		Title:       "Tags",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		CurrentUser: claims,
		Data:        data,
	}
	w.WriteHeader(status)
	if err := h.templates.Render(w, "pages/tags/list.html", viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err), slog.String("template", "pages/tags/list.html"))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
