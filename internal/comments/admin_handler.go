package comments

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/plume-cms/plume/internal/rbac"
	"github.com/plume-cms/plume/internal/shared"
	"github.com/plume-cms/plume/internal/view"
)

// AdminHandler serves the moderation queue under /admin/comments.
type AdminHandler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	sessions  *shared.SessionManager
	rbac      rbac.Middleware
}

// NewAdminHandler builds AdminHandler instance.
func NewAdminHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, sessions *shared.SessionManager, rbac rbac.Middleware) *AdminHandler {
	return &AdminHandler{logger: logger, service: service, templates: templates, csrf: csrf, sessions: sessions, rbac: rbac}
}

// MountRoutes registers moderation routes.
func (h *AdminHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermCommentModerate))
		r.Get("/", h.Queue)
		r.Post("/{id}/approve", h.Approve)
		r.Post("/{id}/reject", h.Reject)
		r.Post("/{id}/delete", h.Delete)
	})
}

func (h *AdminHandler) Queue(w http.ResponseWriter, r *http.Request) {
	status := CommentStatus(r.URL.Query().Get("status"))
	if !status.Valid() {
		status = StatusPending
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	items, pagination, err := h.service.Queue(r.Context(), status, page)
	if err != nil {
		h.logger.Error("load moderation queue failed", slog.Any("error", err))
		http.Error(w, "Failed to load comments", http.StatusInternalServerError)
		return
	}

	counts, err := h.service.CountByStatus(r.Context())
	if err != nil {
		h.logger.Error("count comments failed", slog.Any("error", err))
		counts = map[CommentStatus]int{}
	}

	h.render(w, r, map[string]any{
		"Comments":   items,
		"Status":     status,
		"Counts":     counts,
		"Pagination": pagination,
		"Statuses":   []CommentStatus{StatusPending, StatusApproved, StatusRejected},
	}, http.StatusOK)
}

func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Approve, "Comment approved")
}

func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Reject, "Comment rejected")
}

func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Delete, "Comment deleted")
}

func (h *AdminHandler) decide(w http.ResponseWriter, r *http.Request, op func(context.Context, int64, int64) error, message string) {
	actorID, ok := shared.CurrentUserID(r.Context())
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid comment ID", http.StatusBadRequest)
		return
	}

	if err := op(r.Context(), actorID, id); err != nil {
		h.logger.Error("moderate comment failed", slog.Any("error", err), slog.Int64("id", id))
		h.redirectWithFlash(w, r, "/admin/comments", "error", shared.UserSafeMessage(err))
		return
	}

	h.redirectWithFlash(w, r, "/admin/comments", "success", message)
}

func (h *AdminHandler) render(w http.ResponseWriter, r *http.Request, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	var claims *shared.SessionClaims
	if sess != nil {
		flash = sess.PopFlash()
		claims = sess.Claims()
	}
	viewData := view.TemplateData{
		Title:       "Comments",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		CurrentUser: claims,
		Data:        data,
	}
	w.WriteHeader(status)
	if err := h.templates.Render(w, "pages/comments/queue.html", viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err), slog.String("template", "pages/comments/queue.html"))
	}
}

func (h *AdminHandler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
