package roles

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/plume-cms/plume/internal/rbac"
	"github.com/plume-cms/plume/internal/shared"
	"github.com/plume-cms/plume/internal/view"
)

// Handler manages role administration endpoints.
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

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUserManage))
		r.Get("/", h.listRoles)
		r.Get("/new", h.showCreateForm)
		r.Post("/", h.createRole)
		r.Get("/{id}", h.showMatrix)
		r.Post("/{id}", h.updateRole)
		r.Post("/{id}/permissions", h.setPermissions)
		r.Post("/{id}/delete", h.deleteRole)
	})
}

type formErrors map[string]string

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListWithStats(r.Context())
	if err != nil {
		h.logger.Error("list roles failed", slog.Any("error", err))
		h.render(w, r, "pages/roles/list.html", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/roles/list.html", map[string]any{"Roles": roles}, http.StatusOK)
}

func (h *Handler) showCreateForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/roles/form.html", map[string]any{"Errors": formErrors{}}, http.StatusOK)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	role, err := h.service.Create(r.Context(), actorID, r.PostFormValue("name"), r.PostFormValue("description"))
	if err != nil {
		h.logger.Error("create role failed", slog.Any("error", err))
		h.render(w, r, "pages/roles/form.html", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusBadRequest)
		return
	}

	h.redirectWithFlash(w, r, "/admin/roles/"+strconv.FormatInt(role.ID, 10), "success", "Role created")
}

// showMatrix renders the role detail with the permission grid.
func (h *Handler) showMatrix(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid role ID", http.StatusBadRequest)
		return
	}

	role, all, granted, err := h.service.Matrix(r.Context(), id)
	if err != nil {
		if err == shared.ErrNotFound {
			http.Error(w, "Role not found", http.StatusNotFound)
			return
		}
		h.logger.Error("load role failed", slog.Any("error", err), slog.Int64("id", id))
		http.Error(w, "Failed to load role", http.StatusInternalServerError)
		return
	}

	h.render(w, r, "pages/roles/matrix.html", map[string]any{
		"Role":        role,
		"Permissions": all,
		"Granted":     granted,
		"Errors":      formErrors{},
	}, http.StatusOK)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid role ID", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if _, err := h.service.Update(r.Context(), actorID, id, r.PostFormValue("name"), r.PostFormValue("description")); err != nil {
		h.logger.Error("update role failed", slog.Any("error", err), slog.Int64("id", id))
		h.redirectWithFlash(w, r, "/admin/roles/"+strconv.FormatInt(id, 10), "error", shared.UserSafeMessage(err))
		return
	}

	h.redirectWithFlash(w, r, "/admin/roles/"+strconv.FormatInt(id, 10), "success", "Role updated")
}

func (h *Handler) setPermissions(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid role ID", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	var permissionIDs []int64
	for _, raw := range r.PostForm["permissions"] {
		pid, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			permissionIDs = append(permissionIDs, pid)
		}
	}

	if err := h.service.SetPermissions(r.Context(), actorID, id, permissionIDs); err != nil {
		h.logger.Error("set role permissions failed", slog.Any("error", err), slog.Int64("id", id))
		h.redirectWithFlash(w, r, "/admin/roles/"+strconv.FormatInt(id, 10), "error", shared.UserSafeMessage(err))
		return
	}

	h.redirectWithFlash(w, r, "/admin/roles/"+strconv.FormatInt(id, 10), "success", "Permissions updated. Changes apply to the next request.")
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid role ID", http.StatusBadRequest)
		return
	}

	if err := h.service.Delete(r.Context(), actorID, id); err != nil {
		h.logger.Error("delete role failed", slog.Any("error", err), slog.Int64("id", id))
		h.redirectWithFlash(w, r, "/admin/roles", "error", shared.UserSafeMessage(err))
		return
	}

	h.redirectWithFlash(w, r, "/admin/roles", "success", "Role deleted")
}

func (h *Handler) actorID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := shared.CurrentUserID(r.Context())
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return 0, false
	}
	return id, true
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	var claims *shared.SessionClaims
	if sess != nil {
		flash = sess.PopFlash()
		claims = sess.Claims()
	}
	viewData := view.TemplateData{Title: "Roles", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, CurrentUser: claims, Data: data}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
