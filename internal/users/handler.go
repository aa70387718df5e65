package users

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/plume-cms/plume/internal/rbac"
	"github.com/plume-cms/plume/internal/shared"
	"github.com/plume-cms/plume/internal/view"
)

// Handler manages user administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	sessions  *shared.SessionManager
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, sessions *shared.SessionManager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, sessions: sessions, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers user administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUserManage))
		r.Get("/", h.listUsers)
		r.Get("/new", h.showCreateForm)
		r.Post("/", h.createUser)
		r.Post("/{id}/activate", h.activateUser)
		r.Post("/{id}/deactivate", h.deactivateUser)
		r.Post("/{id}/roles", h.assignRoles)
		r.Post("/{id}/delete", h.deleteUser)
	})
}

type formErrors map[string]string

type userForm struct {
	Username string `validate:"required,min=2,max=50"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		h.render(w, r, "pages/users/list.html", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}

	roles, err := h.service.Roles(r.Context())
	if err != nil {
		h.logger.Error("list roles failed", slog.Any("error", err))
		roles = nil
	}

	h.render(w, r, "pages/users/list.html", map[string]any{"Users": users, "Roles": roles}, http.StatusOK)
}

func (h *Handler) showCreateForm(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.Roles(r.Context())
	if err != nil {
		h.logger.Error("list roles failed", slog.Any("error", err))
	}
	h.render(w, r, "pages/users/form.html", map[string]any{"Errors": formErrors{}, "Roles": roles, "Form": userForm{}}, http.StatusOK)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	form := userForm{
		Username: r.PostFormValue("username"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	if err := h.validator.Struct(form); err != nil {
		h.renderCreateForm(w, r, form, validationErrors(err))
		return
	}

	in := CreateInput{
		Username: form.Username,
		Email:    form.Email,
		Password: form.Password,
		RoleIDs:  parseIDList(r.PostForm["roles"]),
	}
	created, err := h.service.Create(r.Context(), actorID, in)
	if err != nil {
		h.logger.Error("create user failed", slog.Any("error", err))
		h.renderCreateForm(w, r, form, formErrors{"general": shared.UserSafeMessage(err)})
		return
	}

	h.redirectWithFlash(w, r, "/admin/users", "success", "Account created for "+created.Username)
}

func (h *Handler) activateUser(w http.ResponseWriter, r *http.Request) {
	h.toggleActive(w, r, true, "Account activated")
}

func (h *Handler) deactivateUser(w http.ResponseWriter, r *http.Request) {
	h.toggleActive(w, r, false, "Account deactivated")
}

func (h *Handler) toggleActive(w http.ResponseWriter, r *http.Request, active bool, message string) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	if err := h.service.SetActive(r.Context(), actorID, id, active); err != nil {
		h.logger.Error("toggle user failed", slog.Any("error", err), slog.Int64("id", id))
		h.redirectWithFlash(w, r, "/admin/users", "error", shared.UserSafeMessage(err))
		return
	}

	h.redirectWithFlash(w, r, "/admin/users", "success", message)
}

func (h *Handler) assignRoles(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if err := h.service.AssignRoles(r.Context(), actorID, id, parseIDList(r.PostForm["roles"])); err != nil {
		h.logger.Error("assign roles failed", slog.Any("error", err), slog.Int64("id", id))
		h.redirectWithFlash(w, r, "/admin/users", "error", shared.UserSafeMessage(err))
		return
	}

	h.redirectWithFlash(w, r, "/admin/users", "success", "Roles updated. The user will sign in with the new access.")
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	if err := h.service.Delete(r.Context(), actorID, id); err != nil {
		h.logger.Error("delete user failed", slog.Any("error", err), slog.Int64("id", id))
		h.redirectWithFlash(w, r, "/admin/users", "error", shared.UserSafeMessage(err))
		return
	}

	h.redirectWithFlash(w, r, "/admin/users", "success", "Account deleted")
}

func (h *Handler) renderCreateForm(w http.ResponseWriter, r *http.Request, form userForm, errs formErrors) {
	roles, err := h.service.Roles(r.Context())
	if err != nil {
		h.logger.Error("list roles failed", slog.Any("error", err))
	}
	form.Password = ""
	h.render(w, r, "pages/users/form.html", map[string]any{"Errors": errs, "Roles": roles, "Form": form}, http.StatusBadRequest)
}

func (h *Handler) actorID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := shared.CurrentUserID(r.Context())
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return 0, false
	}
	return id, true
}

func parseIDList(raw []string) []int64 {
	var ids []int64
	for _, v := range raw {
		id, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func validationErrors(err error) formErrors {
	errs := formErrors{}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		errs["general"] = "Please check the form and try again."
		return errs
	}
	for _, fe := range fieldErrs {
		switch fe.Field() {
		case "Username":
			errs["username"] = "Username must be between 2 and 50 characters."
		case "Email":
			errs["email"] = "Enter a valid email address."
		case "Password":
			errs["password"] = "Password must be at least 8 characters."
		}
	}
	return errs
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
	viewData := view.TemplateData{Title: "Users", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, CurrentUser: claims, Data: data}
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
