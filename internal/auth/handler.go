package auth

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/plume-cms/plume/internal/rbac"
	"github.com/plume-cms/plume/internal/shared"
	"github.com/plume-cms/plume/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.With(httprate.Limit(5, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))).
		Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
	Next   string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if _, ok := shared.CurrentUserID(r.Context()); ok {
		http.Redirect(w, r, h.landingPath(sess), http.StatusSeeOther)
		return
	}
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	data := loginPageData{Form: loginForm{}, Next: safeReturnPath(r.URL.Query().Get("next"))}
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       "Sign in",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if err := h.templates.Render(w, "pages/login.html", viewData); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())

	// A signed-in session resubmitting the form keeps its identity; the
	// credentials are not re-examined.
	if _, ok := shared.CurrentUserID(r.Context()); ok {
		http.Redirect(w, r, h.landingPath(sess), http.StatusSeeOther)
		return
	}

	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	next := safeReturnPath(r.PostFormValue("next"))

	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		// Collapse field errors into the shared message so the form never
		// hints which part of the credentials was rejected.
		errs["general"] = shared.UserSafeMessage(shared.ErrInvalidCredentials)
	}

	if len(errs) == 0 {
		user, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
		if err != nil {
			h.logger.Warn("login rejected",
				slog.String("email", form.Email),
				slog.String("remote", r.RemoteAddr),
			)
			errs["general"] = shared.UserSafeMessage(shared.ErrInvalidCredentials)
		} else if sess != nil {
			if err := sess.Renew(r.Context()); err != nil {
				h.logger.Warn("renew session", slog.Any("error", err))
			}
			sess.SetUser(strconv.FormatInt(user.ID, 10))
			claims, err := h.service.Claims(r.Context(), user)
			if err != nil {
				h.logger.Warn("load claims", slog.Any("error", err))
				claims = shared.SessionClaims{Username: user.Username, Email: user.Email}
			}
			sess.SetClaims(claims)
			if _, err := h.csrfManager.RotateToken(r.Context(), sess); err != nil {
				h.logger.Warn("rotate csrf token", slog.Any("error", err))
			}
			sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back, " + user.Username + "."})

			expiresAt := time.Now().Add(h.sessionManager.TTL())
			if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
				h.logger.Warn("register session", slog.Any("error", err))
			}
			if err := h.service.MarkLogin(r.Context(), user.ID); err != nil {
				h.logger.Warn("mark login", slog.Any("error", err))
			}

			// Administrators and editors land in the admin area; everyone
			// else starts on the public site. Pure routing, not a guard.
			target := next
			if target == "" {
				target = "/"
				switch claims.PrincipalRole {
				case rbac.RoleAdministrator, rbac.RoleEditor:
					target = "/admin"
				}
			}
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		} else {
			h.logger.Error("session missing during login")
			errs["general"] = shared.UserSafeMessage(nil)
		}
	}

	data := loginPageData{Form: loginForm{Email: form.Email}, Errors: errs, Next: next}
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       "Sign in",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	w.WriteHeader(http.StatusBadRequest)
	if err := h.templates.Render(w, "pages/login.html", viewData); err != nil {
		h.logger.Error("render login invalid", slog.Any("error", err))
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// landingPath resolves where an already signed-in session belongs.
func (h *Handler) landingPath(sess *shared.Session) string {
	if sess != nil {
		if claims := sess.Claims(); claims != nil {
			switch claims.PrincipalRole {
			case rbac.RoleAdministrator, rbac.RoleEditor:
				return "/admin"
			}
		}
	}
	return "/"
}

// safeReturnPath keeps post-login redirects on this site. Anything that is
// not a plain local path collapses to empty.
func safeReturnPath(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return ""
	}
	if strings.Contains(raw, "\\") || strings.Contains(raw, "://") {
		return ""
	}
	return raw
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

// HandleLogoutForTest exposes the logout handler for tests.
func (h *Handler) HandleLogoutForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogout(w, r)
}
