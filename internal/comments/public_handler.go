package comments

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/plume-cms/plume/internal/shared"
)

// PublicHandler accepts reader comments on published articles.
type PublicHandler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewPublicHandler builds PublicHandler instance.
func NewPublicHandler(logger *slog.Logger, service *Service) *PublicHandler {
	return &PublicHandler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers the public comment route.
func (h *PublicHandler) MountRoutes(r chi.Router) {
	r.Post("/articles/{slug}/comments", h.Post)
}

type commentForm struct {
	AuthorName  string `validate:"required,min=2,max=80"`
	AuthorEmail string `validate:"required,email"`
	Body        string `validate:"required,min=3,max=2000"`
}

func (h *PublicHandler) Post(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	articleURL := "/articles/" + slug

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	form := commentForm{
		AuthorName:  r.PostFormValue("author_name"),
		AuthorEmail: r.PostFormValue("author_email"),
		Body:        r.PostFormValue("body"),
	}
	if err := h.validator.Struct(form); err != nil {
		h.redirectWithFlash(w, r, articleURL+"#comments", "error", "Please fill in your name, a valid email and a comment.")
		return
	}

	_, err := h.service.Post(r.Context(), PostInput{
		ArticleSlug: slug,
		AuthorName:  form.AuthorName,
		AuthorEmail: form.AuthorEmail,
		Body:        form.Body,
	})
	if err != nil {
		if err == shared.ErrNotFound {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("post comment failed", slog.Any("error", err), slog.String("slug", slug))
		h.redirectWithFlash(w, r, articleURL+"#comments", "error", shared.UserSafeMessage(err))
		return
	}

	h.redirectWithFlash(w, r, articleURL+"#comments", "success", "Thanks! Your comment is awaiting moderation.")
}

func (h *PublicHandler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
