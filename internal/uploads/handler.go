package uploads

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/plume-cms/plume/internal/platform/httpx"
	"github.com/plume-cms/plume/internal/rbac"
	"github.com/plume-cms/plume/internal/shared"
)

// defaultMaxUploadBytes caps a single cover image when the config is silent.
const defaultMaxUploadBytes = 5 << 20

// Only raster image formats the article pages can embed directly.
var imageContentTypes = map[string]string{
	".gif":  "image/gif",
	".jpeg": "image/jpeg",
	".jpg":  "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// Handler accepts cover image uploads and serves them back under /media.
type Handler struct {
	logger   *slog.Logger
	store    Store
	rbac     rbac.Middleware
	maxBytes int64
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, store Store, rbac rbac.Middleware, maxBytes int64) *Handler {
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	return &Handler{logger: logger, store: store, rbac: rbac, maxBytes: maxBytes}
}

// MountAdminRoutes registers the upload endpoint. Anyone who can author
// articles can attach images to them.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermArticleCreate, shared.PermArticleEditAll))
		r.Post("/", h.Upload)
	})
}

// MountMediaRoutes serves stored files on the public site.
func (h *Handler) MountMediaRoutes(r chi.Router) {
	r.Get("/{name}", h.Serve)
}

// Upload stores one multipart image and answers with its public path.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		httpx.Problem(w, http.StatusRequestEntityTooLarge, "Upload Too Large",
			fmt.Sprintf("images are capped at %d MB", h.maxBytes>>20))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "missing file field")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := imageContentTypes[ext]; !ok {
		httpx.Problem(w, http.StatusUnsupportedMediaType, "Unsupported Type", "only image uploads are accepted")
		return
	}

	name, err := h.store.Save(uuid.NewString()+ext, file)
	if err != nil {
		h.logger.Error("save upload failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"path": "/media/" + name})
}

// Serve streams a stored image. Unknown extensions 404 up front so the
// store is never probed with non-image names.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ctype, ok := imageContentTypes[strings.ToLower(filepath.Ext(name))]
	if !ok {
		http.NotFound(w, r)
		return
	}
	f, err := h.store.Open(name)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("open upload failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Warn("stream upload", slog.Any("error", err))
	}
}
