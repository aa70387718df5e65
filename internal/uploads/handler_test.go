package uploads

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/plume-cms/plume/internal/rbac"
)

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func newUploadHandler(t *testing.T) *Handler {
	t.Helper()
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(logger, store, rbac.Middleware{}, 0)
}

func TestUploadStoresImage(t *testing.T) {
	handler := newUploadHandler(t)
	body, ctype := multipartBody(t, "file", "photo.PNG", "fake-png")

	req := httptest.NewRequest(http.MethodPost, "/admin/uploads", body)
	req.Header.Set("Content-Type", ctype)
	rr := httptest.NewRecorder()
	handler.Upload(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, strings.HasPrefix(resp["path"], "/media/"))
	require.True(t, strings.HasSuffix(resp["path"], ".png"))

	name := strings.TrimPrefix(resp["path"], "/media/")
	f, err := handler.store.Open(name)
	require.NoError(t, err)
	data, _ := io.ReadAll(f)
	require.NoError(t, f.Close())
	require.Equal(t, "fake-png", string(data))
}

func TestUploadRejectsNonImage(t *testing.T) {
	handler := newUploadHandler(t)
	body, ctype := multipartBody(t, "file", "payload.exe", "MZ")

	req := httptest.NewRequest(http.MethodPost, "/admin/uploads", body)
	req.Header.Set("Content-Type", ctype)
	rr := httptest.NewRecorder()
	handler.Upload(rr, req)

	require.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
}

func TestUploadEnforcesSizeCap(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, store, rbac.Middleware{}, 512)

	body, ctype := multipartBody(t, "file", "huge.png", strings.Repeat("x", 2048))
	req := httptest.NewRequest(http.MethodPost, "/admin/uploads", body)
	req.Header.Set("Content-Type", ctype)
	rr := httptest.NewRecorder()
	handler.Upload(rr, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestUploadRequiresFileField(t *testing.T) {
	handler := newUploadHandler(t)
	body, ctype := multipartBody(t, "attachment", "photo.png", "fake-png")

	req := httptest.NewRequest(http.MethodPost, "/admin/uploads", body)
	req.Header.Set("Content-Type", ctype)
	rr := httptest.NewRecorder()
	handler.Upload(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServeStreamsStoredImage(t *testing.T) {
	handler := newUploadHandler(t)
	_, err := handler.store.Save("cover.jpg", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Get("/media/{name}", handler.Serve)

	req := httptest.NewRequest(http.MethodGet, "/media/cover.jpg", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "image/jpeg", rr.Header().Get("Content-Type"))
	require.Equal(t, "jpeg-bytes", rr.Body.String())
}

func TestServeUnknownNameNotFound(t *testing.T) {
	handler := newUploadHandler(t)
	router := chi.NewRouter()
	router.Get("/media/{name}", handler.Serve)

	for _, path := range []string{"/media/missing.png", "/media/notes.txt"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusNotFound, rr.Code, path)
	}
}
