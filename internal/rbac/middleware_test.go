package rbac_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/plume-cms/plume/internal/rbac"
	"github.com/plume-cms/plume/internal/shared"
	_ "github.com/plume-cms/plume/testing"
)

type fakePermissionSource struct {
	perms map[int64][]string
	err   error
}

func (f *fakePermissionSource) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.perms[userID], nil
}

func requestWithSession(t *testing.T, target, userID string) *http.Request {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sm := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)

	req := httptest.NewRequest(http.MethodGet, target, nil)
	sess, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if userID != "" {
		sess.SetUser(userID)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAnyRedirectsAnonymousToLogin(t *testing.T) {
	m := rbac.Middleware{Service: &fakePermissionSource{}}
	handler := m.RequireAny(shared.PermAdminAccess)(okHandler())

	req := requestWithSession(t, "/admin/articles", "")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", res.Code)
	}
	loc := res.Header().Get("Location")
	if !strings.HasPrefix(loc, "/login?next=") {
		t.Fatalf("expected login redirect with return path, got %q", loc)
	}
	if !strings.Contains(loc, "%2Fadmin%2Farticles") {
		t.Fatalf("expected encoded return path, got %q", loc)
	}
}

func TestRequireAnyAnonymousJSONGets401(t *testing.T) {
	m := rbac.Middleware{Service: &fakePermissionSource{}}
	handler := m.RequireAny(shared.PermAdminAccess)(okHandler())

	req := requestWithSession(t, "/admin/articles", "")
	req.Header.Set("Accept", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for JSON clients, got %d", res.Code)
	}
}

func TestRequireAnyForbidsUserWithoutGrant(t *testing.T) {
	source := &fakePermissionSource{perms: map[int64][]string{7: {shared.PermArticleCreate}}}
	m := rbac.Middleware{Service: source}
	handler := m.RequireAny(shared.PermUserManage)(okHandler())

	req := requestWithSession(t, "/admin/users", "7")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for signed-in user without grant, got %d", res.Code)
	}
}

func TestRequireAnyAllowsGrantedUser(t *testing.T) {
	source := &fakePermissionSource{perms: map[int64][]string{7: {shared.PermArticleCreate}}}
	m := rbac.Middleware{Service: source}
	handler := m.RequireAny(shared.PermArticleCreate, shared.PermArticleEditAll)(okHandler())

	req := requestWithSession(t, "/admin/articles/new", "7")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestRequireAnyFailsClosedOnLookupError(t *testing.T) {
	source := &fakePermissionSource{err: errors.New("connection refused")}
	m := rbac.Middleware{Service: source}
	handler := m.RequireAny(shared.PermArticleCreate)(okHandler())

	req := requestWithSession(t, "/admin/articles/new", "7")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusForbidden {
		t.Fatalf("expected lookup failure to deny, got %d", res.Code)
	}
}

func TestRequireAllNeedsEveryPermission(t *testing.T) {
	source := &fakePermissionSource{perms: map[int64][]string{7: {shared.PermArticleCreate, shared.PermArticlePublish}}}
	m := rbac.Middleware{Service: source}

	partial := m.RequireAll(shared.PermArticleCreate, shared.PermArticleDelete)(okHandler())
	res := httptest.NewRecorder()
	partial.ServeHTTP(res, requestWithSession(t, "/admin/articles", "7"))
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with partial grants, got %d", res.Code)
	}

	full := m.RequireAll(shared.PermArticleCreate, shared.PermArticlePublish)(okHandler())
	res = httptest.NewRecorder()
	full.ServeHTTP(res, requestWithSession(t, "/admin/articles", "7"))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 with full grants, got %d", res.Code)
	}
}

func TestRequireAuthenticated(t *testing.T) {
	m := rbac.Middleware{Service: &fakePermissionSource{}}
	handler := m.RequireAuthenticated()(okHandler())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, requestWithSession(t, "/admin", ""))
	if res.Code != http.StatusFound {
		t.Fatalf("expected anonymous redirect, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, requestWithSession(t, "/admin", "3"))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for signed-in user, got %d", res.Code)
	}
}
