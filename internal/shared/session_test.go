package shared_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/plume-cms/plume/internal/shared"
	_ "github.com/plume-cms/plume/testing"
)

func newSessionManager(t *testing.T) (*shared.SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return shared.NewSessionManager(client, "test_session", "secret", time.Hour, false), mr
}

func commitSession(t *testing.T, sm *shared.SessionManager, sess *shared.Session) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	res := httptest.NewRecorder()
	if err := sm.Commit(context.Background(), res, req, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return res
}

func requestWithCookie(sm *shared.SessionManager, id string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: id})
	return req
}

func TestSessionRoundTrip(t *testing.T) {
	sm, _ := newSessionManager(t)

	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sess.Set("theme", "dark")
	sess.SetUser("42")
	sess.SetClaims(shared.SessionClaims{Username: "ada", Email: "ada@example.com", Roles: []string{"Editor"}, PrincipalRole: "Editor"})
	commitSession(t, sm, sess)

	loaded, err := sm.Load(context.Background(), requestWithCookie(sm, sess.ID))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Get("theme") != "dark" {
		t.Fatalf("expected stored value to survive, got %q", loaded.Get("theme"))
	}
	if loaded.User() != "42" {
		t.Fatalf("expected user 42, got %q", loaded.User())
	}
	claims := loaded.Claims()
	if claims == nil || claims.PrincipalRole != "Editor" {
		t.Fatalf("expected claims snapshot, got %+v", claims)
	}
}

func TestSessionUnknownCookieIsAnonymous(t *testing.T) {
	sm, _ := newSessionManager(t)

	loaded, err := sm.Load(context.Background(), requestWithCookie(sm, "stale-id"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.User() != "" {
		t.Fatalf("expected anonymous session, got user %q", loaded.User())
	}
}

func TestSessionRenewRotatesID(t *testing.T) {
	sm, mr := newSessionManager(t)

	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sess.Set("carry", "over")
	commitSession(t, sm, sess)
	oldID := sess.ID

	reloaded, err := sm.Load(context.Background(), requestWithCookie(sm, oldID))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if err := reloaded.Renew(context.Background()); err != nil {
		t.Fatalf("renew: %v", err)
	}
	if reloaded.ID == oldID {
		t.Fatalf("expected rotated session ID")
	}
	commitSession(t, sm, reloaded)

	if mr.Exists("session:" + oldID) {
		t.Fatalf("expected old session record to be deleted")
	}
	fresh, err := sm.Load(context.Background(), requestWithCookie(sm, reloaded.ID))
	if err != nil {
		t.Fatalf("load rotated: %v", err)
	}
	if fresh.Get("carry") != "over" {
		t.Fatalf("expected values to survive rotation")
	}
}

func TestSessionDestroyClearsCookieAndStore(t *testing.T) {
	sm, mr := newSessionManager(t)

	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sess.SetUser("7")
	commitSession(t, sm, sess)

	loaded, err := sm.Load(context.Background(), requestWithCookie(sm, sess.ID))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	sm.Destroy(loaded)
	res := commitSession(t, sm, loaded)

	if mr.Exists("session:" + sess.ID) {
		t.Fatalf("expected session record to be deleted")
	}
	cleared := false
	for _, c := range res.Result().Cookies() {
		if c.Name == sm.CookieName() && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("expected expired cookie in response")
	}
}

func TestRevokeUserDeletesEverySession(t *testing.T) {
	sm, mr := newSessionManager(t)

	var ids []string
	for i := 0; i < 2; i++ {
		sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		sess.SetUser("9")
		commitSession(t, sm, sess)
		ids = append(ids, sess.ID)
	}

	if err := sm.RevokeUser(context.Background(), "9"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	for _, id := range ids {
		if mr.Exists("session:" + id) {
			t.Fatalf("expected session %s to be revoked", id)
		}
		loaded, err := sm.Load(context.Background(), requestWithCookie(sm, id))
		if err != nil {
			t.Fatalf("load revoked: %v", err)
		}
		if loaded.User() != "" {
			t.Fatalf("expected revoked cookie to load as anonymous")
		}
	}
}

func TestFlashSurvivesOneRedirect(t *testing.T) {
	sm, _ := newSessionManager(t)

	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Saved."})
	commitSession(t, sm, sess)

	next, err := sm.Load(context.Background(), requestWithCookie(sm, sess.ID))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	flash := next.PopFlash()
	if flash == nil || flash.Message != "Saved." {
		t.Fatalf("expected flash after redirect, got %+v", flash)
	}
	commitSession(t, sm, next)

	final, err := sm.Load(context.Background(), requestWithCookie(sm, sess.ID))
	if err != nil {
		t.Fatalf("final load: %v", err)
	}
	if flash := final.PopFlash(); flash != nil {
		t.Fatalf("expected flash to be consumed, got %+v", flash)
	}
}
