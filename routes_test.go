package siteauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func textHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
}

func newTestGuard(t *testing.T) (*RouteGuard, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend()
	coordinator := NewCoordinator(backend, newMemProfiles())
	coordinator.Start(context.Background())
	t.Cleanup(coordinator.Close)

	guard := NewRouteGuard(coordinator, []Route{
		{Path: "/", Visibility: VisibleAlways, Handler: textHandler("home")},
		{Path: "/login", Visibility: HideWhenAuthenticated, Handler: textHandler("login")},
		{Path: "/signup", Visibility: HideWhenAuthenticated, Handler: textHandler("signup")},
		{Path: "/account", Visibility: HideWhenUnauthenticated, Handler: textHandler("account")},
	}, WithLanding("/"))
	return guard, backend
}

func get(guard *RouteGuard, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	guard.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	return w
}

func TestRouteGuardUnauthenticated(t *testing.T) {
	guard, _ := newTestGuard(t)

	if w := get(guard, "/login"); w.Code != http.StatusOK || w.Body.String() != "login" {
		t.Errorf("/login: code=%d body=%q", w.Code, w.Body.String())
	}
	if w := get(guard, "/account"); w.Code != http.StatusNotFound {
		t.Errorf("/account without a session: code=%d, want 404", w.Code)
	}
	if w := get(guard, "/"); w.Code != http.StatusOK {
		t.Errorf("/: code=%d, want 200", w.Code)
	}
}

func TestRouteGuardAuthenticated(t *testing.T) {
	guard, backend := newTestGuard(t)
	backend.setCurrent(&Account{UID: "u1", Email: "mara@example.com", EmailVerified: true})

	if w := get(guard, "/account"); w.Code != http.StatusOK || w.Body.String() != "account" {
		t.Errorf("/account: code=%d body=%q", w.Code, w.Body.String())
	}
	for _, path := range []string{"/login", "/signup"} {
		if w := get(guard, path); w.Code != http.StatusNotFound {
			t.Errorf("%s while authenticated: code=%d, want 404", path, w.Code)
		}
	}
	if w := get(guard, "/"); w.Code != http.StatusOK {
		t.Errorf("/: code=%d, want 200", w.Code)
	}
}

func TestRouteGuardFollowsTransitions(t *testing.T) {
	guard, backend := newTestGuard(t)

	backend.setCurrent(&Account{UID: "u1", Email: "mara@example.com", EmailVerified: true})
	if w := get(guard, "/login"); w.Code != http.StatusNotFound {
		t.Errorf("/login after sign-in: code=%d, want 404", w.Code)
	}

	backend.setCurrent(nil)
	if w := get(guard, "/login"); w.Code != http.StatusOK {
		t.Errorf("/login after sign-out: code=%d, want 200", w.Code)
	}
	if w := get(guard, "/account"); w.Code != http.StatusNotFound {
		t.Errorf("/account after sign-out: code=%d, want 404", w.Code)
	}
}

func TestRouteGuardHoldsGuardedPathsWhileResolving(t *testing.T) {
	backend := newFakeBackend()
	delayed := &delayedBackend{fakeBackend: backend}
	coordinator := NewCoordinator(delayed, newMemProfiles())
	coordinator.Start(context.Background())
	t.Cleanup(coordinator.Close)

	guard := NewRouteGuard(coordinator, []Route{
		{Path: "/", Visibility: VisibleAlways, Handler: textHandler("home")},
		{Path: "/account", Visibility: HideWhenUnauthenticated, Handler: textHandler("account")},
	})

	// Guarded path is held back until the session resolves.
	if w := get(guard, "/account"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("/account while resolving: code=%d, want 503", w.Code)
	}
	// Unguarded paths are served immediately.
	if w := get(guard, "/"); w.Code != http.StatusOK {
		t.Errorf("/ while resolving: code=%d, want 200", w.Code)
	}

	delayed.deliver()
	if w := get(guard, "/account"); w.Code != http.StatusNotFound {
		t.Errorf("/account resolved unauthenticated: code=%d, want 404", w.Code)
	}
}

func TestRouteGuardNotFoundLinksLanding(t *testing.T) {
	guard, _ := newTestGuard(t)
	w := get(guard, "/no-such-page")
	if w.Code != http.StatusNotFound {
		t.Fatalf("code=%d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), `href="/"`) {
		t.Errorf("not-found page must link the landing route, got %q", w.Body.String())
	}
}
