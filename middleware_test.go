package siteauth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestMiddleware() *Middleware {
	m := &Middleware{
		AuthTokenCookieName: "TestAuthToken",
		VerifyToken: func(tokenString string) (string, any, error) {
			if tokenString == "valid-token" {
				return "u1", nil, nil
			}
			return "", nil, http.ErrNoCookie
		},
	}
	m.EnsureReasonableDefaults()
	return m
}

func TestGetLoggedInUserIdFromHeader(t *testing.T) {
	m := newTestMiddleware()

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	if userId := m.GetLoggedInUserId(req); userId != "u1" {
		t.Errorf("userId = %q, want u1", userId)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	if userId := m.GetLoggedInUserId(req); userId != "" {
		t.Errorf("userId = %q, want empty for a bad token", userId)
	}
}

func TestGetLoggedInUserIdFromCookie(t *testing.T) {
	m := newTestMiddleware()

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: "TestAuthToken", Value: "valid-token"})
	if userId := m.GetLoggedInUserId(req); userId != "u1" {
		t.Errorf("userId = %q, want u1", userId)
	}
}

func TestGetLoggedInUserIdFromSession(t *testing.T) {
	m := newTestMiddleware()
	m.SessionGetter = func(r *http.Request, param string) any { return "session-user" }

	req := httptest.NewRequest("GET", "/", nil)
	if userId := m.GetLoggedInUserId(req); userId != "session-user" {
		t.Errorf("userId = %q, want session-user", userId)
	}
}

func TestExtractUserInjectsContext(t *testing.T) {
	m := newTestMiddleware()

	var seen string
	handler := m.ExtractUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = m.GetLoggedInUserId(r)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "u1" {
		t.Errorf("downstream saw %q, want u1", seen)
	}
}

func TestEnsureUserWithoutUser(t *testing.T) {
	m := newTestMiddleware()

	handler := m.EnsureUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run without a user")
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/account", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("code = %d, want 401", w.Code)
	}
}

func TestEnsureUserRedirectsToLogin(t *testing.T) {
	m := newTestMiddleware()
	m.GetRedirURL = func(r *http.Request) string { return "/login" }

	handler := m.EnsureUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/account/profile", nil))
	if w.Code != http.StatusFound {
		t.Fatalf("code = %d, want 302", w.Code)
	}
	loc := w.Header().Get("Location")
	if !strings.HasPrefix(loc, "/login?callbackURL=") || !strings.Contains(loc, "account") {
		t.Errorf("Location = %q, want login redirect with callback", loc)
	}
}
