package siteauth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

type userParamNameKey string

// Middleware extracts the logged-in user for HTTP handlers, checking the
// request context, the scs session and finally the auth token header/cookie.
type Middleware struct {
	AuthTokenHeaderName string
	AuthTokenCookieName string
	UserParamName       string
	CallbackURLParam    string
	SessionGetter       func(r *http.Request, param string) any
	GetRedirURL         func(r *http.Request) string
	VerifyToken         func(tokenString string) (loggedInUserId string, token any, err error)
	Logger              *zap.Logger
}

// EnsureReasonableDefaults fills unset config values.
func (a *Middleware) EnsureReasonableDefaults() {
	if a.UserParamName == "" {
		a.UserParamName = "loggedInUserId"
	}
	if a.CallbackURLParam == "" {
		a.CallbackURLParam = "callbackURL"
	}
	if a.AuthTokenHeaderName == "" {
		a.AuthTokenHeaderName = "Authorization"
	}
	if a.Logger == nil {
		a.Logger = zap.NewNop()
	}
}

// GetLoggedInUserId returns the ID of the logged in user for the current
// request, or "" when nobody is logged in.
func (a *Middleware) GetLoggedInUserId(r *http.Request) string {
	if v := r.Context().Value(userParamNameKey(a.UserParamName)); v != nil {
		if userId, ok := v.(string); ok && userId != "" {
			return userId
		}
	}

	if a.SessionGetter != nil {
		if param := a.SessionGetter(r, a.UserParamName); param != nil && param != "" {
			if userId, ok := param.(string); ok {
				return userId
			}
		}
	}

	if a.VerifyToken == nil {
		a.Logger.Warn("no auth token verifier configured")
		return ""
	}

	authTokens := r.Header.Values(a.AuthTokenHeaderName)
	for _, cookie := range r.CookiesNamed(a.AuthTokenCookieName) {
		if len(cookie.Value) > 0 {
			authTokens = append(authTokens, cookie.Value)
		}
	}

	for _, authToken := range authTokens {
		authToken = strings.TrimPrefix(authToken, "Bearer ")
		userId, _, err := a.VerifyToken(authToken)
		if err == nil && userId != "" {
			return userId
		} else if err != nil {
			a.Logger.Debug("token verification failed", zap.Error(err))
		}
	}
	return ""
}

// ExtractUser loads the logged-in user ID into the request context for
// downstream handlers, without enforcing that one exists.
func (a *Middleware) ExtractUser(next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userId := a.GetLoggedInUserId(r)
		next.ServeHTTP(w, a.setLoggedInUserId(userId, r))
	})
}

// EnsureUser is ExtractUser plus enforcement: without a user the request is
// redirected to the login page (when GetRedirURL is set) or answered 401.
func (a *Middleware) EnsureUser(next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userId := a.GetLoggedInUserId(r)
		if userId == "" {
			redirUrl := ""
			if a.GetRedirURL != nil {
				redirUrl = a.GetRedirURL(r)
			}
			if redirUrl != "" {
				encoded := strings.Replace(url.QueryEscape(r.URL.Path), "+", "%20", -1)
				http.Redirect(w, r, fmt.Sprintf("%s?%s=%s", redirUrl, a.CallbackURLParam, encoded), http.StatusFound)
			} else {
				http.Error(w, "Login required", http.StatusUnauthorized)
			}
			return
		}
		next.ServeHTTP(w, a.setLoggedInUserId(userId, r))
	})
}

func (a *Middleware) setLoggedInUserId(userId string, r *http.Request) *http.Request {
	ctx := context.WithValue(r.Context(), userParamNameKey(a.UserParamName), userId)
	return r.WithContext(ctx)
}
