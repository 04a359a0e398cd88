package siteauth

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// SiteAuth ties the authentication surface of the marketing site together:
// the scs session manager, the JWT auth cookie, the session coordinator and
// the mounted auth handlers.
type SiteAuth struct {
	mux        *http.ServeMux
	Session    *scs.SessionManager
	Middleware Middleware
	Logger     *zap.Logger

	// Optional name used as a prefix for derived defaults
	AppName string

	// Name of the session variable where the auth token is stored
	AuthTokenSessionVar string

	// Must be passed in
	Backend     IdentityBackend
	Coordinator *Coordinator

	// All the domains where the auth cookies are set on login and cleared
	// on logout
	CookieDomains []string

	// JWT related fields
	JwtIssuer    string
	JWTSecretKey string

	// How long a session cookie is valid for. Defaults to 1 day
	SessionTimeoutInSeconds int
}

// New creates a SiteAuth with defaults applied.
func New(appName string) *SiteAuth {
	return (&SiteAuth{AppName: appName}).EnsureDefaults()
}

// EnsureDefaults fills unset fields with reasonable values.
func (a *SiteAuth) EnsureDefaults() *SiteAuth {
	if a.AppName == "" {
		a.AppName = "Loomline"
	}
	if a.Logger == nil {
		a.Logger = zap.NewNop()
	}
	if a.SessionTimeoutInSeconds <= 0 {
		a.SessionTimeoutInSeconds = 86400
	}
	if a.JwtIssuer == "" {
		a.JwtIssuer = fmt.Sprintf("%s-Issuer", a.AppName)
	}
	if a.AuthTokenSessionVar == "" {
		a.AuthTokenSessionVar = fmt.Sprintf("%sAuthToken", a.AppName)
	}
	if a.JWTSecretKey == "" {
		a.JWTSecretKey = strings.TrimSpace(os.Getenv("SITEAUTH_JWT_SECRET_KEY"))
	}
	if a.Middleware.AuthTokenCookieName == "" {
		a.Middleware.AuthTokenCookieName = a.AuthTokenSessionVar
	}
	if a.Middleware.VerifyToken == nil {
		a.Middleware.VerifyToken = a.verifyJWT
	}
	if a.Middleware.Logger == nil {
		a.Middleware.Logger = a.Logger
	}
	return a
}

// Handler returns the mounted auth handler tree.
func (a *SiteAuth) Handler() http.Handler {
	return a.setupRoutes().mux
}

// AddAuth mounts an auth handler (the form handlers, a provider flow) under
// prefix. The handler is registered for subtree matching and a redirect
// keeps prefix-without-slash requests working.
func (a *SiteAuth) AddAuth(prefix string, handler http.Handler) *SiteAuth {
	a.setupRoutes()
	a.EnsureDefaults()
	prefix = strings.TrimSuffix(prefix, "/")
	a.Logger.Info("mounting auth handler", zap.String("prefix", prefix))
	a.mux.Handle(prefix+"/", http.StripPrefix(prefix, handler))

	a.mux.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		// r.RequestURI preserves parent prefixes stripped by outer muxes.
		origPath := r.RequestURI
		if idx := strings.Index(origPath, "?"); idx != -1 {
			origPath = origPath[:idx]
		}
		target := origPath + "/"
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		// 308 preserves the HTTP method; 301 would turn POSTs into GETs.
		http.Redirect(w, r, target, http.StatusPermanentRedirect)
	})
	return a
}

func (a *SiteAuth) setupRoutes() *SiteAuth {
	if a.mux == nil {
		a.mux = http.NewServeMux()
		a.mux.HandleFunc("/logout", a.onLogout)
	}
	return a
}

func (a *SiteAuth) verifyJWT(tokenString string) (loggedInUserId string, t any, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return []byte(a.JWTSecretKey), nil
	})
	if err != nil {
		return "", nil, err
	}
	if !token.Valid {
		return "", nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims == nil {
		return "", nil, fmt.Errorf("claims is not a map")
	}
	sub, err := claims.GetSubject()
	if sub == "" {
		return "", nil, fmt.Errorf("subject not found")
	} else if err != nil {
		return "", nil, err
	}
	return sub, token, nil
}

func (a *SiteAuth) onLogout(w http.ResponseWriter, r *http.Request) {
	if a.Backend != nil {
		if err := a.Backend.SignOut(r.Context()); err != nil {
			a.Logger.Warn("backend signout failed", zap.Error(err))
		}
	}
	a.ClearSignIn(w, r)

	toUrl := r.URL.Query().Get("to")
	if toUrl == "" {
		fmt.Fprintf(w, "Logged Out")
	} else {
		http.Redirect(w, r, toUrl, http.StatusFound)
	}
}

// CompleteSignIn sets the session and auth cookies for an authenticated
// account and redirects back to where the flow started (the callback cookie)
// or the site root.
func (a *SiteAuth) CompleteSignIn(acct *Account, w http.ResponseWriter, r *http.Request) {
	a.setLoggedInUser(acct, w, r)

	callbackURL := "/"
	if cookie, _ := r.Cookie("oauthCallbackURL"); cookie != nil && cookie.Value != "" {
		callbackURL = cookie.Value
	}
	if u, _ := url.Parse(callbackURL); u != nil && u.Scheme == "" {
		callbackURL = os.Getenv("SITEAUTH_BASE_URL") + callbackURL
	}
	// Delete the callback cookie so later redirects start fresh.
	http.SetCookie(w, &http.Cookie{
		Name:   "oauthCallbackURL",
		Value:  "",
		Path:   "/",
		MaxAge: -1, Expires: time.Now(),
	})
	http.Redirect(w, r, callbackURL, http.StatusFound)
}

// ClearSignIn clears the session and auth cookies.
func (a *SiteAuth) ClearSignIn(w http.ResponseWriter, r *http.Request) {
	a.setLoggedInUser(nil, w, r)
}

// setLoggedInUser sets (or with a nil account clears) the auth token and
// logged in user ID on every cookie domain we care about.
func (a *SiteAuth) setLoggedInUser(acct *Account, w http.ResponseWriter, r *http.Request) string {
	a.EnsureDefaults()
	domains := a.CookieDomains
	if slices.Index(a.CookieDomains, "") < 0 { // default domain
		domains = append(domains, "")
	}
	for _, cookieDomain := range domains {
		http.SetCookie(w, &http.Cookie{
			Name:   "oauthstate",
			Value:  "",
			MaxAge: -1, Expires: time.Now(),
			Domain: cookieDomain,
			Path:   "/",
		})

		if acct == nil {
			if a.Session != nil {
				if err := a.Session.Clear(r.Context()); err != nil {
					a.Logger.Warn("error clearing session", zap.Error(err))
				}
			}
			http.SetCookie(w, &http.Cookie{
				Name:    "loggedInUserId",
				Domain:  cookieDomain,
				Path:    "/",
				MaxAge:  -1,
				Expires: time.Now(),
			})
			http.SetCookie(w, &http.Cookie{
				Name:    a.AuthTokenSessionVar,
				Domain:  cookieDomain,
				Path:    "/",
				MaxAge:  -1,
				Expires: time.Now(),
			})
			continue
		}

		if a.Session != nil {
			a.Session.Put(r.Context(), "loggedInUserId", acct.UID)
		}
		http.SetCookie(w, &http.Cookie{
			Name:    "loggedInUserId",
			Value:   acct.UID,
			Domain:  cookieDomain,
			Path:    "/",
			Expires: time.Now().Add(time.Second * time.Duration(a.SessionTimeoutInSeconds)),
			MaxAge:  a.SessionTimeoutInSeconds,
		})

		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": acct.UID,
			"iss": a.JwtIssuer,
			"aud": "member",
			"exp": time.Now().Add(time.Hour).Unix(),
			"iat": time.Now().Unix(),
		})
		tokenString, err := token.SignedString([]byte(a.JWTSecretKey))
		if err != nil {
			a.Logger.Warn("error signing token", zap.Error(err))
		}

		if a.Session != nil {
			a.Session.Put(r.Context(), a.AuthTokenSessionVar, tokenString)
		}
		http.SetCookie(w, &http.Cookie{
			Name:    a.AuthTokenSessionVar,
			Value:   tokenString,
			Domain:  cookieDomain,
			Path:    "/",
			Expires: time.Now().Add(time.Second * time.Duration(a.SessionTimeoutInSeconds)),
			MaxAge:  a.SessionTimeoutInSeconds,
		})
		return tokenString
	}
	return ""
}
