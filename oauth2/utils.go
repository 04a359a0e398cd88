package oauth2

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// HandleUserFunc receives the validated provider identity at the end of a
// redirect flow. The application signs the user in (or links the account)
// and issues the final redirect.
type HandleUserFunc func(provider string, token *oauth2.Token, userInfo map[string]any, w http.ResponseWriter, r *http.Request)

const (
	stateCookieName    = "oauthstate"
	callbackCookieName = "oauthCallbackURL"
)

func generateStateCookie(w http.ResponseWriter) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	state := base64.URLEncoding.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:    stateCookieName,
		Value:   state,
		Path:    "/",
		Expires: time.Now().Add(30 * 24 * time.Hour),
	})
	return state, nil
}

// Redirector starts the provider flow: it stashes the post-auth destination
// and a CSRF state in cookies, then sends the user agent to the provider.
func Redirector(cfg *oauth2.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if callbackURL := r.URL.Query().Get("callbackURL"); callbackURL != "" {
			http.SetCookie(w, &http.Cookie{
				Name:  callbackCookieName,
				Value: callbackURL,
				Path:  "/",
				// keep this short
				MaxAge: 120,
			})
		}
		state, err := generateStateCookie(w)
		if err != nil {
			http.Error(w, "could not start sign-in", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, cfg.AuthCodeURL(state), http.StatusFound)
	}
}
