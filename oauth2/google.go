// Package oauth2 implements the Google redirect sign-in flow. It owns the
// state cookie, the code exchange and the userinfo fetch; what happens with
// the authenticated identity is delegated to a HandleUserFunc.
package oauth2

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleOAuth2 serves /login (redirect to Google) and /callback/ (code
// exchange) under whatever prefix it is mounted at.
type GoogleOAuth2 struct {
	HandleUser HandleUserFunc
	Logger     *zap.Logger

	config oauth2.Config
	mux    *http.ServeMux
}

// NewGoogleOAuth2 builds the Google flow. Empty arguments fall back to the
// OAUTH2_GOOGLE_* environment variables.
func NewGoogleOAuth2(clientID, clientSecret, callbackURL string, handleUser HandleUserFunc) *GoogleOAuth2 {
	if clientID == "" {
		clientID = os.Getenv("OAUTH2_GOOGLE_CLIENT_ID")
	}
	if clientSecret == "" {
		clientSecret = os.Getenv("OAUTH2_GOOGLE_CLIENT_SECRET")
	}
	if callbackURL == "" {
		callbackURL = os.Getenv("OAUTH2_GOOGLE_CALLBACK_URL")
	}

	g := &GoogleOAuth2{
		HandleUser: handleUser,
		Logger:     zap.NewNop(),
		mux:        http.NewServeMux(),
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
	}
	g.mux.HandleFunc("/login", Redirector(&g.config))
	g.mux.HandleFunc("/callback/", g.handleCallback)
	return g
}

func (g *GoogleOAuth2) Handler() http.Handler { return g.mux }

func (g *GoogleOAuth2) handleCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, _ := r.Cookie(stateCookieName)
	if stateCookie == nil {
		http.Error(w, "missing oauth state", http.StatusBadRequest)
		return
	}
	if r.FormValue("state") != stateCookie.Value {
		http.SetCookie(w, &http.Cookie{Name: stateCookieName, MaxAge: -1, Path: "/"})
		g.Logger.Warn("oauth state mismatch")
		http.Error(w, "invalid oauth state", http.StatusBadRequest)
		return
	}

	token, err := g.config.Exchange(r.Context(), r.FormValue("code"))
	if err != nil {
		g.Logger.Error("code exchange failed", zap.Error(err))
		http.Redirect(w, r, "/auth/google/fail/", http.StatusTemporaryRedirect)
		return
	}

	userInfo, err := g.fetchUserInfo(token)
	if err != nil {
		g.Logger.Error("userinfo fetch failed", zap.Error(err))
		http.Redirect(w, r, "/auth/google/fail/", http.StatusTemporaryRedirect)
		return
	}

	g.HandleUser("google", token, userInfo, w, r)
}

func (g *GoogleOAuth2) fetchUserInfo(token *oauth2.Token) (map[string]any, error) {
	resp, err := http.Get(googleUserInfoURL + "?access_token=" + token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed getting user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed reading userinfo response: %w", err)
	}

	var userInfo map[string]any
	if err := json.Unmarshal(body, &userInfo); err != nil {
		return nil, err
	}
	return userInfo, nil
}
