// Command siteauthd serves the Loomline marketing site's authentication
// surface: the auth form endpoints, the Google redirect flow and the guarded
// marketing pages, backed by the filesystem dev backend.
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	goauth2 "golang.org/x/oauth2"

	siteauth "github.com/loomline/siteauth"
	sitegoogle "github.com/loomline/siteauth/oauth2"
	"github.com/loomline/siteauth/stores"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := siteauth.LoadConfig()
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	var emailSender siteauth.SendEmail
	if cfg.SMTPHost != "" {
		emailSender = &siteauth.SMTPEmailSender{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}
	} else {
		emailSender = &siteauth.ConsoleEmailSender{Logger: logger}
	}

	backendOpts := []stores.DevBackendOption{
		stores.WithTokenStore(stores.NewFSTokenStore(cfg.StoragePath)),
		stores.WithEmailSender(emailSender),
		stores.WithBaseURL(cfg.BaseURL),
	}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		limiter := siteauth.NewRedisRateLimiter(client, 10, time.Minute, logger)
		backendOpts = append(backendOpts, stores.WithRateLimiter(limiter))
	}
	backend := stores.NewDevBackend(cfg.StoragePath, backendOpts...)
	profiles := stores.NewFSProfileStore(cfg.StoragePath)

	notifier := siteauth.NewNotifier()
	defer notifier.Close()
	overlay := siteauth.NewOverlay()

	coordinator := siteauth.NewCoordinator(backend, profiles,
		siteauth.WithOverlay(overlay),
		siteauth.WithCoordinatorNotifier(notifier),
		siteauth.WithLogger(logger))
	coordinator.Start(context.Background())
	defer coordinator.Close()

	site := siteauth.New("Loomline")
	site.Logger = logger
	site.Backend = backend
	site.Coordinator = coordinator
	site.JWTSecretKey = cfg.JWTSecretKey
	site.Session = scs.New()
	site.Session.Lifetime = 24 * time.Hour

	forms := &siteauth.FormHandlers{
		Backend:     backend,
		Profiles:    profiles,
		Coordinator: coordinator,
		Notifier:    notifier,
		Middleware:  &site.Middleware,
		Logger:      logger,
		OnAuth:      site.CompleteSignIn,
	}
	site.AddAuth("/auth", forms.Handler())

	google := sitegoogle.NewGoogleOAuth2(
		cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL,
		func(provider string, token *goauth2.Token, userInfo map[string]any, w http.ResponseWriter, r *http.Request) {
			email, _ := userInfo["email"].(string)
			name, _ := userInfo["name"].(string)
			picture, _ := userInfo["picture"].(string)
			acct, err := backend.CompleteProviderSignIn(provider, email, name, picture, token)
			if err != nil {
				logger.Error("provider sign-in failed", zap.String("provider", provider), zap.Error(err))
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
			coordinator.ResolveRedirect(r.Context())
			site.CompleteSignIn(acct, w, r)
		})
	google.Logger = logger
	site.AddAuth("/auth/google", google.Handler())

	guard := siteauth.NewRouteGuard(coordinator, []siteauth.Route{
		{Path: "/", Visibility: siteauth.VisibleAlways, Handler: page("Loomline")},
		{Path: "/collections", Visibility: siteauth.VisibleAlways, Handler: page("Collections")},
		{Path: "/login", Visibility: siteauth.HideWhenAuthenticated, Handler: page("Log in")},
		{Path: "/signup", Visibility: siteauth.HideWhenAuthenticated, Handler: page("Sign up")},
		{Path: "/forgot-password", Visibility: siteauth.HideWhenAuthenticated, Handler: page("Forgot password")},
		{Path: "/account", Visibility: siteauth.HideWhenUnauthenticated, Handler: page("Your account")},
		{Path: "/account/profile", Visibility: siteauth.HideWhenUnauthenticated, Handler: page("Complete your profile")},
	}, siteauth.WithLanding("/"))

	root := http.NewServeMux()
	root.Handle("/auth/", site.Handler())
	root.Handle("/logout", site.Handler())
	root.Handle("/", guard)

	addr := ":" + cfg.HTTPPort
	logger.Info("listening", zap.String("addr", addr))
	server := &http.Server{
		Addr:         addr,
		Handler:      site.Session.LoadAndSave(root),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func page(title string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<!DOCTYPE html><html><head><title>%s</title></head><body><h1>%s</h1></body></html>", title, title)
	})
}
