// Package siteauth provides the authentication and session layer for the
// Loomline marketing site.
//
// The package coordinates multiple sign-in methods (email/password,
// passwordless email links, Google) against an external identity backend,
// and owns the client-facing state around them: per-form field validation,
// the session state machine, transient notifications, a loading overlay and
// session-aware route guarding. All durable state — accounts, credentials
// and the per-user profile document — lives behind the IdentityBackend and
// ProfileStore contracts.
//
// # Architecture
//
// Coordinator: the application-scoped session store. It registers exactly
// one session listener with the backend for its lifetime, reconciles the
// stored profile document into the published identity before any transition
// is observable, and republishes state to subscribers.
//
// Form: a per-form state container binding field values to validators.
// Submit is enabled only when every tracked field is valid, a submission in
// flight blocks re-submission, and backend failures are mapped to field
// errors or a retry notification.
//
// RouteGuard: matches paths against visibility-tagged routes, excluding
// log-in/sign-up pages while a session exists and account pages while none
// does, and holds guarded paths back until the session has resolved.
//
// # Basic Usage
//
// Wire the stores and the coordinator:
//
//	backend := stores.NewDevBackend(storagePath,
//	    stores.WithTokenStore(stores.NewFSTokenStore(storagePath)),
//	    stores.WithEmailSender(&siteauth.ConsoleEmailSender{}),
//	    stores.WithBaseURL("https://loomline.example"))
//	profiles := stores.NewFSProfileStore(storagePath)
//
//	notifier := siteauth.NewNotifier()
//	overlay := siteauth.NewOverlay()
//	coordinator := siteauth.NewCoordinator(backend, profiles,
//	    siteauth.WithOverlay(overlay),
//	    siteauth.WithCoordinatorNotifier(notifier))
//	coordinator.Start(ctx)
//	defer coordinator.Close()
//
// Mount the form handlers:
//
//	site := siteauth.New("Loomline")
//	site.Backend = backend
//	site.Coordinator = coordinator
//	forms := &siteauth.FormHandlers{
//	    Backend:     backend,
//	    Profiles:    profiles,
//	    Coordinator: coordinator,
//	    Notifier:    notifier,
//	    Middleware:  &site.Middleware,
//	    OnAuth:      site.CompleteSignIn,
//	}
//	site.AddAuth("/auth", forms.Handler())
//
// # Testing
//
// Handlers can be tested without a running server using httptest.NewRequest
// and httptest.ResponseRecorder against a DevBackend in a temporary
// directory.
package siteauth
