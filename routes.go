package siteauth

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

// Visibility tags a route with the session states it is reachable from.
type Visibility int

const (
	// VisibleAlways routes match regardless of session state.
	VisibleAlways Visibility = iota

	// HideWhenAuthenticated routes (log-in, sign-up) are excluded from
	// matching while a session exists.
	HideWhenAuthenticated

	// HideWhenUnauthenticated routes (account pages) are excluded from
	// matching without a session.
	HideWhenUnauthenticated
)

// Route is one guarded path.
type Route struct {
	Path       string
	Visibility Visibility
	Handler    http.Handler
}

// RouteGuard matches paths against visibility-tagged routes using the
// coordinator's session state. Guarded routes are not evaluated until the
// session is resolved, so no authenticated or unauthenticated content
// flashes while the backend is still answering. Unmatched paths fall through
// to a not-found page with an exit link to the landing route.
type RouteGuard struct {
	coordinator *Coordinator
	router      *mux.Router
	guarded     *mux.Router
	landing     string
	resolving   http.Handler
}

// RouteGuardOption configures a RouteGuard.
type RouteGuardOption func(*RouteGuard)

// WithLanding sets the landing route used by the not-found exit link.
func WithLanding(path string) RouteGuardOption {
	return func(g *RouteGuard) { g.landing = path }
}

// WithResolvingHandler overrides the response served for guarded paths while
// the session is still resolving.
func WithResolvingHandler(h http.Handler) RouteGuardOption {
	return func(g *RouteGuard) { g.resolving = h }
}

// NewRouteGuard builds a guard over the given routes.
func NewRouteGuard(coordinator *Coordinator, routes []Route, opts ...RouteGuardOption) *RouteGuard {
	g := &RouteGuard{
		coordinator: coordinator,
		router:      mux.NewRouter(),
		guarded:     mux.NewRouter(),
		landing:     "/",
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.resolving == nil {
		g.resolving = http.HandlerFunc(g.serveResolving)
	}
	g.router.NotFoundHandler = http.HandlerFunc(g.serveNotFound)

	for _, route := range routes {
		r := g.router.Handle(route.Path, route.Handler)
		if route.Visibility == VisibleAlways {
			continue
		}
		vis := route.Visibility
		r.MatcherFunc(func(*http.Request, *mux.RouteMatch) bool {
			return g.allows(vis)
		})
		// Track guarded paths separately so resolution gating can tell
		// whether a request would touch session-dependent content.
		g.guarded.Handle(route.Path, route.Handler)
	}
	return g
}

func (g *RouteGuard) allows(vis Visibility) bool {
	switch vis {
	case HideWhenAuthenticated:
		return g.coordinator.State().Phase != PhaseAuthenticated
	case HideWhenUnauthenticated:
		return g.coordinator.State().Phase == PhaseAuthenticated
	}
	return true
}

// ServeHTTP routes the request. Requests for guarded paths are answered with
// the resolving handler until the first backend notification arrives.
func (g *RouteGuard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !g.coordinator.Resolved() {
		var match mux.RouteMatch
		if g.guarded.Match(r, &match) {
			g.resolving.ServeHTTP(w, r)
			return
		}
	}
	g.router.ServeHTTP(w, r)
}

func (g *RouteGuard) serveResolving(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "1")
	http.Error(w, "session resolving", http.StatusServiceUnavailable)
}

func (g *RouteGuard) serveNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Page not found</title></head>
<body>
<h1>Page not found</h1>
<p><a href="%s">Back to Loomline</a></p>
</body>
</html>`, g.landing)
}
