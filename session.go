package siteauth

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// SessionPhase is the coordinator's position in its state machine.
type SessionPhase int

const (
	// PhaseResolving holds until the first backend session notification.
	PhaseResolving SessionPhase = iota
	PhaseAuthenticated
	PhaseUnauthenticated
)

func (p SessionPhase) String() string {
	switch p {
	case PhaseResolving:
		return "resolving"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseUnauthenticated:
		return "unauthenticated"
	}
	return "unknown"
}

// SessionState is the coordinator's published state. Identity is non-nil
// only in PhaseAuthenticated.
type SessionState struct {
	Phase        SessionPhase
	Identity     *Account
	Passwordless bool
}

// Resolved reports whether the first backend notification has arrived.
func (s SessionState) Resolved() bool { return s.Phase != PhaseResolving }

// Coordinator is the application-scoped session store. It registers exactly
// one session listener with the identity backend for its lifetime and
// republishes transitions to its own subscribers. Mutation happens only
// through its named operations.
type Coordinator struct {
	backend  IdentityBackend
	profiles ProfileStore
	overlay  *Overlay
	notifier *Notifier
	logger   *zap.Logger

	landing  string
	navigate func(path string)

	mu        sync.Mutex
	state     SessionState
	listeners map[int]func(SessionState)
	next      int

	startOnce    sync.Once
	cancelListen func()
	ctx          context.Context
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithOverlay ties the loading overlay to session resolution.
func WithOverlay(o *Overlay) CoordinatorOption {
	return func(c *Coordinator) { c.overlay = o }
}

// WithCoordinatorNotifier routes coordinator-level failures to a notifier.
func WithCoordinatorNotifier(n *Notifier) CoordinatorOption {
	return func(c *Coordinator) { c.notifier = n }
}

// WithLogger sets the coordinator's logger.
func WithLogger(logger *zap.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = logger }
}

// WithNavigation sets the navigation callback and landing path used when a
// provider redirect completes with a credential.
func WithNavigation(landing string, navigate func(path string)) CoordinatorOption {
	return func(c *Coordinator) {
		c.landing = landing
		c.navigate = navigate
	}
}

// NewCoordinator creates a coordinator in PhaseResolving. Call Start to
// register with the backend.
func NewCoordinator(backend IdentityBackend, profiles ProfileStore, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		backend:   backend,
		profiles:  profiles,
		logger:    zap.NewNop(),
		landing:   "/",
		state:     SessionState{Phase: PhaseResolving},
		listeners: make(map[int]func(SessionState)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start registers the session listener with the backend. It is idempotent:
// repeated calls (remounts) never register a second listener.
func (c *Coordinator) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		c.ctx = ctx
		if c.overlay != nil {
			c.overlay.Begin()
		}
		c.cancelListen = c.backend.OnSessionChanged(c.onSessionChanged)
	})
}

// Close releases the backend listener registration. Safe to call without a
// prior Start and safe to call twice.
func (c *Coordinator) Close() {
	if c.cancelListen != nil {
		c.cancelListen()
		c.cancelListen = nil
	}
}

// State returns the current published state.
func (c *Coordinator) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Resolved reports whether the first backend notification has arrived.
func (c *Coordinator) Resolved() bool {
	return c.State().Resolved()
}

// Subscribe registers a listener called after every published transition.
func (c *Coordinator) Subscribe(fn func(SessionState)) (cancel func()) {
	c.mu.Lock()
	id := c.next
	c.next++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// SetPasswordless records that the user chose the email-link flow. The flag
// lives on the coordinator so it survives navigation between the log-in and
// sign-up pages.
func (c *Coordinator) SetPasswordless(v bool) {
	c.mu.Lock()
	if c.state.Passwordless == v {
		c.mu.Unlock()
		return
	}
	c.state.Passwordless = v
	c.mu.Unlock()
	c.publish()
}

// ResetPasswordless clears the passwordless flag; called when the relevant
// form unmounts.
func (c *Coordinator) ResetPasswordless() { c.SetPasswordless(false) }

// SignOut clears the backend session. The resulting state transition arrives
// through the session listener like any other.
func (c *Coordinator) SignOut(ctx context.Context) error {
	return c.backend.SignOut(ctx)
}

// UpdateDisplayName pushes a completed profile name to the backend and the
// profile document, then updates the published identity.
func (c *Coordinator) UpdateDisplayName(ctx context.Context, fullname string) error {
	st := c.State()
	if st.Phase != PhaseAuthenticated {
		return errors.New("no authenticated session")
	}

	if err := c.profiles.PutProfile(ctx, &Profile{UID: st.Identity.UID, FullName: fullname}); err != nil {
		return err
	}
	if err := c.backend.UpdateProfile(ctx, st.Identity.UID, fullname, ""); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state.Phase == PhaseAuthenticated && c.state.Identity.UID == st.Identity.UID {
		identity := *c.state.Identity
		identity.DisplayName = fullname
		c.state.Identity = &identity
	}
	c.mu.Unlock()
	c.publish()
	return nil
}

// ResolveRedirect asks the backend whether the current load continues a
// provider redirect. A credential-carrying result triggers navigation to the
// landing route. This runs independently of the session-changed handling.
func (c *Coordinator) ResolveRedirect(ctx context.Context) {
	result, err := c.backend.RedirectResult(ctx)
	if err != nil {
		c.logger.Warn("redirect result check failed", zap.Error(err))
		if c.notifier != nil {
			c.notifier.Show(MsgGenericFailure)
		}
		return
	}
	if result == nil || result.Token == nil {
		return
	}
	c.logger.Info("provider redirect completed", zap.String("provider", result.Provider))
	if c.navigate != nil {
		c.navigate(c.landing)
	}
}

// onSessionChanged is the single backend session listener. A missing or
// unverified account publishes unauthenticated. For verified accounts the
// stored profile document is reconciled before anything is published, so
// subscribers never observe a display name the profile later overwrites.
func (c *Coordinator) onSessionChanged(acct *Account) {
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	var next SessionState
	if acct == nil || !acct.EmailVerified {
		next = SessionState{Phase: PhaseUnauthenticated}
	} else {
		identity := *acct
		if profile, err := c.profiles.GetProfile(ctx, acct.UID); err == nil {
			if profile.FullName != "" && profile.FullName != identity.DisplayName {
				identity.DisplayName = profile.FullName
			}
		} else if !errors.Is(err, ErrProfileNotFound) {
			c.logger.Warn("profile fetch failed", zap.String("uid", acct.UID), zap.Error(err))
		}
		next = SessionState{Phase: PhaseAuthenticated, Identity: &identity}
	}

	c.mu.Lock()
	firstResolve := c.state.Phase == PhaseResolving
	next.Passwordless = c.state.Passwordless
	c.state = next
	c.mu.Unlock()

	if firstResolve && c.overlay != nil {
		c.overlay.End()
	}
	c.logger.Info("session transition", zap.String("phase", next.Phase.String()))
	c.publish()
}

func (c *Coordinator) publish() {
	c.mu.Lock()
	state := c.state
	listeners := make([]func(SessionState), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}
