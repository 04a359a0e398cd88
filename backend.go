package siteauth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// Providers and sign-in methods reported by the identity backend.
const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"

	SignInMethodPassword  = "password"
	SignInMethodEmailLink = "email_link"
	SignInMethodGoogle    = "google"
)

// Account is the identity reported by the backend for the current session.
type Account struct {
	UID           string `json:"uid"`
	DisplayName   string `json:"display_name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	PhotoURL      string `json:"photo_url,omitempty"`
}

// RedirectResult is the continuation of a provider redirect flow. Token is
// nil when the current load is not the tail end of a redirect that produced
// a credential.
type RedirectResult struct {
	Provider string
	Account  *Account
	Token    *oauth2.Token
}

// IdentityBackend is the external identity service consumed by this package.
// All durable account and credential state lives behind this contract; the
// package only calls it and reacts to its callbacks. Implementations return
// BackendError values for categorized failures.
type IdentityBackend interface {
	// CreateAccount registers a new email/password account. The account
	// starts unverified.
	CreateAccount(ctx context.Context, email, password string) (*Account, error)

	// SignIn authenticates with email and password. It succeeds even for
	// unverified accounts; the session layer decides what to do with those.
	SignIn(ctx context.Context, email, password string) (*Account, error)

	// SignOut clears the backend's current session.
	SignOut(ctx context.Context) error

	// SendPasswordReset emails a password reset link.
	SendPasswordReset(ctx context.Context, email string) error

	// UpdatePassword replaces the password for the given account.
	UpdatePassword(ctx context.Context, uid, password string) error

	// CompletePasswordReset consumes a reset token and sets a new password.
	CompletePasswordReset(ctx context.Context, token, password string) error

	// SendSignInLink emails a passwordless sign-in link.
	SendSignInLink(ctx context.Context, email string) error

	// CompleteSignInLink consumes a sign-in link token and signs the email
	// in, creating the account on first use.
	CompleteSignInLink(ctx context.Context, email, token string) (*Account, error)

	// SignInWithRedirect starts a provider redirect flow and returns the URL
	// the user agent should be sent to.
	SignInWithRedirect(ctx context.Context, provider string) (authURL string, err error)

	// RedirectResult reports whether the current load continues a provider
	// redirect. A nil result means no redirect is pending. The result is
	// consumed: a second call returns nil.
	RedirectResult(ctx context.Context) (*RedirectResult, error)

	// SendEmailVerification emails a verification link for the account
	// registered under email.
	SendEmailVerification(ctx context.Context, email string) error

	// VerifyEmail consumes a verification token and marks its email verified.
	VerifyEmail(ctx context.Context, token string) error

	// UpdateProfile updates display name and photo URL. Empty photoURL
	// leaves the stored value alone.
	UpdateProfile(ctx context.Context, uid, displayName, photoURL string) error

	// SignInMethods lists the sign-in methods registered for an email.
	// Unknown emails yield an empty slice, not an error.
	SignInMethods(ctx context.Context, email string) ([]string, error)

	// CurrentAccount returns the backend's current session identity, or nil.
	CurrentAccount(ctx context.Context) (*Account, error)

	// OnSessionChanged registers a session listener. The listener fires once
	// with the current state at registration time and again on every change,
	// with nil for signed-out. The returned cancel releases the registration
	// and is safe to call more than once.
	OnSessionChanged(fn func(*Account)) (cancel func())
}

// ErrProfileNotFound is returned by ProfileStore implementations when no
// document exists for the requested uid.
var ErrProfileNotFound = errors.New("profile not found")

// Profile is the per-user document stored alongside the account. The stored
// FullName wins over the backend display name when they disagree.
type Profile struct {
	UID       string    `json:"uid"`
	FullName  string    `json:"fullname"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileStore is the external document store holding one Profile per uid.
type ProfileStore interface {
	GetProfile(ctx context.Context, uid string) (*Profile, error)
	PutProfile(ctx context.Context, profile *Profile) error
}
