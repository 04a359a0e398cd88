package stores

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	sa "github.com/loomline/siteauth"
)

// accountRecord is the on-disk shape of a DevBackend account.
type accountRecord struct {
	UID           string    `json:"uid"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"display_name"`
	PhotoURL      string    `json:"photo_url,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	PasswordHash  string    `json:"password_hash,omitempty"`
	Methods       []string  `json:"methods"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (r *accountRecord) account() *sa.Account {
	return &sa.Account{
		UID:           r.UID,
		DisplayName:   r.DisplayName,
		Email:         r.Email,
		EmailVerified: r.EmailVerified,
		PhotoURL:      r.PhotoURL,
	}
}

// DevBackend is a filesystem-backed IdentityBackend for development and
// tests. Accounts live under <storagePath>/accounts keyed by email, with a
// uid index under <storagePath>/account_ids. It is not meant for production
// traffic; swap in a hosted identity service behind the same interface.
type DevBackend struct {
	StoragePath string

	tokens  sa.TokenStore
	emails  sa.SendEmail
	limiter sa.RateLimiter
	baseURL string

	mu        sync.Mutex
	current   *sa.Account
	listeners map[int]func(*sa.Account)
	nextID    int
	redirect  *sa.RedirectResult
}

// DevBackendOption configures a DevBackend.
type DevBackendOption func(*DevBackend)

// WithTokenStore sets the store used for verification, reset and sign-in
// link tokens. Without one the email flows return an error.
func WithTokenStore(ts sa.TokenStore) DevBackendOption {
	return func(b *DevBackend) { b.tokens = ts }
}

// WithEmailSender sets the sender used for verification, reset and sign-in
// link emails.
func WithEmailSender(sender sa.SendEmail) DevBackendOption {
	return func(b *DevBackend) { b.emails = sender }
}

// WithBaseURL sets the base URL embedded in emailed links.
func WithBaseURL(baseURL string) DevBackendOption {
	return func(b *DevBackend) { b.baseURL = strings.TrimSuffix(baseURL, "/") }
}

// WithRateLimiter limits SignIn attempts per email.
func WithRateLimiter(limiter sa.RateLimiter) DevBackendOption {
	return func(b *DevBackend) { b.limiter = limiter }
}

func NewDevBackend(storagePath string, opts ...DevBackendOption) *DevBackend {
	b := &DevBackend{
		StoragePath: storagePath,
		baseURL:     "http://localhost:8080",
		listeners:   map[int]func(*sa.Account){},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// escapeEmail makes an email safe to use as a filename.
func escapeEmail(email string) string {
	return url.QueryEscape(strings.ToLower(email))
}

func (b *DevBackend) accountPath(email string) string {
	return filepath.Join(b.StoragePath, "accounts", escapeEmail(email)+".json")
}

func (b *DevBackend) uidIndexPath(uid string) string {
	return filepath.Join(b.StoragePath, "account_ids", uid+".json")
}

func (b *DevBackend) readAccount(email string) (*accountRecord, error) {
	var rec accountRecord
	err := readJSONFile(b.accountPath(email), &rec, sa.NewBackendError(sa.ErrCodeUserNotFound))
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (b *DevBackend) readAccountByUID(uid string) (*accountRecord, error) {
	var idx struct {
		Email string `json:"email"`
	}
	err := readJSONFile(b.uidIndexPath(uid), &idx, sa.NewBackendError(sa.ErrCodeUserNotFound))
	if err != nil {
		return nil, err
	}
	return b.readAccount(idx.Email)
}

func (b *DevBackend) writeAccount(rec *accountRecord) error {
	rec.UpdatedAt = time.Now()
	if err := writeJSONFile(b.accountPath(rec.Email), rec); err != nil {
		return err
	}
	return writeJSONFile(b.uidIndexPath(rec.UID), map[string]string{"email": rec.Email})
}

// setCurrent publishes a new session state to every registered listener.
// Listeners run synchronously so a caller observes the transition before
// the triggering operation returns.
func (b *DevBackend) setCurrent(account *sa.Account) {
	b.mu.Lock()
	b.current = account
	fns := make([]func(*sa.Account), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(account)
	}
}

func (b *DevBackend) CreateAccount(ctx context.Context, email, password string) (*sa.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if _, err := b.readAccount(email); err == nil {
		return nil, sa.NewBackendError(sa.ErrCodeEmailExists)
	} else if sa.BackendCode(err) != sa.ErrCodeUserNotFound {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	rec := &accountRecord{
		UID:          uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Methods:      []string{sa.SignInMethodPassword},
		CreatedAt:    time.Now(),
	}
	if err := b.writeAccount(rec); err != nil {
		return nil, err
	}
	return rec.account(), nil
}

func (b *DevBackend) SignIn(ctx context.Context, email, password string) (*sa.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if b.limiter != nil && !b.limiter.Allow(email) {
		return nil, sa.NewBackendError(sa.ErrCodeTooManyRequests)
	}

	rec, err := b.readAccount(email)
	if err != nil {
		return nil, err
	}
	if rec.PasswordHash == "" {
		return nil, sa.NewBackendError(sa.ErrCodeWrongPassword)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		return nil, sa.NewBackendError(sa.ErrCodeWrongPassword)
	}

	account := rec.account()
	b.setCurrent(account)
	return account, nil
}

func (b *DevBackend) SignOut(ctx context.Context) error {
	b.setCurrent(nil)
	return nil
}

func (b *DevBackend) SendPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	rec, err := b.readAccount(email)
	if err != nil {
		return err
	}
	if b.tokens == nil || b.emails == nil {
		return fmt.Errorf("password reset requires a token store and an email sender")
	}

	token, err := b.tokens.CreateToken(rec.UID, email, sa.TokenTypePasswordReset, sa.TokenExpiryPasswordReset)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/auth/reset-password?token=%s", b.baseURL, token.Token)
	return b.emails.SendPasswordResetEmail(email, link)
}

func (b *DevBackend) UpdatePassword(ctx context.Context, uid, password string) error {
	rec, err := b.readAccountByUID(uid)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	rec.PasswordHash = string(hash)
	if !hasMethod(rec.Methods, sa.SignInMethodPassword) {
		rec.Methods = append(rec.Methods, sa.SignInMethodPassword)
	}
	return b.writeAccount(rec)
}

func (b *DevBackend) CompletePasswordReset(ctx context.Context, token, password string) error {
	if b.tokens == nil {
		return fmt.Errorf("password reset requires a token store")
	}
	authToken, err := b.tokens.GetToken(token)
	if err != nil || !authToken.IsValid(sa.TokenTypePasswordReset) {
		return sa.NewBackendError(sa.ErrCodeInvalidToken)
	}
	if err := b.UpdatePassword(ctx, authToken.UID, password); err != nil {
		return err
	}
	return b.tokens.DeleteToken(token)
}

func (b *DevBackend) SendSignInLink(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if b.tokens == nil || b.emails == nil {
		return fmt.Errorf("sign-in links require a token store and an email sender")
	}

	// The account may not exist yet; it is created when the link completes.
	uid := ""
	if rec, err := b.readAccount(email); err == nil {
		uid = rec.UID
	}

	token, err := b.tokens.CreateToken(uid, email, sa.TokenTypeSignInLink, sa.TokenExpirySignInLink)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/auth/link/complete?email=%s&token=%s",
		b.baseURL, url.QueryEscape(email), token.Token)
	return b.emails.SendSignInLinkEmail(email, link)
}

func (b *DevBackend) CompleteSignInLink(ctx context.Context, email, token string) (*sa.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if b.tokens == nil {
		return nil, fmt.Errorf("sign-in links require a token store")
	}

	authToken, err := b.tokens.GetToken(token)
	if err != nil || !authToken.IsValid(sa.TokenTypeSignInLink) || !strings.EqualFold(authToken.Email, email) {
		return nil, sa.NewBackendError(sa.ErrCodeInvalidToken)
	}

	rec, err := b.readAccount(email)
	if sa.BackendCode(err) == sa.ErrCodeUserNotFound {
		rec = &accountRecord{
			UID:       uuid.NewString(),
			Email:     email,
			CreatedAt: time.Now(),
		}
		err = nil
	}
	if err != nil {
		return nil, err
	}

	// Completing an emailed link proves ownership of the address.
	rec.EmailVerified = true
	if !hasMethod(rec.Methods, sa.SignInMethodEmailLink) {
		rec.Methods = append(rec.Methods, sa.SignInMethodEmailLink)
	}
	if err := b.writeAccount(rec); err != nil {
		return nil, err
	}
	if err := b.tokens.DeleteToken(token); err != nil {
		return nil, err
	}

	account := rec.account()
	b.setCurrent(account)
	return account, nil
}

func (b *DevBackend) SignInWithRedirect(ctx context.Context, provider string) (string, error) {
	if provider != sa.ProviderGoogle {
		return "", fmt.Errorf("unsupported provider: %s", provider)
	}
	return "/auth/" + provider + "/login", nil
}

// CompleteProviderSignIn records the outcome of a provider redirect flow.
// The oauth2 callback handler calls this after exchanging the code; the
// staged result is delivered once through RedirectResult.
func (b *DevBackend) CompleteProviderSignIn(provider, email, displayName, photoURL string, token *oauth2.Token) (*sa.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	rec, err := b.readAccount(email)
	if sa.BackendCode(err) == sa.ErrCodeUserNotFound {
		rec = &accountRecord{
			UID:       uuid.NewString(),
			Email:     email,
			CreatedAt: time.Now(),
		}
		err = nil
	}
	if err != nil {
		return nil, err
	}

	rec.EmailVerified = true
	if rec.DisplayName == "" {
		rec.DisplayName = displayName
	}
	if photoURL != "" {
		rec.PhotoURL = photoURL
	}
	if !hasMethod(rec.Methods, sa.SignInMethodGoogle) {
		rec.Methods = append(rec.Methods, sa.SignInMethodGoogle)
	}
	if err := b.writeAccount(rec); err != nil {
		return nil, err
	}

	account := rec.account()

	b.mu.Lock()
	b.redirect = &sa.RedirectResult{Provider: provider, Account: account, Token: token}
	b.mu.Unlock()

	b.setCurrent(account)
	return account, nil
}

func (b *DevBackend) RedirectResult(ctx context.Context) (*sa.RedirectResult, error) {
	b.mu.Lock()
	result := b.redirect
	b.redirect = nil
	b.mu.Unlock()
	return result, nil
}

func (b *DevBackend) SendEmailVerification(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	rec, err := b.readAccount(email)
	if err != nil {
		return err
	}
	if rec.EmailVerified {
		return nil
	}
	if b.tokens == nil || b.emails == nil {
		return fmt.Errorf("email verification requires a token store and an email sender")
	}

	token, err := b.tokens.CreateToken(rec.UID, email, sa.TokenTypeEmailVerification, sa.TokenExpiryEmailVerification)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/auth/verify-email?token=%s", b.baseURL, token.Token)
	return b.emails.SendVerificationEmail(email, link)
}

func (b *DevBackend) VerifyEmail(ctx context.Context, token string) error {
	if b.tokens == nil {
		return fmt.Errorf("email verification requires a token store")
	}
	authToken, err := b.tokens.GetToken(token)
	if err != nil || !authToken.IsValid(sa.TokenTypeEmailVerification) {
		return sa.NewBackendError(sa.ErrCodeInvalidToken)
	}

	rec, err := b.readAccount(authToken.Email)
	if err != nil {
		return err
	}
	rec.EmailVerified = true
	if err := b.writeAccount(rec); err != nil {
		return err
	}
	if err := b.tokens.DeleteToken(token); err != nil {
		return err
	}

	// Republish if the verified account is the current session.
	b.mu.Lock()
	isCurrent := b.current != nil && b.current.UID == rec.UID
	b.mu.Unlock()
	if isCurrent {
		b.setCurrent(rec.account())
	}
	return nil
}

func (b *DevBackend) UpdateProfile(ctx context.Context, uid, displayName, photoURL string) error {
	rec, err := b.readAccountByUID(uid)
	if err != nil {
		return err
	}
	rec.DisplayName = displayName
	if photoURL != "" {
		rec.PhotoURL = photoURL
	}
	if err := b.writeAccount(rec); err != nil {
		return err
	}

	b.mu.Lock()
	isCurrent := b.current != nil && b.current.UID == uid
	b.mu.Unlock()
	if isCurrent {
		b.setCurrent(rec.account())
	}
	return nil
}

func (b *DevBackend) SignInMethods(ctx context.Context, email string) ([]string, error) {
	rec, err := b.readAccount(email)
	if err != nil {
		if sa.BackendCode(err) == sa.ErrCodeUserNotFound {
			return nil, nil
		}
		return nil, err
	}
	return append([]string(nil), rec.Methods...), nil
}

func (b *DevBackend) CurrentAccount(ctx context.Context) (*sa.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return nil, nil
	}
	copied := *b.current
	return &copied, nil
}

func (b *DevBackend) OnSessionChanged(fn func(*sa.Account)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	current := b.current
	b.mu.Unlock()

	// Deliver the current state immediately so new listeners never wait for
	// the next transition.
	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

func hasMethod(methods []string, method string) bool {
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}
