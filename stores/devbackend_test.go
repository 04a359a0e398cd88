package stores

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sa "github.com/loomline/siteauth"
)

// captureEmails records the links that would have been mailed out.
type captureEmails struct {
	mu           sync.Mutex
	verification []string
	reset        []string
	signInLink   []string
}

func (c *captureEmails) SendVerificationEmail(to, link string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verification = append(c.verification, link)
	return nil
}

func (c *captureEmails) SendPasswordResetEmail(to, link string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset = append(c.reset, link)
	return nil
}

func (c *captureEmails) SendSignInLinkEmail(to, link string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signInLink = append(c.signInLink, link)
	return nil
}

// lastToken extracts the token query parameter from a captured link.
func lastToken(t *testing.T, links []string) string {
	t.Helper()
	require.NotEmpty(t, links)
	link := links[len(links)-1]
	idx := strings.LastIndex(link, "token=")
	require.GreaterOrEqual(t, idx, 0, "link %q has no token", link)
	return link[idx+len("token="):]
}

func newTestBackend(t *testing.T) (*DevBackend, *captureEmails) {
	t.Helper()
	dir := t.TempDir()
	emails := &captureEmails{}
	backend := NewDevBackend(dir,
		WithTokenStore(NewFSTokenStore(dir)),
		WithEmailSender(emails),
		WithBaseURL("https://loomline.example"))
	return backend, emails
}

func TestCreateAccountAndSignIn(t *testing.T) {
	backend, _ := newTestBackend(t)
	ctx := context.Background()

	acct, err := backend.CreateAccount(ctx, "Mara@Example.com", "Abcde1")
	require.NoError(t, err)
	assert.NotEmpty(t, acct.UID)
	assert.Equal(t, "mara@example.com", acct.Email, "emails are normalized")
	assert.False(t, acct.EmailVerified, "new accounts start unverified")

	_, err = backend.CreateAccount(ctx, "mara@example.com", "Other1")
	assert.Equal(t, sa.ErrCodeEmailExists, sa.BackendCode(err))

	signedIn, err := backend.SignIn(ctx, "mara@example.com", "Abcde1")
	require.NoError(t, err)
	assert.Equal(t, acct.UID, signedIn.UID)

	_, err = backend.SignIn(ctx, "mara@example.com", "Wrong1")
	assert.Equal(t, sa.ErrCodeWrongPassword, sa.BackendCode(err))

	_, err = backend.SignIn(ctx, "nobody@example.com", "Abcde1")
	assert.Equal(t, sa.ErrCodeUserNotFound, sa.BackendCode(err))
}

func TestSessionListener(t *testing.T) {
	backend, _ := newTestBackend(t)
	ctx := context.Background()

	_, err := backend.CreateAccount(ctx, "mara@example.com", "Abcde1")
	require.NoError(t, err)

	var events []*sa.Account
	cancel := backend.OnSessionChanged(func(acct *sa.Account) {
		events = append(events, acct)
	})
	require.Len(t, events, 1, "listener fires with current state at registration")
	assert.Nil(t, events[0])

	_, err = backend.SignIn(ctx, "mara@example.com", "Abcde1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "mara@example.com", events[1].Email)

	require.NoError(t, backend.SignOut(ctx))
	require.Len(t, events, 3)
	assert.Nil(t, events[2])

	cancel()
	cancel() // safe twice
	backend.SignOut(ctx)
	assert.Len(t, events, 3, "cancelled listener must not fire")
}

func TestEmailVerificationFlow(t *testing.T) {
	backend, emails := newTestBackend(t)
	ctx := context.Background()

	_, err := backend.CreateAccount(ctx, "mara@example.com", "Abcde1")
	require.NoError(t, err)

	require.NoError(t, backend.SendEmailVerification(ctx, "mara@example.com"))
	token := lastToken(t, emails.verification)
	assert.Contains(t, emails.verification[0], "https://loomline.example/auth/verify-email")

	require.NoError(t, backend.VerifyEmail(ctx, token))

	methods, err := backend.SignInMethods(ctx, "mara@example.com")
	require.NoError(t, err)
	assert.Contains(t, methods, sa.SignInMethodPassword)

	acct, err := backend.SignIn(ctx, "mara@example.com", "Abcde1")
	require.NoError(t, err)
	assert.True(t, acct.EmailVerified)

	// The token is consumed.
	err = backend.VerifyEmail(ctx, token)
	assert.Equal(t, sa.ErrCodeInvalidToken, sa.BackendCode(err))

	// Already-verified accounts do not trigger another email.
	require.NoError(t, backend.SendEmailVerification(ctx, "mara@example.com"))
	assert.Len(t, emails.verification, 1)
}

func TestPasswordResetFlow(t *testing.T) {
	backend, emails := newTestBackend(t)
	ctx := context.Background()

	_, err := backend.CreateAccount(ctx, "mara@example.com", "OldPass1")
	require.NoError(t, err)

	require.NoError(t, backend.SendPasswordReset(ctx, "mara@example.com"))
	token := lastToken(t, emails.reset)

	require.NoError(t, backend.CompletePasswordReset(ctx, token, "NewPass1"))

	_, err = backend.SignIn(ctx, "mara@example.com", "OldPass1")
	assert.Equal(t, sa.ErrCodeWrongPassword, sa.BackendCode(err))
	_, err = backend.SignIn(ctx, "mara@example.com", "NewPass1")
	assert.NoError(t, err)

	// The token is single use.
	err = backend.CompletePasswordReset(ctx, token, "Another1")
	assert.Equal(t, sa.ErrCodeInvalidToken, sa.BackendCode(err))

	// Unknown emails do not get reset mail.
	err = backend.SendPasswordReset(ctx, "nobody@example.com")
	assert.Equal(t, sa.ErrCodeUserNotFound, sa.BackendCode(err))
}

func TestSignInLinkFlow(t *testing.T) {
	backend, emails := newTestBackend(t)
	ctx := context.Background()

	// The account does not exist yet; completing the link creates it.
	require.NoError(t, backend.SendSignInLink(ctx, "new@example.com"))
	token := lastToken(t, emails.signInLink)

	acct, err := backend.CompleteSignInLink(ctx, "new@example.com", token)
	require.NoError(t, err)
	assert.True(t, acct.EmailVerified, "an emailed link proves address ownership")

	methods, err := backend.SignInMethods(ctx, "new@example.com")
	require.NoError(t, err)
	assert.Contains(t, methods, sa.SignInMethodEmailLink)
	assert.NotContains(t, methods, sa.SignInMethodPassword)

	current, err := backend.CurrentAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, acct.UID, current.UID)

	// Wrong email for the token is rejected.
	require.NoError(t, backend.SendSignInLink(ctx, "new@example.com"))
	token = lastToken(t, emails.signInLink)
	_, err = backend.CompleteSignInLink(ctx, "other@example.com", token)
	assert.Equal(t, sa.ErrCodeInvalidToken, sa.BackendCode(err))
}

func TestProviderSignIn(t *testing.T) {
	backend, _ := newTestBackend(t)
	ctx := context.Background()

	acct, err := backend.CompleteProviderSignIn(sa.ProviderGoogle,
		"mara@example.com", "Mara Weaver", "https://img.example/p.png", nil)
	require.NoError(t, err)
	assert.True(t, acct.EmailVerified)
	assert.Equal(t, "Mara Weaver", acct.DisplayName)

	methods, err := backend.SignInMethods(ctx, "mara@example.com")
	require.NoError(t, err)
	assert.Contains(t, methods, sa.SignInMethodGoogle)

	// The staged redirect result is consumed once.
	result, err := backend.RedirectResult(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, sa.ProviderGoogle, result.Provider)

	result, err = backend.RedirectResult(ctx)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestUpdateProfileRepublishes(t *testing.T) {
	backend, _ := newTestBackend(t)
	ctx := context.Background()

	acct, err := backend.CreateAccount(ctx, "mara@example.com", "Abcde1")
	require.NoError(t, err)
	_, err = backend.SignIn(ctx, "mara@example.com", "Abcde1")
	require.NoError(t, err)

	var lastName string
	backend.OnSessionChanged(func(a *sa.Account) {
		if a != nil {
			lastName = a.DisplayName
		}
	})

	require.NoError(t, backend.UpdateProfile(ctx, acct.UID, "Mara Weaver", ""))
	assert.Equal(t, "Mara Weaver", lastName, "profile update must republish the session")
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

func TestSignInRateLimited(t *testing.T) {
	dir := t.TempDir()
	backend := NewDevBackend(dir, WithRateLimiter(denyAll{}))
	ctx := context.Background()

	_, err := backend.CreateAccount(ctx, "mara@example.com", "Abcde1")
	require.NoError(t, err)

	_, err = backend.SignIn(ctx, "mara@example.com", "Abcde1")
	assert.Equal(t, sa.ErrCodeTooManyRequests, sa.BackendCode(err))
}
