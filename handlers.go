package siteauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// OnAuthFunc is called after a successful authentication (login, sign-in
// link, provider redirect) with the account reported by the backend.
type OnAuthFunc func(acct *Account, w http.ResponseWriter, r *http.Request)

// FormHandlers exposes the marketing site's auth forms over HTTP. Each
// handler builds a Form bound to the field validators, feeds it the request
// values and submits it against the identity backend, so field errors,
// loading guards and the backend error mapping behave identically whether a
// form is driven programmatically or through these endpoints.
type FormHandlers struct {
	Backend     IdentityBackend
	Profiles    ProfileStore
	Coordinator *Coordinator
	Notifier    *Notifier
	Middleware  *Middleware
	Policy      ValidationPolicy
	Logger      *zap.Logger

	// OnAuth handles a successful sign-in. Defaults to a JSON response.
	OnAuth OnAuthFunc
}

// Handler mounts the form endpoints on a fresh mux.
func (h *FormHandlers) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", h.HandleLogin)
	mux.HandleFunc("POST /signup", h.HandleSignup)
	mux.HandleFunc("POST /link", h.HandleSendSignInLink)
	mux.HandleFunc("GET /link/complete", h.HandleCompleteSignInLink)
	mux.HandleFunc("POST /forgot-password", h.HandleForgotPassword)
	mux.HandleFunc("POST /reset-password", h.HandleResetPassword)
	mux.HandleFunc("GET /verify-email", h.HandleVerifyEmail)
	mux.HandleFunc("POST /resend-verification", h.HandleResendVerification)
	mux.HandleFunc("POST /profile", h.HandleCompleteProfile)
	return mux
}

func (h *FormHandlers) logger() *zap.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return zap.NewNop()
}

func (h *FormHandlers) onAuth(acct *Account, w http.ResponseWriter, r *http.Request) {
	if h.OnAuth != nil {
		h.OnAuth(acct, w, r)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "uid": acct.UID})
}

func requiredOnly(s string) CheckResult {
	if len(s) == 0 {
		return CheckResult{Valid: false, Kind: FailureEmpty, Message: msgRequired}
	}
	return CheckResult{Valid: true}
}

// HandleLogin authenticates with email and password. Wrong-password
// failures are disambiguated with the email's registered sign-in methods
// before mapping, and a successful sign-in against an unverified email is
// rolled back with a forced sign-out.
func (h *FormHandlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	values, err := parseFormValues(r, "email", "password")
	if err != nil {
		writeAuthError(w, NewAuthError(ErrCodeMissingField, err.Error(), ""))
		return
	}

	form := NewForm("login", WithNotifier(h.Notifier), WithFormLogger(h.logger()))
	form.AddField("email", WithCheck(CheckEmail))
	form.AddField("password", WithCheck(requiredOnly))
	form.SetField("email", values["email"])
	form.SetField("password", values["password"])

	if !form.Valid() {
		writeFieldErrors(w, form)
		return
	}

	var acct *Account
	submitErr := form.Submit(r.Context(), func(ctx context.Context) error {
		email := form.Value("email")
		signedIn, err := h.Backend.SignIn(ctx, email, form.Value("password"))
		if err != nil {
			if BackendCode(err) == ErrCodeWrongPassword {
				methods, merr := h.Backend.SignInMethods(ctx, email)
				if merr != nil {
					h.logger().Warn("sign-in methods lookup failed", zap.Error(merr))
				}
				if mapped := MapBackendError(err, methods); mapped != nil {
					return mapped
				}
			}
			return err
		}
		if !signedIn.EmailVerified {
			if err := h.Backend.SignOut(ctx); err != nil {
				h.logger().Warn("forced signout failed", zap.Error(err))
			}
			return MapBackendError(NewBackendError(ErrCodeEmailUnverified), nil)
		}
		acct = signedIn
		return nil
	})
	if submitErr != nil {
		writeSubmitError(w, submitErr)
		return
	}
	h.onAuth(acct, w, r)
}

// HandleSignup registers an email/password account, stores the profile
// document and sends the verification email. The account stays signed out
// until the email is verified.
func (h *FormHandlers) HandleSignup(w http.ResponseWriter, r *http.Request) {
	values, err := parseFormValues(r, "username", "email", "password", "confirm")
	if err != nil {
		writeAuthError(w, NewAuthError(ErrCodeMissingField, err.Error(), ""))
		return
	}

	form := NewForm("signup", WithNotifier(h.Notifier), WithFormLogger(h.logger()))
	form.AddField("username", WithCheck(CheckUsername))
	form.AddField("email", WithCheck(CheckEmail))
	form.AddField("password", WithCheck(h.Policy.CheckPassword))
	form.AddField("confirm", ConfirmationOf("password", h.Policy))
	for _, name := range []string{"username", "email", "password", "confirm"} {
		form.SetField(name, values[name])
	}

	if !form.Valid() {
		writeFieldErrors(w, form)
		return
	}

	var uid string
	submitErr := form.Submit(r.Context(), func(ctx context.Context) error {
		email := form.Value("email")
		if h.Policy.IsDisposableEmail(email) {
			return NewAuthError(ErrCodeInvalidEmail, "disposable email addresses are not accepted", "email")
		}

		acct, err := h.Backend.CreateAccount(ctx, email, form.Value("password"))
		if err != nil {
			return err
		}
		uid = acct.UID

		fullname := form.Value("username")
		if err := h.Profiles.PutProfile(ctx, &Profile{UID: acct.UID, FullName: fullname}); err != nil {
			h.logger().Warn("profile write failed", zap.String("uid", acct.UID), zap.Error(err))
		}
		if err := h.Backend.UpdateProfile(ctx, acct.UID, fullname, ""); err != nil {
			h.logger().Warn("display name update failed", zap.String("uid", acct.UID), zap.Error(err))
		}
		if err := h.Backend.SendEmailVerification(ctx, email); err != nil {
			h.logger().Warn("verification email failed", zap.String("email", email), zap.Error(err))
		}
		return nil
	})
	if submitErr != nil {
		writeSubmitError(w, submitErr)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Account created. Please check your email to verify your account.",
		"uid":     uid,
	})
}

// HandleSendSignInLink emails a passwordless sign-in link and records the
// passwordless choice on the coordinator.
func (h *FormHandlers) HandleSendSignInLink(w http.ResponseWriter, r *http.Request) {
	values, err := parseFormValues(r, "email")
	if err != nil {
		writeAuthError(w, NewAuthError(ErrCodeMissingField, err.Error(), ""))
		return
	}

	form := NewForm("signin_link", WithNotifier(h.Notifier), WithFormLogger(h.logger()))
	form.AddField("email", WithCheck(CheckEmail))
	form.SetField("email", values["email"])
	if !form.Valid() {
		writeFieldErrors(w, form)
		return
	}

	if h.Coordinator != nil {
		h.Coordinator.SetPasswordless(true)
	}
	submitErr := form.Submit(r.Context(), func(ctx context.Context) error {
		return h.Backend.SendSignInLink(ctx, form.Value("email"))
	})
	if submitErr != nil {
		writeSubmitError(w, submitErr)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Check your email for a sign-in link",
	})
}

// HandleCompleteSignInLink consumes a sign-in link.
func (h *FormHandlers) HandleCompleteSignInLink(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	token := r.URL.Query().Get("token")
	if email == "" || token == "" {
		writeAuthError(w, NewAuthError(ErrCodeMissingField, "email and token required", ""))
		return
	}

	acct, err := h.Backend.CompleteSignInLink(r.Context(), email, token)
	if err != nil {
		writeSubmitError(w, err)
		return
	}
	if h.Coordinator != nil {
		h.Coordinator.ResetPasswordless()
	}
	h.onAuth(acct, w, r)
}

// HandleForgotPassword emails a reset link. It always answers success so
// the endpoint cannot be used to probe which emails exist.
func (h *FormHandlers) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	values, err := parseFormValues(r, "email")
	if err != nil {
		writeAuthError(w, NewAuthError(ErrCodeMissingField, err.Error(), ""))
		return
	}

	form := NewForm("forgot_password", WithFormLogger(h.logger()))
	form.AddField("email", WithCheck(CheckEmail))
	form.SetField("email", values["email"])
	if !form.Valid() {
		writeFieldErrors(w, form)
		return
	}

	if err := h.Backend.SendPasswordReset(r.Context(), form.Value("email")); err != nil {
		h.logger().Warn("password reset email failed", zap.Error(err))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "If that email exists, a reset link has been sent",
	})
}

// HandleResetPassword consumes a reset token with a new password.
func (h *FormHandlers) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	values, err := parseFormValues(r, "token", "password", "confirm")
	if err != nil {
		writeAuthError(w, NewAuthError(ErrCodeMissingField, err.Error(), ""))
		return
	}
	if values["token"] == "" {
		writeAuthError(w, NewAuthError(ErrCodeMissingField, "token required", ""))
		return
	}

	form := NewForm("reset_password", WithNotifier(h.Notifier), WithFormLogger(h.logger()))
	form.AddField("password", WithCheck(h.Policy.CheckPassword))
	form.AddField("confirm", ConfirmationOf("password", h.Policy))
	form.SetField("password", values["password"])
	form.SetField("confirm", values["confirm"])
	if !form.Valid() {
		writeFieldErrors(w, form)
		return
	}

	submitErr := form.Submit(r.Context(), func(ctx context.Context) error {
		return h.Backend.CompletePasswordReset(ctx, values["token"], form.Value("password"))
	})
	if submitErr != nil {
		writeSubmitError(w, submitErr)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Password reset successfully",
	})
}

// HandleVerifyEmail consumes an email verification token.
func (h *FormHandlers) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeAuthError(w, NewAuthError(ErrCodeMissingField, "token required", ""))
		return
	}
	if err := h.Backend.VerifyEmail(r.Context(), token); err != nil {
		writeSubmitError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Email verified successfully",
	})
}

// HandleResendVerification re-sends the verification email; the clickable
// action attached to the verify-your-account error posts here.
func (h *FormHandlers) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	values, err := parseFormValues(r, "email")
	if err != nil || values["email"] == "" {
		writeAuthError(w, NewAuthError(ErrCodeMissingField, "email required", "email"))
		return
	}
	if err := h.Backend.SendEmailVerification(r.Context(), values["email"]); err != nil {
		h.logger().Warn("resend verification failed", zap.Error(err))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Verification email sent",
	})
}

// HandleCompleteProfile writes the authenticated user's full name through
// the coordinator, which keeps the profile document, the backend display
// name and the published identity in step.
func (h *FormHandlers) HandleCompleteProfile(w http.ResponseWriter, r *http.Request) {
	if h.Middleware == nil || h.Coordinator == nil {
		http.Error(w, `{"error": "Profile completion not configured"}`, http.StatusInternalServerError)
		return
	}
	userId := h.Middleware.GetLoggedInUserId(r)
	if userId == "" {
		http.Error(w, `{"error": "Not authenticated"}`, http.StatusUnauthorized)
		return
	}

	values, err := parseFormValues(r, "fullname")
	if err != nil {
		writeAuthError(w, NewAuthError(ErrCodeMissingField, err.Error(), ""))
		return
	}

	form := NewForm("complete_profile", WithNotifier(h.Notifier), WithFormLogger(h.logger()))
	form.AddField("fullname", WithCheck(CheckUsername))
	form.SetField("fullname", values["fullname"])
	if !form.Valid() {
		writeFieldErrors(w, form)
		return
	}

	submitErr := form.Submit(r.Context(), func(ctx context.Context) error {
		return h.Coordinator.UpdateDisplayName(ctx, form.Value("fullname"))
	})
	if submitErr != nil {
		writeSubmitError(w, submitErr)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// parseFormValues reads the named fields from an urlencoded form or a JSON
// body.
func parseFormValues(r *http.Request, fields ...string) (map[string]string, error) {
	values := make(map[string]string, len(fields))
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			return nil, errors.New("error parsing form")
		}
		for _, field := range fields {
			values[field] = r.FormValue(field)
		}
		return values, nil
	}

	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
		return nil, errors.New("invalid post body")
	}
	for _, field := range fields {
		if v, ok := data[field].(string); ok {
			values[field] = v
		}
	}
	return values, nil
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeAuthError(w http.ResponseWriter, authErr *AuthError) {
	status := http.StatusBadRequest
	switch authErr.Code {
	case ErrCodeWrongPassword, ErrCodeUserNotFound, ErrCodeEmailUnverified:
		status = http.StatusUnauthorized
	case ErrCodeTooManyRequests:
		status = http.StatusTooManyRequests
	}
	respondJSON(w, status, authErr)
}

// writeSubmitError renders a failed submission: mapped errors keep their
// code and field, everything else becomes the generic retry message.
func writeSubmitError(w http.ResponseWriter, err error) {
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		authErr = MapBackendError(err, nil)
	}
	if authErr == nil {
		respondJSON(w, http.StatusInternalServerError, map[string]any{"error": MsgGenericFailure})
		return
	}
	writeAuthError(w, authErr)
}

func writeFieldErrors(w http.ResponseWriter, form *Form) {
	respondJSON(w, http.StatusBadRequest, map[string]any{
		"error":  "validation failed",
		"fields": form.FieldErrors(),
	})
}
