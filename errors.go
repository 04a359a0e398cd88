package siteauth

import (
	"errors"
	"fmt"
)

// Error codes reported by the identity backend or by local validation.
// Callers branch on codes, never on message text.
const (
	ErrCodeEmailExists     = "email_exists"
	ErrCodeUserNotFound    = "user_not_found"
	ErrCodeWrongPassword   = "wrong_password"
	ErrCodeTooManyRequests = "too_many_requests"
	ErrCodeEmailUnverified = "email_unverified"

	ErrCodeMissingField    = "missing_field"
	ErrCodeInvalidUsername = "invalid_username"
	ErrCodeInvalidEmail    = "invalid_email"
	ErrCodeWeakPassword    = "weak_password"
	ErrCodeMismatch        = "password_mismatch"
	ErrCodeInvalidToken    = "invalid_token"
)

// Fixed user-facing messages for the backend error mapping. The mapping from
// code to field and message is a stable contract with the form layer.
const (
	MsgEmailExists     = "this email is already registered"
	MsgUserNotFound    = "no account matches this email"
	MsgWrongPassword   = "incorrect password"
	MsgGoogleLinked    = "this email is linked to a Google account"
	MsgNoPasswordSet   = "no password set for this email; use the sign-in link instead"
	MsgTooManyRequests = "too many attempts, wait a moment and retry"
	MsgEmailUnverified = "verify your account before signing in"
	MsgGenericFailure  = "something went wrong, please try again"
)

// AuthError is a categorized authentication failure. Field names the form
// field the error should be attached to; empty means the error is not tied
// to a single field.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Field   string `json:"field,omitempty"`

	// ResendVerification marks errors that should be rendered with a
	// "resend verification email" action next to them.
	ResendVerification bool `json:"resend_verification,omitempty"`
}

func (e *AuthError) Error() string { return e.Message }

// NewAuthError creates an AuthError with the given code, message and target field.
func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

// BackendError is the error shape returned by IdentityBackend implementations.
// It carries only a code; presentation is decided by MapBackendError.
type BackendError struct {
	Code string
}

func (e *BackendError) Error() string { return fmt.Sprintf("identity backend: %s", e.Code) }

// NewBackendError creates a BackendError with the given code.
func NewBackendError(code string) *BackendError {
	return &BackendError{Code: code}
}

// BackendCode extracts the backend error code from err, or "" if err is not
// a BackendError.
func BackendCode(err error) string {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// MapBackendError translates a backend failure into a field-targeted
// AuthError. The methods argument carries the sign-in methods registered for
// the email being authenticated; it disambiguates the wrong-password cases
// (provider-only accounts and passwordless-only accounts surface on the email
// field instead). Returns nil for errors that carry no recognized code, in
// which case the caller surfaces a generic retry notification.
func MapBackendError(err error, methods []string) *AuthError {
	switch BackendCode(err) {
	case ErrCodeEmailExists:
		return NewAuthError(ErrCodeEmailExists, MsgEmailExists, "email")
	case ErrCodeUserNotFound:
		return NewAuthError(ErrCodeUserNotFound, MsgUserNotFound, "email")
	case ErrCodeWrongPassword:
		if hasMethod(methods, SignInMethodGoogle) {
			return NewAuthError(ErrCodeWrongPassword, MsgGoogleLinked, "email")
		}
		if len(methods) > 0 && !hasMethod(methods, SignInMethodPassword) {
			return NewAuthError(ErrCodeWrongPassword, MsgNoPasswordSet, "email")
		}
		return NewAuthError(ErrCodeWrongPassword, MsgWrongPassword, "password")
	case ErrCodeTooManyRequests:
		return NewAuthError(ErrCodeTooManyRequests, MsgTooManyRequests, "email")
	case ErrCodeEmailUnverified:
		authErr := NewAuthError(ErrCodeEmailUnverified, MsgEmailUnverified, "email")
		authErr.ResendVerification = true
		return authErr
	}
	return nil
}

func hasMethod(methods []string, method string) bool {
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}
