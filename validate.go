package siteauth

import (
	"regexp"
	"strings"
	"unicode"
)

// FailureKind categorizes a validation failure. Callers must branch on the
// kind, never on the message text.
type FailureKind string

const (
	FailureNone             FailureKind = ""
	FailureEmpty            FailureKind = "empty"
	FailureTooShort         FailureKind = "too_short"
	FailureTooLong          FailureKind = "too_long"
	FailureBadFormat        FailureKind = "bad_format"
	FailureWeakPassword     FailureKind = "weak_password"
	FailureMismatch         FailureKind = "mismatch"
	FailureInheritedInvalid FailureKind = "inherited_invalid"
)

// CheckResult is the outcome of a single field check.
type CheckResult struct {
	Valid   bool
	Kind    FailureKind
	Message string
}

// Fixed validation messages, one per failure site.
const (
	msgRequired          = "this field is required"
	msgUsernameTooShort  = "username must be at least 3 characters"
	msgUsernameTooLong   = "username must be at most 40 characters"
	msgEmailBadFormat    = "enter a valid email address"
	msgWeakPassword      = "password must be at least 6 characters with a digit, a lowercase and an uppercase letter"
	msgMissingSpecial    = "password must include a special character"
	msgPasswordsMismatch = "passwords do not match"
	msgInheritedInvalid  = "password does not meet the requirements"
)

const (
	usernameMinLen = 3
	usernameMaxLen = 40
	passwordMinLen = 6
)

// local@domain.tld shape: non-whitespace, non-@ local part, one @, and a dot
// in the domain.
var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidationPolicy holds the configurable validation knobs. The zero value is
// the default policy: no special-character requirement and no disposable
// domain list.
type ValidationPolicy struct {
	// RequireSpecial additionally demands at least one non-alphanumeric
	// character in passwords.
	RequireSpecial bool

	// DisposableDomains lists email domains to reject during signup. The
	// check is applied by the signup handler, never by the pure validators.
	DisposableDomains map[string]bool
}

func invalid(kind FailureKind, message string) CheckResult {
	return CheckResult{Valid: false, Kind: kind, Message: message}
}

func valid() CheckResult {
	return CheckResult{Valid: true}
}

// CheckUsername validates a display username: required, 3 to 40 characters.
func CheckUsername(s string) CheckResult {
	switch {
	case len(s) == 0:
		return invalid(FailureEmpty, msgRequired)
	case len(s) < usernameMinLen:
		return invalid(FailureTooShort, msgUsernameTooShort)
	case len(s) > usernameMaxLen:
		return invalid(FailureTooLong, msgUsernameTooLong)
	}
	return valid()
}

// CheckEmail validates an email address shape.
func CheckEmail(s string) CheckResult {
	if len(s) == 0 {
		return invalid(FailureEmpty, msgRequired)
	}
	if !emailRegex.MatchString(s) {
		return invalid(FailureBadFormat, msgEmailBadFormat)
	}
	return valid()
}

// CheckPassword validates a password against the default policy.
func CheckPassword(s string) CheckResult {
	return ValidationPolicy{}.CheckPassword(s)
}

// CheckPassword validates a password: required, at least 6 characters with a
// digit, a lowercase and an uppercase letter. RequireSpecial adds a
// non-alphanumeric requirement.
func (p ValidationPolicy) CheckPassword(s string) CheckResult {
	if len(s) == 0 {
		return invalid(FailureEmpty, msgRequired)
	}

	var hasDigit, hasLower, hasUpper, hasSpecial bool
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		default:
			hasSpecial = true
		}
	}

	if len(s) < passwordMinLen || !hasDigit || !hasLower || !hasUpper {
		return invalid(FailureWeakPassword, msgWeakPassword)
	}
	if p.RequireSpecial && !hasSpecial {
		return invalid(FailureWeakPassword, msgMissingSpecial)
	}
	return valid()
}

// CheckPasswordConfirmation validates a password confirmation pair against
// the default policy.
func CheckPasswordConfirmation(password, confirmation string) CheckResult {
	return ValidationPolicy{}.CheckPasswordConfirmation(password, confirmation)
}

// CheckPasswordConfirmation validates that the confirmation matches the
// password and that the password itself is acceptable. A matching pair whose
// password fails CheckPassword reports InheritedInvalid so the confirmation
// field does not claim to be fine while the password field is not.
func (p ValidationPolicy) CheckPasswordConfirmation(password, confirmation string) CheckResult {
	if len(password) == 0 {
		return invalid(FailureEmpty, msgRequired)
	}
	if password != confirmation {
		return invalid(FailureMismatch, msgPasswordsMismatch)
	}
	if res := p.CheckPassword(password); !res.Valid {
		return invalid(FailureInheritedInvalid, msgInheritedInvalid)
	}
	return valid()
}

// IsDisposableEmail reports whether the address uses a domain from the
// policy's disposable list. Addresses that do not parse are not the concern
// of this check.
func (p ValidationPolicy) IsDisposableEmail(s string) bool {
	if len(p.DisposableDomains) == 0 {
		return false
	}
	at := strings.LastIndex(s, "@")
	if at < 0 {
		return false
	}
	return p.DisposableDomains[strings.ToLower(s[at+1:])]
}
