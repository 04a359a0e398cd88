package siteauth

import (
	"strings"
	"testing"
)

func TestCheckUsername(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
		kind  FailureKind
	}{
		{"empty", "", false, FailureEmpty},
		{"too short", "ab", false, FailureTooShort},
		{"min length", "abc", true, FailureNone},
		{"normal", "mara weaver", true, FailureNone},
		{"max length", strings.Repeat("a", 40), true, FailureNone},
		{"too long", strings.Repeat("a", 41), false, FailureTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := CheckUsername(tt.input)
			if res.Valid != tt.valid {
				t.Errorf("CheckUsername(%q).Valid = %v, want %v", tt.input, res.Valid, tt.valid)
			}
			if res.Kind != tt.kind {
				t.Errorf("CheckUsername(%q).Kind = %q, want %q", tt.input, res.Kind, tt.kind)
			}
			if !res.Valid && res.Message == "" {
				t.Error("invalid result must carry a message")
			}
		})
	}
}

func TestCheckEmail(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
		kind  FailureKind
	}{
		{"empty", "", false, FailureEmpty},
		{"no at", "mara.example.com", false, FailureBadFormat},
		{"no domain dot", "mara@example", false, FailureBadFormat},
		{"space in local", "ma ra@example.com", false, FailureBadFormat},
		{"double at", "mara@@example.com", false, FailureBadFormat},
		{"plain", "mara@example.com", true, FailureNone},
		{"plus tag", "mara+shop@example.co.uk", true, FailureNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := CheckEmail(tt.input)
			if res.Valid != tt.valid {
				t.Errorf("CheckEmail(%q).Valid = %v, want %v", tt.input, res.Valid, tt.valid)
			}
			if res.Kind != tt.kind {
				t.Errorf("CheckEmail(%q).Kind = %q, want %q", tt.input, res.Kind, tt.kind)
			}
		})
	}
}

func TestCheckPassword(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
		kind  FailureKind
	}{
		{"empty", "", false, FailureEmpty},
		{"too short", "Ab1", false, FailureWeakPassword},
		{"no digit", "Abcdef", false, FailureWeakPassword},
		{"no upper", "abcde1", false, FailureWeakPassword},
		{"no lower", "ABCDE1", false, FailureWeakPassword},
		{"minimal valid", "Abcde1", true, FailureNone},
		{"long valid", "CorrectHorse7", true, FailureNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := CheckPassword(tt.input)
			if res.Valid != tt.valid {
				t.Errorf("CheckPassword(%q).Valid = %v, want %v", tt.input, res.Valid, tt.valid)
			}
			if res.Kind != tt.kind {
				t.Errorf("CheckPassword(%q).Kind = %q, want %q", tt.input, res.Kind, tt.kind)
			}
		})
	}
}

func TestCheckPasswordRequireSpecial(t *testing.T) {
	policy := ValidationPolicy{RequireSpecial: true}

	if res := policy.CheckPassword("Abcde1"); res.Valid {
		t.Error("expected failure without special character")
	} else if res.Kind != FailureWeakPassword {
		t.Errorf("Kind = %q, want %q", res.Kind, FailureWeakPassword)
	}
	if res := policy.CheckPassword("Abcde1!"); !res.Valid {
		t.Errorf("expected valid with special character, got %q", res.Message)
	}
}

func TestCheckPasswordConfirmation(t *testing.T) {
	tests := []struct {
		name         string
		password     string
		confirmation string
		valid        bool
		kind         FailureKind
	}{
		{"both empty", "", "", false, FailureEmpty},
		{"mismatch", "Abcde1", "Abcde2", false, FailureMismatch},
		{"match but weak", "abc", "abc", false, FailureInheritedInvalid},
		{"match and strong", "Abcde1", "Abcde1", true, FailureNone},
		{"empty confirmation", "Abcde1", "", false, FailureMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := CheckPasswordConfirmation(tt.password, tt.confirmation)
			if res.Valid != tt.valid {
				t.Errorf("Valid = %v, want %v", res.Valid, tt.valid)
			}
			if res.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", res.Kind, tt.kind)
			}
		})
	}
}

func TestIsDisposableEmail(t *testing.T) {
	policy := ValidationPolicy{DisposableDomains: map[string]bool{"mailinator.com": true}}

	if !policy.IsDisposableEmail("someone@mailinator.com") {
		t.Error("expected listed domain to be flagged")
	}
	if !policy.IsDisposableEmail("someone@MAILINATOR.COM") {
		t.Error("domain check must be case-insensitive")
	}
	if policy.IsDisposableEmail("someone@example.com") {
		t.Error("unlisted domain must pass")
	}
	if policy.IsDisposableEmail("not-an-email") {
		t.Error("unparseable addresses are not this check's concern")
	}
	if (ValidationPolicy{}).IsDisposableEmail("someone@mailinator.com") {
		t.Error("empty policy flags nothing")
	}
}
