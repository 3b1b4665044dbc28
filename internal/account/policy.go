// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package account

import (
	"strings"
	"unicode/utf8"

	"github.com/samber/oops"
)

// PasswordTier selects how strict password validation is.
type PasswordTier string

// Password tiers.
const (
	TierMinimal PasswordTier = "minimal"
	TierStrict  PasswordTier = "strict"
)

// Validation limits.
const (
	MinDisplayNameLength     = 3
	MinimalPasswordLength    = 4
	StrictPasswordLength     = 8
	PasswordSpecialCharacter = `!"#$%&/()`
)

// CodeValidationFailed marks user-correctable input errors. The error
// message is the reason to show the user.
const CodeValidationFailed = "ACCOUNT_VALIDATION_FAILED"

// Validation rule names, attached to errors under the "rule" key.
const (
	RuleEmailFormat   = "email_format"
	RuleEmailDomain   = "email_domain"
	RuleDisplayName   = "display_name_length"
	RulePasswordLen   = "password_length"
	RulePasswordUpper = "password_uppercase"
	RulePasswordLower = "password_lowercase"
	RulePasswordDigit = "password_digit"
	RulePasswordSpec  = "password_special"
)

// Policy holds the deployment-time validation settings.
type Policy struct {
	// AllowedDomains are accepted email suffixes, e.g. "@gmail.com".
	AllowedDomains []string
	PasswordTier   PasswordTier
}

// DefaultPolicy accepts gmail addresses with strict passwords.
func DefaultPolicy() Policy {
	return Policy{
		AllowedDomains: []string{"@gmail.com"},
		PasswordTier:   TierStrict,
	}
}

// Validate checks that the policy itself is usable.
func (p Policy) Validate() error {
	if len(p.AllowedDomains) == 0 {
		return oops.Code("POLICY_INVALID").Errorf("at least one allowed email domain is required")
	}
	for _, d := range p.AllowedDomains {
		if strings.TrimSpace(d) == "" {
			return oops.Code("POLICY_INVALID").Errorf("allowed email domain cannot be empty")
		}
	}
	if p.PasswordTier != TierMinimal && p.PasswordTier != TierStrict {
		return oops.Code("POLICY_INVALID").
			With("tier", string(p.PasswordTier)).
			Errorf("password tier must be %q or %q", TierMinimal, TierStrict)
	}
	return nil
}

func validationError(rule, msg string) error {
	return oops.Code(CodeValidationFailed).With("rule", rule).Errorf("%s", msg)
}

// ValidateEmail checks that email has an @ and ends with an allowed domain.
func (p Policy) ValidateEmail(email string) error {
	email = NormalizeEmail(email)
	if !strings.Contains(email, "@") {
		return validationError(RuleEmailFormat, "email address must contain @")
	}
	for _, d := range p.AllowedDomains {
		if strings.HasSuffix(email, strings.ToLower(strings.TrimSpace(d))) {
			return nil
		}
	}
	return validationError(RuleEmailDomain, "only "+strings.Join(p.AllowedDomains, ", ")+" addresses are allowed")
}

// ValidateDisplayName checks the trimmed length of a display name.
func (p Policy) ValidateDisplayName(name string) error {
	if utf8.RuneCountInString(NormalizeDisplayName(name)) < MinDisplayNameLength {
		return validationError(RuleDisplayName, "display name must be at least 3 characters")
	}
	return nil
}

// ValidatePassword returns the first failing password rule. Rules run in a
// fixed order: length, uppercase, lowercase, digit, special character.
func (p Policy) ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if p.PasswordTier != TierStrict {
		if n < MinimalPasswordLength {
			return validationError(RulePasswordLen, "password must be at least 4 characters")
		}
		return nil
	}

	if n < StrictPasswordLength {
		return validationError(RulePasswordLen, "password must be at least 8 characters")
	}
	if !strings.ContainsFunc(password, func(r rune) bool { return r >= 'A' && r <= 'Z' }) {
		return validationError(RulePasswordUpper, "password must include at least one uppercase letter")
	}
	if !strings.ContainsFunc(password, func(r rune) bool { return r >= 'a' && r <= 'z' }) {
		return validationError(RulePasswordLower, "password must include at least one lowercase letter")
	}
	if !strings.ContainsFunc(password, func(r rune) bool { return r >= '0' && r <= '9' }) {
		return validationError(RulePasswordDigit, "password must include at least one digit")
	}
	if !strings.ContainsAny(password, PasswordSpecialCharacter) {
		return validationError(RulePasswordSpec, "password must include at least one special character ("+PasswordSpecialCharacter+")")
	}
	return nil
}
