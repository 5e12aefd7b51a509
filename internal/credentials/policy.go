package credentials

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/nmkhang/authcore/internal/config"
)

// Policy checks candidate passwords against the configured rules. It is a
// pure function of its configuration and the forbidden substrings derived
// from the principal's own profile fields.
type Policy struct {
	cfg config.PasswordPolicyConfig
}

func NewPolicy(cfg config.PasswordPolicyConfig) *Policy {
	return &Policy{cfg: cfg}
}

func (p *Policy) Validate(password string, forbidden ...string) error {
	if len(password) < p.cfg.MinLength {
		return NewPolicyViolationError(fmt.Sprintf("must be at least %d characters", p.cfg.MinLength))
	}
	if len(password) > p.cfg.MaxLength {
		return NewPolicyViolationError(fmt.Sprintf("must be at most %d characters", p.cfg.MaxLength))
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	if p.cfg.RequireUppercase && !hasUpper {
		return NewPolicyViolationError("must contain an uppercase letter")
	}
	if p.cfg.RequireLowercase && !hasLower {
		return NewPolicyViolationError("must contain a lowercase letter")
	}
	if p.cfg.RequireDigit && !hasDigit {
		return NewPolicyViolationError("must contain a digit")
	}
	if p.cfg.RequireSymbol && !hasSymbol {
		return NewPolicyViolationError("must contain a symbol")
	}

	lowered := strings.ToLower(password)
	for _, sub := range forbidden {
		sub = strings.ToLower(strings.TrimSpace(sub))
		if len(sub) < 3 {
			continue
		}
		if strings.Contains(lowered, sub) {
			return NewPolicyViolationError("must not contain parts of your account information")
		}
	}
	return nil
}

// ProfileSubstrings extracts the forbidden substrings for a principal:
// the username, the email local part, and each word of the full name.
func ProfileSubstrings(username, email, fullName string) []string {
	out := []string{username}
	if at := strings.IndexByte(email, '@'); at > 0 {
		out = append(out, email[:at])
	}
	out = append(out, strings.Fields(fullName)...)
	return out
}
