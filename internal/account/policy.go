package account

import "strings"

const (
	// MinPasswordLength is the minimum required password length.
	MinPasswordLength = 8

	// passwordSymbols is the fixed punctuation set accepted as a special
	// character. Anything outside this set does not count.
	passwordSymbols = "!@#$%^&*()_+-=[]{};':\",.<>/?\\|`~"
)

// Policy rule names, in the fixed evaluation order.
const (
	RuleMinLength = "min_length"
	RuleUppercase = "uppercase"
	RuleLowercase = "lowercase"
	RuleDigit     = "digit"
	RuleSpecial   = "special"
)

// RuleCheck is the outcome of one policy rule for a candidate password.
type RuleCheck struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	OK      bool   `json:"ok"`
}

// PasswordPolicy checks candidate passwords against the fixed rule set:
// minimum length, one uppercase, one lowercase, one digit, one symbol.
type PasswordPolicy struct{}

// NewPasswordPolicy creates a PasswordPolicy.
func NewPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{}
}

// Check evaluates every rule and reports each outcome in stable order
// (length, upper, lower, digit, symbol).
func (p *PasswordPolicy) Check(password string) []RuleCheck {
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(passwordSymbols, r):
			hasSpecial = true
		}
	}

	return []RuleCheck{
		{RuleMinLength, "Password must have at least 8 characters.", len(password) >= MinPasswordLength},
		{RuleUppercase, "Password must include an uppercase letter.", hasUpper},
		{RuleLowercase, "Password must include a lowercase letter.", hasLower},
		{RuleDigit, "Password must include a digit.", hasDigit},
		{RuleSpecial, "Password must include a special character.", hasSpecial},
	}
}

// IsValid reports whether the password satisfies every rule.
func (p *PasswordPolicy) IsValid(password string) bool {
	for _, c := range p.Check(password) {
		if !c.OK {
			return false
		}
	}
	return true
}

// Feedback returns one human-readable message per failed rule, preserving
// rule order. An empty slice means the password is compliant.
func (p *PasswordPolicy) Feedback(checks []RuleCheck) []string {
	var messages []string
	for _, c := range checks {
		if !c.OK {
			messages = append(messages, c.Message)
		}
	}
	return messages
}

// weakPassword returns a WeakPasswordError for password, or nil when the
// password is compliant.
func (p *PasswordPolicy) weakPassword(password string) error {
	reasons := p.Feedback(p.Check(password))
	if len(reasons) == 0 {
		return nil
	}
	return &WeakPasswordError{Reasons: reasons}
}
