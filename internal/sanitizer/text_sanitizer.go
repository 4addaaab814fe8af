// Package sanitizer cleans free-text fields before they are stored,
// stripping markup and control characters from user supplied input.
package sanitizer

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer normalizes untrusted free text such as incident and
// ticket descriptions.
type TextSanitizer interface {
	// Sanitize strips markup and normalizes whitespace.
	Sanitize(text string) string
	// SanitizeTruncated sanitizes and caps the result at maxLen runes.
	SanitizeTruncated(text string, maxLen int) string
}

// DefaultTextSanitizer implements TextSanitizer using bluemonday's
// strict policy, which removes every HTML element and attribute.
type DefaultTextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer creates a sanitizer with the strict policy.
func NewTextSanitizer() *DefaultTextSanitizer {
	return &DefaultTextSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

var (
	controlCharRegex = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	whitespaceRegex  = regexp.MustCompile(`[ \t]+`)
	blankLinesRegex  = regexp.MustCompile(`\n{3,}`)
)

// Sanitize strips markup and normalizes whitespace. The strict policy
// HTML-escapes remaining text, so entities are decoded afterwards to
// keep plain text readable.
func (s *DefaultTextSanitizer) Sanitize(text string) string {
	if text == "" {
		return ""
	}

	result := s.policy.Sanitize(text)
	result = html.UnescapeString(result)
	result = controlCharRegex.ReplaceAllString(result, "")
	result = whitespaceRegex.ReplaceAllString(result, " ")
	result = blankLinesRegex.ReplaceAllString(result, "\n\n")

	return strings.TrimSpace(result)
}

// SanitizeTruncated sanitizes and caps the result at maxLen runes.
func (s *DefaultTextSanitizer) SanitizeTruncated(text string, maxLen int) string {
	result := s.Sanitize(text)
	if maxLen <= 0 {
		return result
	}
	runes := []rune(result)
	if len(runes) <= maxLen {
		return result
	}
	return strings.TrimSpace(string(runes[:maxLen]))
}
