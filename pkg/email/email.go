// Package email holds address helpers shared by the contact form and report delivery.
package email

import (
	"regexp"
	"strings"
	"unicode"
)

var emailLike = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsEmailLike applies the loose local@domain.tld check used by the site's forms.
// It is a plausibility filter, not RFC 5322 validation.
func IsEmailLike(v string) bool {
	return emailLike.MatchString(strings.TrimSpace(v))
}

// DeriveNameFromEmail guesses a display name from the local part of an address.
// "ada.lovelace@example.com" yields "Ada Lovelace"; unusable input yields "there".
func DeriveNameFromEmail(address string) string {
	localPart := strings.TrimSpace(address)
	if at := strings.IndexByte(localPart, '@'); at >= 0 {
		localPart = localPart[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return "there"
	}

	first := capitalize(parts[0])
	if len(parts) == 1 {
		return first
	}
	return first + " " + capitalize(parts[len(parts)-1])
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
