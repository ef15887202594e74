// Package util provides normalization and environment helpers shared across components.
package util

import "strings"

// DefaultCountryCode is prepended to phone numbers that arrive without a
// country prefix. All customers of the shop are in Brazil.
const DefaultCountryCode = "55"

// OnlyDigits strips every non-digit rune from the input.
func OnlyDigits(v string) string {
	var b strings.Builder
	b.Grow(len(v))
	for _, r := range v {
		if r >= '0' && r <= '9' {
			b.WriteByte(byte(r))
		}
	}
	return b.String()
}

// NormalizePhone canonicalizes an inbound phone identifier: digits only, with
// the country code prepended exactly once. Empty input yields empty output.
func NormalizePhone(phone string) string {
	digits := OnlyDigits(phone)
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(digits, DefaultCountryCode) {
		return digits
	}
	return DefaultCountryCode + digits
}

// NormalizeText lowercases and trims a message body for keyword matching.
func NormalizeText(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// FirstName extracts the first whitespace-separated token of a display name.
// Returns empty if the name is blank.
func FirstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
