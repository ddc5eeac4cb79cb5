// Package phone normalizes and masks phone numbers for LeadFlow.
//
// Normalization keeps digits and a single leading plus sign and falls back to
// the configured national prefix when a number arrives without country code.
package phone

import (
	"fmt"
	"strings"
)

// DefaultCountryPrefix is applied to numbers that arrive without a country
// code. The service targets the Ecuadorian market.
const DefaultCountryPrefix = "+593"

// MinDigits is the minimum number of digits a usable phone number carries.
const MinDigits = 6

// Normalizer canonicalizes phone numbers to E.164-like form.
type Normalizer struct {
	prefix string
}

// NewNormalizer returns a Normalizer using the given country prefix, or
// DefaultCountryPrefix when empty.
func NewNormalizer(prefix string) *Normalizer {
	if prefix == "" {
		prefix = DefaultCountryPrefix
	}
	if !strings.HasPrefix(prefix, "+") {
		prefix = "+" + prefix
	}
	return &Normalizer{prefix: prefix}
}

// Normalize strips everything except digits and a leading plus sign, then
// prepends the national prefix when the number has no country code. A leading
// "0" trunk digit is dropped before the prefix is applied.
func (n *Normalizer) Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("phone number is empty")
	}

	hasPlus := strings.HasPrefix(trimmed, "+")
	var digits strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	num := digits.String()
	if len(num) < MinDigits {
		return "", fmt.Errorf("phone number %q has too few digits", raw)
	}

	if hasPlus {
		return "+" + num, nil
	}

	// WhatsApp JIDs arrive as bare digits with the country code already
	// present. Detect that case by matching the configured prefix.
	if strings.HasPrefix(num, strings.TrimPrefix(n.prefix, "+")) {
		return "+" + num, nil
	}

	num = strings.TrimPrefix(num, "0")
	return n.prefix + num, nil
}

// Mask hides the middle of a phone number for log output, keeping the country
// code region and the last two digits.
func Mask(phone string) string {
	if len(phone) <= 6 {
		return phone
	}
	return phone[:4] + strings.Repeat("*", len(phone)-6) + phone[len(phone)-2:]
}
