package dispatch

import "strings"

// UserServer is the address suffix for personal WhatsApp chats.
const UserServer = "s.whatsapp.net"

// DefaultCountryCode replaces a leading national trunk prefix ("0") when
// normalizing phone descriptors. Indonesian numbers only; no round-trip
// guarantee for other countries.
const DefaultCountryCode = "62"

// NormalizePhone converts a phone descriptor to canonical personal-chat
// address form: digits only, trunk prefix replaced with the country code,
// suffixed with the user server. Idempotent.
func NormalizePhone(phone, countryCode string) string {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}

	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	cleaned := digits.String()

	if strings.HasPrefix(cleaned, "0") {
		cleaned = countryCode + cleaned[1:]
	}

	return cleaned + "@" + UserServer
}

// looksLikePhone reports whether a descriptor is plausibly a phone number
// rather than a positional index: at least 7 digits after stripping
// punctuation. Keeps short integers available as directory indexes.
func looksLikePhone(descriptor string) bool {
	n := 0
	for _, r := range descriptor {
		switch {
		case r >= '0' && r <= '9':
			n++
		case r == '+' || r == '-' || r == ' ' || r == '(' || r == ')' || r == '.':
			// separators are fine
		default:
			return false
		}
	}
	return n >= 7
}
