package credential

import "strings"

// MaskEmail reduces an email address to its first character and domain, enough
// for an attendee to recognize their own address at the gate without exposing
// it to whoever scans the code.
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***@" + email[at+1:]
}

// MaskPhone keeps only the last four digits of a phone number.
func MaskPhone(phone string) string {
	if phone == "" {
		return ""
	}
	digits := make([]rune, 0, len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) <= 4 {
		return "***" + string(digits)
	}
	return "***" + string(digits[len(digits)-4:])
}
