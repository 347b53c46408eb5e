package match

import (
	"errors"
	"strings"
)

// ErrUnrecognizedPhone is returned by NormalizePhone for inputs whose shape
// is not one of the recognized forms. Such phones are not used for matching.
var ErrUnrecognizedPhone = errors.New("unrecognized phone number format")

// NormalizePhone converts a sheet phone cell to E.164.
//
//	""                → ""             (no phone)
//	"(910) 733-9541"  → "+19107339541" (leading "(": digits with +1)
//	"18647878082"     → "+18647878082" (exactly 11 digits)
//	"+18647878082"    → "+18647878082" (already normalized: "+" and digits)
//
// Anything else yields ErrUnrecognizedPhone. The function never guesses a
// country code for other shapes.
func NormalizePhone(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	if p == "" {
		return "", nil
	}

	switch {
	case p[0] == '(':
		d := digits(p)
		if len(d) == 0 {
			return "", ErrUnrecognizedPhone
		}
		return "+1" + d, nil
	case len(p) == 11 && allDigits(p):
		return "+" + p, nil
	case p[0] == '+' && allDigits(p[1:]):
		return p, nil
	}
	return "", ErrUnrecognizedPhone
}

// NormalizeEmail returns the comparison form of an email cell.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
