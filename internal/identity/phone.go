package identity

import (
	"regexp"
	"strings"
)

const nepalCountryCode = "977"

// Nepali mobile subscriber numbers: 9, then 6/7/8, then eight more digits.
var nepalMobileRe = regexp.MustCompile(`^9[678][0-9]{8}$`)

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// NormalizeNepalPhone reduces any accepted spelling of a Nepali mobile
// number to "+977" followed by the 10-digit subscriber number.
//
// Accepted inputs: "98XXXXXXXX", "+97798XXXXXXXX", "97798XXXXXXXX" and
// "0097798XXXXXXXX", with optional spaces, dashes, dots or parentheses.
// Anything else is rejected; there is no best-effort fallback.
func NormalizeNepalPhone(s string) (string, error) {
	p := phoneSeparators.Replace(strings.TrimSpace(s))
	if p == "" {
		return "", ErrPhoneRequired
	}

	switch {
	case strings.HasPrefix(p, "+"+nepalCountryCode):
		p = p[len(nepalCountryCode)+1:]
	case strings.HasPrefix(p, "00"+nepalCountryCode):
		p = p[len(nepalCountryCode)+2:]
	case strings.HasPrefix(p, nepalCountryCode) && len(p) == len(nepalCountryCode)+10:
		p = p[len(nepalCountryCode):]
	}

	if !nepalMobileRe.MatchString(p) {
		return "", ErrInvalidPhone
	}
	return "+" + nepalCountryCode + p, nil
}
