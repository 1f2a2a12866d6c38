package dialer

// ValidDestination reports whether s is a plausible E.164 dial string:
// a plus sign, a non-zero leading digit, and up to 14 more digits.
//
// Providers apply their own stricter rules; this gate only rejects input
// that could never be dialable.
func ValidDestination(s string) bool {
	if len(s) < 3 || len(s) > 16 {
		return false
	}
	if s[0] != '+' {
		return false
	}
	if s[1] < '1' || s[1] > '9' {
		return false
	}
	for i := 2; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
