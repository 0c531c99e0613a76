package emailutil

import "strings"

// Normalize lowercases and trims an address so allow-list checks are
// case-insensitive
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Domain returns the normalized part after the single "@", or "" when the
// address has none or more than one
func Domain(email string) string {
	local, domain, ok := strings.Cut(Normalize(email), "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return ""
	}
	return domain
}
