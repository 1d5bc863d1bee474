package service

import "strings"

// reservedUsernames are rejected at creation time regardless of case.
var reservedUsernames = map[string]struct{}{
	"admin":     {},
	"undefined": {},
	"null":      {},
	"superuser": {},
	"root":      {},
	"system":    {},
}

// ValidateUsername reports whether the username is allowed. Reserved
// names are rejected regardless of case.
func ValidateUsername(username string) bool {
	trimmed := strings.TrimSpace(username)
	if trimmed == "" {
		return false
	}
	_, reserved := reservedUsernames[strings.ToLower(trimmed)]
	return !reserved
}

// NormalizeEmail lowercases the domain part of an email address and trims
// surrounding whitespace. The local part is preserved as typed.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}
