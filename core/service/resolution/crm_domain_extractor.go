// Package resolution infers which organization a contact most likely belongs
// to from the domain of their email address.
package resolution

import (
	"strings"

	"crm_server/core/domain"
)

// personalProviders carry no organization signal.
var personalProviders = map[string]struct{}{
	"gmail.com":      {},
	"googlemail.com": {},
	"yahoo.com":      {},
	"hotmail.com":    {},
	"outlook.com":    {},
	"live.com":       {},
	"icloud.com":     {},
	"me.com":         {},
	"aol.com":        {},
	"protonmail.com": {},
	"proton.me":      {},
}

// IsPersonalProvider reports whether d is a consumer mail provider.
func IsPersonalProvider(d string) bool {
	_, ok := personalProviders[strings.ToLower(strings.TrimSpace(d))]
	return ok
}

// ExtractDomain returns the normalized organization domain of an email
// address. ok is false for an empty address, an address without "@", or a
// personal provider domain.
func ExtractDomain(email string) (d string, ok bool) {
	email = strings.TrimSpace(email)
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return "", false
	}

	d = domain.NormalizeDomain(email[at+1:])
	if d == "" || IsPersonalProvider(d) {
		return "", false
	}
	return d, true
}
