package domain

import (
	"strings"
	"time"
)

// DefaultOrganizationCategory is assigned to organizations proposed by the resolver.
const DefaultOrganizationCategory = "Corporate"

type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// OrganizationDomain is a domain registered to an organization. The same literal
// domain may be registered by several organizations.
type OrganizationDomain struct {
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organization_id"`
	Domain         string `json:"domain"`
	IsPrimary      bool   `json:"is_primary"`
}

// NormalizeDomain lower-cases a stored or user supplied domain and strips the
// URL decoration historically found in domain records.
func NormalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimRight(d, "/")
	return d
}

// DomainLookupForms lists the stored spellings that are treated as the same
// logical domain: bare, https://d/, http://d/ and d/.
func DomainLookupForms(domain string) []string {
	d := NormalizeDomain(domain)
	if d == "" {
		return nil
	}
	return []string{
		d,
		"https://" + d + "/",
		"http://" + d + "/",
		d + "/",
	}
}

// CoreToken returns the label preceding the first dot, e.g. "acme" for "acme.co.uk".
func CoreToken(domain string) string {
	d := NormalizeDomain(domain)
	if i := strings.IndexByte(d, '.'); i >= 0 {
		return d[:i]
	}
	return d
}
