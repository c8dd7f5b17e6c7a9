package domain

import (
	"strings"
	"time"
)

type Contact struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	Emails       []ContactEmail `json:"emails,omitempty"`
	Associations []Association  `json:"associations,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ContactEmail struct {
	Address   string `json:"address"`
	IsPrimary bool   `json:"is_primary"`
}

// Association links a contact to an organization.
type Association struct {
	ContactID      int64     `json:"contact_id"`
	OrganizationID int64     `json:"organization_id"`
	IsPrimary      bool      `json:"is_primary"`
	CreatedAt      time.Time `json:"created_at"`
}

// PrimaryEmail returns the address flagged primary, or the first known address.
func (c *Contact) PrimaryEmail() string {
	if c == nil || len(c.Emails) == 0 {
		return ""
	}
	for _, e := range c.Emails {
		if e.IsPrimary && e.Address != "" {
			return e.Address
		}
	}
	for _, e := range c.Emails {
		if e.Address != "" {
			return e.Address
		}
	}
	return ""
}

// DisplayName returns "First Last" with blanks collapsed.
func (c *Contact) DisplayName() string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// HasOrganization reports whether the contact is already linked to any organization.
func (c *Contact) HasOrganization() bool {
	return c != nil && len(c.Associations) > 0
}

// NeedsResolution reports whether a suggestion may be computed for the contact:
// no association yet and at least one known email address.
func (c *Contact) NeedsResolution() bool {
	return c != nil && !c.HasOrganization() && c.PrimaryEmail() != ""
}
