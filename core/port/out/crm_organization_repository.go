package out

import (
	"context"
	"time"
)

// OrganizationReader is the read side used while computing suggestions.
type OrganizationReader interface {
	// FindDomainsByDomainString returns every domain record equal to the domain
	// or one of its URL-decorated spellings, joined with the owning organization.
	FindDomainsByDomainString(ctx context.Context, domain string) ([]*DomainMatch, error)

	// FindDomainVariants returns domain records sharing coreToken as their brand
	// label, excluding excludeDomain, at most limit rows.
	FindDomainVariants(ctx context.Context, coreToken, excludeDomain string, limit int) ([]*DomainMatch, error)
}

// OrganizationWriter is the write side used by the confirmation workflow.
type OrganizationWriter interface {
	CreateOrganization(ctx context.Context, org *OrganizationEntity) (int64, error)
	CreateDomain(ctx context.Context, d *DomainEntity) error
	CreateAssociation(ctx context.Context, a *AssociationEntity) error
	DeleteOrganization(ctx context.Context, organizationID int64) error
}

// OrganizationRepository defines the outbound port for organization persistence.
type OrganizationRepository interface {
	OrganizationReader
	OrganizationWriter

	ListAssociations(ctx context.Context, contactID int64) ([]*AssociationEntity, error)
}

// OrganizationTxRunner is implemented by stores that can run the writes of a
// single accept in one transaction.
type OrganizationTxRunner interface {
	RunInTx(ctx context.Context, fn func(w OrganizationWriter) error) error
}

// DomainMatch is a domain record joined with its owning organization.
type DomainMatch struct {
	Domain                string    `json:"domain" db:"domain"`
	IsPrimary             bool      `json:"is_primary" db:"is_primary"`
	OrganizationID        int64     `json:"organization_id" db:"organization_id"`
	OrganizationName      string    `json:"organization_name" db:"organization_name"`
	OrganizationCategory  string    `json:"organization_category" db:"organization_category"`
	OrganizationCreatedAt time.Time `json:"organization_created_at" db:"organization_created_at"`
}

// OrganizationEntity represents an organization to persist.
type OrganizationEntity struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Category  string    `db:"category"`
	CreatedAt time.Time `db:"created_at"`
}

// DomainEntity represents an organization domain to persist.
type DomainEntity struct {
	OrganizationID int64  `db:"organization_id"`
	Domain         string `db:"domain"`
	IsPrimary      bool   `db:"is_primary"`
}

// AssociationEntity represents a contact-organization link.
type AssociationEntity struct {
	ContactID      int64     `db:"contact_id"`
	OrganizationID int64     `db:"organization_id"`
	IsPrimary      bool      `db:"is_primary"`
	CreatedAt      time.Time `db:"created_at"`
}
