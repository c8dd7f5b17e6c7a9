// Package persistence provides database adapters implementing outbound ports.
package persistence

import (
	"context"
	"regexp"
	"time"

	"crm_server/core/domain"
	"crm_server/core/port/out"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// OrganizationAdapter implements out.OrganizationRepository using PostgreSQL.
type OrganizationAdapter struct {
	db *sqlx.DB
	q  sqlx.ExtContext // db, or the transaction inside RunInTx
}

// NewOrganizationAdapter creates a new OrganizationAdapter.
func NewOrganizationAdapter(db *sqlx.DB) *OrganizationAdapter {
	return &OrganizationAdapter{db: db, q: db}
}

var (
	_ out.OrganizationRepository = (*OrganizationAdapter)(nil)
	_ out.OrganizationTxRunner   = (*OrganizationAdapter)(nil)
)

const domainMatchColumns = `
	d.domain,
	d.is_primary,
	o.id         AS organization_id,
	o.name       AS organization_name,
	o.category   AS organization_category,
	o.created_at AS organization_created_at`

// FindDomainsByDomainString matches the bare domain and its URL-decorated spellings.
func (a *OrganizationAdapter) FindDomainsByDomainString(ctx context.Context, d string) ([]*out.DomainMatch, error) {
	query := `SELECT` + domainMatchColumns + `
		FROM organization_domains d
		JOIN organizations o ON o.id = d.organization_id
		WHERE LOWER(d.domain) = ANY($1)
		ORDER BY d.id`

	var matches []*out.DomainMatch
	if err := sqlx.SelectContext(ctx, a.q, &matches, query, pq.Array(domain.DomainLookupForms(d))); err != nil {
		return nil, wrapErr("find domains", err)
	}
	return matches, nil
}

// VariantPattern is the case-insensitive regular expression a stored domain
// must match to share the brand label core: optional scheme, at most one
// leading label, then core followed by a dot.
func VariantPattern(core string) string {
	return `^(https?://)?([^./]+\.)?` + regexp.QuoteMeta(core) + `\.`
}

// FindDomainVariants returns up to limit domains of the same brand, excluding
// every spelling of excludeDomain.
func (a *OrganizationAdapter) FindDomainVariants(ctx context.Context, core, excludeDomain string, limit int) ([]*out.DomainMatch, error) {
	if core == "" || limit <= 0 {
		return nil, nil
	}

	query := `SELECT` + domainMatchColumns + `
		FROM organization_domains d
		JOIN organizations o ON o.id = d.organization_id
		WHERE d.domain ~* $1
		  AND NOT (LOWER(d.domain) = ANY($2))
		ORDER BY d.id
		LIMIT $3`

	var matches []*out.DomainMatch
	err := sqlx.SelectContext(ctx, a.q, &matches, query,
		VariantPattern(core), pq.Array(domain.DomainLookupForms(excludeDomain)), limit)
	if err != nil {
		return nil, wrapErr("find domain variants", err)
	}
	return matches, nil
}

func (a *OrganizationAdapter) CreateOrganization(ctx context.Context, org *out.OrganizationEntity) (int64, error) {
	if org == nil || org.Name == "" {
		return 0, wrapErr("create organization", ErrInvalidInput)
	}
	category := org.Category
	if category == "" {
		category = domain.DefaultOrganizationCategory
	}

	createdAt := org.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `INSERT INTO organizations (name, category, created_at) VALUES ($1, $2, $3) RETURNING id`

	var id int64
	if err := a.q.QueryRowxContext(ctx, query, org.Name, category, createdAt).Scan(&id); err != nil {
		return 0, wrapErr("create organization", err)
	}
	org.ID = id
	return id, nil
}

func (a *OrganizationAdapter) CreateDomain(ctx context.Context, d *out.DomainEntity) error {
	if d == nil || d.OrganizationID == 0 || d.Domain == "" {
		return wrapErr("create domain", ErrInvalidInput)
	}

	query := `INSERT INTO organization_domains (organization_id, domain, is_primary) VALUES ($1, $2, $3)`
	_, err := a.q.ExecContext(ctx, query, d.OrganizationID, domain.NormalizeDomain(d.Domain), d.IsPrimary)
	return wrapErr("create domain", err)
}

func (a *OrganizationAdapter) CreateAssociation(ctx context.Context, assoc *out.AssociationEntity) error {
	if assoc == nil || assoc.ContactID == 0 || assoc.OrganizationID == 0 {
		return wrapErr("create association", ErrInvalidInput)
	}

	query := `INSERT INTO contact_organizations (contact_id, organization_id, is_primary) VALUES ($1, $2, $3)`
	_, err := a.q.ExecContext(ctx, query, assoc.ContactID, assoc.OrganizationID, assoc.IsPrimary)
	return wrapErr("create association", err)
}

// DeleteOrganization removes an organization; its domains and associations cascade.
func (a *OrganizationAdapter) DeleteOrganization(ctx context.Context, organizationID int64) error {
	result, err := a.q.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, organizationID)
	if err != nil {
		return wrapErr("delete organization", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return wrapErr("delete organization", ErrNotFound)
	}
	return nil
}

func (a *OrganizationAdapter) ListAssociations(ctx context.Context, contactID int64) ([]*out.AssociationEntity, error) {
	query := `SELECT contact_id, organization_id, is_primary, created_at
		FROM contact_organizations
		WHERE contact_id = $1
		ORDER BY is_primary DESC, created_at`

	var assocs []*out.AssociationEntity
	if err := sqlx.SelectContext(ctx, a.q, &assocs, query, contactID); err != nil {
		return nil, wrapErr("list associations", err)
	}
	return assocs, nil
}

// RunInTx runs fn against a writer bound to one transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
func (a *OrganizationAdapter) RunInTx(ctx context.Context, fn func(w out.OrganizationWriter) error) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapErr("begin transaction", err)
	}

	if err := fn(&OrganizationAdapter{db: a.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	return wrapErr("commit transaction", tx.Commit())
}
