package persistence

import (
	"context"
	"fmt"
	"time"

	"crm_server/core/domain"
	"crm_server/core/port/out"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ContactAdapter implements out.ContactRepository using PostgreSQL.
type ContactAdapter struct {
	db *sqlx.DB
}

// NewContactAdapter creates a new ContactAdapter.
func NewContactAdapter(db *sqlx.DB) *ContactAdapter {
	return &ContactAdapter{db: db}
}

var _ out.ContactRepository = (*ContactAdapter)(nil)

// contactRow represents the database row for contacts.
type contactRow struct {
	ID        int64     `db:"id"`
	FirstName string    `db:"first_name"`
	LastName  string    `db:"last_name"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *contactRow) toDomain() *domain.Contact {
	return &domain.Contact{
		ID:        r.ID,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type emailRow struct {
	ContactID int64  `db:"contact_id"`
	Address   string `db:"address"`
	IsPrimary bool   `db:"is_primary"`
}

// GetByID loads a contact with its emails and associations.
func (a *ContactAdapter) GetByID(ctx context.Context, id int64) (*domain.Contact, error) {
	var row contactRow
	query := `SELECT id, first_name, last_name, created_at, updated_at FROM contacts WHERE id = $1`
	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, wrapErr("get contact", err)
	}

	contact := row.toDomain()
	if err := a.attachEmails(ctx, []*domain.Contact{contact}); err != nil {
		return nil, err
	}

	var assocs []*out.AssociationEntity
	assocQuery := `SELECT contact_id, organization_id, is_primary, created_at
		FROM contact_organizations WHERE contact_id = $1 ORDER BY is_primary DESC, created_at`
	if err := a.db.SelectContext(ctx, &assocs, assocQuery, id); err != nil {
		return nil, wrapErr("get contact associations", err)
	}
	for _, e := range assocs {
		contact.Associations = append(contact.Associations, domain.Association{
			ContactID:      e.ContactID,
			OrganizationID: e.OrganizationID,
			IsPrimary:      e.IsPrimary,
			CreatedAt:      e.CreatedAt,
		})
	}

	return contact, nil
}

// ListUnassociated pages through contacts that have at least one email and no
// organization, ordered by name.
func (a *ContactAdapter) ListUnassociated(ctx context.Context, query *out.ContactListQuery) ([]*domain.Contact, int, error) {
	if query == nil {
		query = &out.ContactListQuery{}
	}
	limit := query.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := max(query.Offset, 0)

	baseQuery := ` FROM contacts c
		WHERE NOT EXISTS (SELECT 1 FROM contact_organizations co WHERE co.contact_id = c.id)
		  AND EXISTS (SELECT 1 FROM contact_emails e WHERE e.contact_id = c.id AND e.address <> '')`
	args := []interface{}{}
	argIdx := 1

	if query.Search != "" {
		baseQuery += fmt.Sprintf(` AND (c.first_name ILIKE $%d OR c.last_name ILIKE $%d)`, argIdx, argIdx)
		args = append(args, "%"+query.Search+"%")
		argIdx++
	}

	var total int
	if err := a.db.QueryRowxContext(ctx, `SELECT COUNT(*)`+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, wrapErr("count unassociated contacts", err)
	}

	selectQuery := fmt.Sprintf(`SELECT c.id, c.first_name, c.last_name, c.created_at, c.updated_at%s
		ORDER BY c.last_name, c.first_name, c.id LIMIT $%d OFFSET $%d`, baseQuery, argIdx, argIdx+1)
	args = append(args, limit, offset)

	var rows []contactRow
	if err := a.db.SelectContext(ctx, &rows, selectQuery, args...); err != nil {
		return nil, 0, wrapErr("list unassociated contacts", err)
	}

	contacts := make([]*domain.Contact, len(rows))
	for i := range rows {
		contacts[i] = rows[i].toDomain()
	}
	if err := a.attachEmails(ctx, contacts); err != nil {
		return nil, 0, err
	}
	return contacts, total, nil
}

// attachEmails loads the emails of all contacts in one query.
func (a *ContactAdapter) attachEmails(ctx context.Context, contacts []*domain.Contact) error {
	if len(contacts) == 0 {
		return nil
	}

	ids := make([]int64, len(contacts))
	byID := make(map[int64]*domain.Contact, len(contacts))
	for i, c := range contacts {
		ids[i] = c.ID
		byID[c.ID] = c
	}

	query := `SELECT contact_id, address, is_primary
		FROM contact_emails
		WHERE contact_id = ANY($1)
		ORDER BY contact_id, is_primary DESC, id`

	var emails []emailRow
	if err := a.db.SelectContext(ctx, &emails, query, pq.Array(ids)); err != nil {
		return wrapErr("list contact emails", err)
	}

	for _, e := range emails {
		if c, ok := byID[e.ContactID]; ok {
			c.Emails = append(c.Emails, domain.ContactEmail{Address: e.Address, IsPrimary: e.IsPrimary})
		}
	}
	return nil
}
