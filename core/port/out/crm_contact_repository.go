package out

import (
	"context"

	"crm_server/core/domain"
)

// ContactRepository defines the outbound port for the contact reads the
// resolver needs. Generic contact CRUD lives elsewhere.
type ContactRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Contact, error)

	// ListUnassociated returns contacts with no organization association and at
	// least one email, ordered by name, plus the total count.
	ListUnassociated(ctx context.Context, query *ContactListQuery) ([]*domain.Contact, int, error)
}

// ContactListQuery represents contact list query parameters.
type ContactListQuery struct {
	Search string
	Limit  int
	Offset int
}
