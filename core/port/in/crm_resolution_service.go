package in

import (
	"context"

	"crm_server/core/domain"
)

// ResolutionService is the surface the UI layer uses to drive organization
// resolution.
type ResolutionService interface {
	// ComputeSuggestions runs one batch pass and returns the suggestions keyed by contact ID.
	ComputeSuggestions(ctx context.Context, contacts []*domain.Contact) (map[int64]*domain.Suggestion, error)

	AcceptSuggestion(ctx context.Context, contact *domain.Contact, suggestion *domain.Suggestion) error
	RejectSuggestion(ctx context.Context, contact *domain.Contact) (*domain.ManualFlowContext, error)

	// Snapshot returns a copy of the current suggestion map and its generation.
	Snapshot() (map[int64]*domain.Suggestion, uint64)
	Suggestion(contactID int64) (*domain.Suggestion, bool)
}
