package resolution

import (
	"context"

	"crm_server/core/domain"
	"crm_server/core/port/in"
)

// Service wires the scheduler, the store and the confirmation workflow behind
// in.ResolutionService.
type Service struct {
	scheduler *BatchScheduler
	workflow  *ConfirmationWorkflow
	store     *SuggestionStore
}

var _ in.ResolutionService = (*Service)(nil)

// NewService creates the resolution service.
func NewService(scheduler *BatchScheduler, workflow *ConfirmationWorkflow) *Service {
	return &Service{
		scheduler: scheduler,
		workflow:  workflow,
		store:     scheduler.Store(),
	}
}

func (s *Service) ComputeSuggestions(ctx context.Context, contacts []*domain.Contact) (map[int64]*domain.Suggestion, error) {
	return s.scheduler.ComputeSuggestions(ctx, contacts)
}

func (s *Service) AcceptSuggestion(ctx context.Context, contact *domain.Contact, suggestion *domain.Suggestion) error {
	return s.workflow.Accept(ctx, contact, suggestion)
}

func (s *Service) RejectSuggestion(ctx context.Context, contact *domain.Contact) (*domain.ManualFlowContext, error) {
	return s.workflow.Reject(ctx, contact)
}

func (s *Service) Snapshot() (map[int64]*domain.Suggestion, uint64) {
	return s.store.Snapshot()
}

func (s *Service) Suggestion(contactID int64) (*domain.Suggestion, bool) {
	return s.store.Get(contactID)
}
