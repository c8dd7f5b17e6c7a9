package resolution

import (
	"context"
	"errors"
	"time"

	"crm_server/core/domain"
	"crm_server/core/port/out"
	"crm_server/pkg/apperr"
	"crm_server/pkg/logger"
	"crm_server/pkg/metrics"

	"github.com/google/uuid"
)

var (
	// ErrStaleSuggestion means the contact gained an association after the
	// suggestion was computed.
	ErrStaleSuggestion = errors.New("suggestion is stale")

	// ErrSuggestionNotFound means no suggestion is pending for the contact.
	ErrSuggestionNotFound = errors.New("suggestion not found")

	// ErrConfirmationInProgress means another accept or reject for the same
	// contact has not finished yet.
	ErrConfirmationInProgress = errors.New("confirmation already in progress")
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeStale   = "stale"
)

// ConfirmationWorkflow turns an accepted suggestion into persisted records and
// hands rejected contacts to the manual association flow.
type ConfirmationWorkflow struct {
	repo      out.OrganizationRepository
	store     *SuggestionStore
	decisions out.ResolutionLogRepository
	metrics   *metrics.ResolutionMetrics
	log       *logger.Logger
	now       func() time.Time
}

// NewConfirmationWorkflow creates a workflow. decisions may be nil.
func NewConfirmationWorkflow(repo out.OrganizationRepository, store *SuggestionStore, decisions out.ResolutionLogRepository) *ConfirmationWorkflow {
	return &ConfirmationWorkflow{
		repo:      repo,
		store:     store,
		decisions: decisions,
		log:       logger.WithComponent("confirmation_workflow"),
		now:       time.Now,
	}
}

// WithMetrics attaches Prometheus metrics.
func (w *ConfirmationWorkflow) WithMetrics(m *metrics.ResolutionMetrics) *ConfirmationWorkflow {
	w.metrics = m
	return w
}

// Accept persists suggestion for contact. When suggestion is nil the pending
// suggestion from the store is used. Only one accept or reject per contact
// runs at a time. On failure the suggestion stays in the store so the caller
// can retry.
func (w *ConfirmationWorkflow) Accept(ctx context.Context, contact *domain.Contact, suggestion *domain.Suggestion) error {
	if contact == nil {
		return apperr.BadRequest("contact is required")
	}
	if suggestion == nil {
		pending, ok := w.store.Get(contact.ID)
		if !ok {
			return apperr.SuggestionNotFound(contact.ID).WithError(ErrSuggestionNotFound)
		}
		suggestion = pending
	}
	if suggestion.ContactID != 0 && suggestion.ContactID != contact.ID {
		return apperr.InvalidInput("contact_id", "suggestion belongs to another contact")
	}

	if !w.store.Claim(contact.ID) {
		return confirmationInProgress(contact.ID)
	}
	settled := false
	defer func() {
		if !settled {
			w.store.Release(contact.ID)
		}
	}()

	log := w.log.WithContext(ctx).WithFields(map[string]any{
		"contact_id": contact.ID,
		"kind":       string(suggestion.Kind),
		"domain":     suggestion.Domain,
	})

	existing, err := w.repo.ListAssociations(ctx, contact.ID)
	if err != nil {
		return apperr.DatabaseError("list associations", err)
	}
	if len(existing) > 0 {
		settled = true
		w.store.Drop(contact.ID)
		w.metrics.IncDecision(string(domain.StateAccepted), string(suggestion.Kind), outcomeStale)
		log.Info("suggestion dropped: contact already has an organization")
		return apperr.SuggestionStale(contact.ID).WithError(ErrStaleSuggestion)
	}

	var orgID int64
	switch suggestion.Kind {
	case domain.SuggestionCreate:
		orgID, err = w.acceptCreate(ctx, contact.ID, suggestion)
	case domain.SuggestionExisting:
		orgID = suggestion.OrganizationID
		err = w.associate(ctx, w.repo, contact.ID, orgID)
	default:
		return apperr.InvalidInput("kind", "unknown suggestion kind")
	}
	if err != nil {
		w.metrics.IncDecision(string(domain.StateAccepted), string(suggestion.Kind), outcomeFailure)
		log.WithError(err).Error("accept suggestion failed")
		return err
	}

	settled = true
	w.store.MarkAccepted(contact.ID)
	w.metrics.IncDecision(string(domain.StateAccepted), string(suggestion.Kind), outcomeSuccess)
	log.WithField("organization_id", orgID).Info("suggestion accepted")

	w.record(ctx, contact.ID, domain.StateAccepted, suggestion, orgID)
	return nil
}

// Reject removes the contact's suggestion without touching organizations or
// domains and returns the context the manual association flow starts from.
func (w *ConfirmationWorkflow) Reject(ctx context.Context, contact *domain.Contact) (*domain.ManualFlowContext, error) {
	if contact == nil {
		return nil, apperr.BadRequest("contact is required")
	}

	if !w.store.Claim(contact.ID) {
		return nil, confirmationInProgress(contact.ID)
	}

	entities, err := w.repo.ListAssociations(ctx, contact.ID)
	if err != nil {
		w.store.Release(contact.ID)
		return nil, apperr.DatabaseError("list associations", err)
	}

	rejected, _ := w.store.MarkRejected(contact.ID)
	kind := ""
	if rejected != nil {
		kind = string(rejected.Kind)
	}
	w.metrics.IncDecision(string(domain.StateRejected), kind, outcomeSuccess)

	w.log.WithContext(ctx).
		WithField("contact_id", contact.ID).
		WithField("associations", len(entities)).
		Info("suggestion rejected, handing off to manual association")

	if rejected != nil {
		w.record(ctx, contact.ID, domain.StateRejected, rejected, 0)
	}

	return &domain.ManualFlowContext{
		Contact:      contact,
		Associations: toAssociations(entities),
		Rejected:     rejected,
	}, nil
}

// acceptCreate creates the organization, its primary domain and the
// association as one unit. Stores that support transactions run the three
// writes in one; otherwise a failure after the organization exists deletes it.
func (w *ConfirmationWorkflow) acceptCreate(ctx context.Context, contactID int64, s *domain.Suggestion) (int64, error) {
	if tx, ok := w.repo.(out.OrganizationTxRunner); ok {
		var orgID int64
		err := tx.RunInTx(ctx, func(wr out.OrganizationWriter) error {
			id, err := w.createChain(ctx, wr, contactID, s)
			orgID = id
			return err
		})
		if err != nil {
			return 0, asPersistenceError(err)
		}
		return orgID, nil
	}

	orgID, err := w.createChain(ctx, w.repo, contactID, s)
	if err != nil && orgID != 0 {
		if derr := w.repo.DeleteOrganization(ctx, orgID); derr != nil {
			w.log.WithContext(ctx).
				WithError(derr).
				WithField("organization_id", orgID).
				Error("compensating delete failed, organization left without domain")
		}
		return 0, err
	}
	return orgID, err
}

// createChain runs organization, domain and association creation in order.
// The returned ID is set once the organization exists, even on failure.
func (w *ConfirmationWorkflow) createChain(ctx context.Context, wr out.OrganizationWriter, contactID int64, s *domain.Suggestion) (int64, error) {
	orgID, err := wr.CreateOrganization(ctx, &out.OrganizationEntity{
		Name:      s.ProposedName,
		Category:  s.Category,
		CreatedAt: w.now(),
	})
	if err != nil {
		return 0, apperr.OrganizationCreateFailed(err)
	}

	if err := wr.CreateDomain(ctx, &out.DomainEntity{
		OrganizationID: orgID,
		Domain:         s.Domain,
		IsPrimary:      true,
	}); err != nil {
		return orgID, apperr.DomainCreateFailed(err)
	}

	if err := w.associate(ctx, wr, contactID, orgID); err != nil {
		return orgID, err
	}
	return orgID, nil
}

func (w *ConfirmationWorkflow) associate(ctx context.Context, wr out.OrganizationWriter, contactID, orgID int64) error {
	if err := wr.CreateAssociation(ctx, &out.AssociationEntity{
		ContactID:      contactID,
		OrganizationID: orgID,
		IsPrimary:      true,
		CreatedAt:      w.now(),
	}); err != nil {
		return apperr.AssociationFailed(err)
	}
	return nil
}

// record writes the decision log entry. Failures are logged only.
func (w *ConfirmationWorkflow) record(ctx context.Context, contactID int64, state domain.SuggestionState, s *domain.Suggestion, orgID int64) {
	if w.decisions == nil {
		return
	}
	if orgID == 0 {
		orgID = s.OrganizationID
	}
	decision := &domain.ResolutionDecision{
		ID:             uuid.NewString(),
		ContactID:      contactID,
		State:          state,
		Kind:           s.Kind,
		Domain:         s.Domain,
		OrganizationID: orgID,
		MatchReason:    s.MatchReason,
		DecidedAt:      w.now(),
	}
	if err := w.decisions.RecordDecision(ctx, decision); err != nil {
		w.log.WithContext(ctx).WithError(err).Warn("failed to record resolution decision")
	}
}

func confirmationInProgress(contactID int64) error {
	return apperr.Conflict("suggestion for this contact is already being confirmed").
		WithDetail("contact_id", contactID).
		WithError(ErrConfirmationInProgress)
}

// asPersistenceError keeps the step-specific AppError raised inside a
// transaction and wraps anything else (begin/commit failures).
func asPersistenceError(err error) error {
	if apperr.IsAppError(err) {
		return err
	}
	return apperr.OrganizationCreateFailed(err)
}

func toAssociations(entities []*out.AssociationEntity) []domain.Association {
	assocs := make([]domain.Association, 0, len(entities))
	for _, e := range entities {
		if e == nil {
			continue
		}
		assocs = append(assocs, domain.Association{
			ContactID:      e.ContactID,
			OrganizationID: e.OrganizationID,
			IsPrimary:      e.IsPrimary,
			CreatedAt:      e.CreatedAt,
		})
	}
	return assocs
}
