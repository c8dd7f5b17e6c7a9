package out

import (
	"context"
	"time"

	"crm_server/core/domain"
)

// SuggestionEventType names what changed in the suggestion store.
type SuggestionEventType string

const (
	EventPassCompleted SuggestionEventType = "suggestions.pass_completed"
	EventAccepted      SuggestionEventType = "suggestions.accepted"
	EventRejected      SuggestionEventType = "suggestions.rejected"
	EventDropped       SuggestionEventType = "suggestions.dropped"
)

// SuggestionsUpdatedEvent is emitted whenever the suggestion map changes.
type SuggestionsUpdatedEvent struct {
	ID         string              `json:"id"`
	Type       SuggestionEventType `json:"type"`
	Generation uint64              `json:"generation"`
	ContactIDs []int64             `json:"contact_ids,omitempty"`
	Count      int                 `json:"count"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// SuggestionEventPublisher forwards suggestion events to other processes.
type SuggestionEventPublisher interface {
	PublishSuggestionsUpdated(ctx context.Context, event *SuggestionsUpdatedEvent) error
}

// ResolutionLogRepository stores accept/reject decisions.
type ResolutionLogRepository interface {
	RecordDecision(ctx context.Context, decision *domain.ResolutionDecision) error
	ListDecisions(ctx context.Context, contactID int64, limit int) ([]*domain.ResolutionDecision, error)
}

// SuggestionEventSink receives suggestion events in process. Implementations
// must not block.
type SuggestionEventSink interface {
	Notify(event *SuggestionsUpdatedEvent)
}
