package domain

import "time"

// SuggestionKind discriminates the two suggestion shapes.
type SuggestionKind string

const (
	SuggestionExisting SuggestionKind = "existing"
	SuggestionCreate   SuggestionKind = "create"
)

// Suggestion is an ephemeral recommendation to link a contact to an existing
// organization or to create a new one. It is never persisted.
//
// existing: OrganizationID, OrganizationName, Domain, IsPrimaryDomain, MatchReason
// create:   ProposedName, Domain, Category
type Suggestion struct {
	Kind      SuggestionKind `json:"kind"`
	ContactID int64          `json:"contact_id"`
	Domain    string         `json:"domain"`

	OrganizationID   int64   `json:"organization_id,omitempty"`
	OrganizationName string  `json:"organization_name,omitempty"`
	IsPrimaryDomain  bool    `json:"is_primary_domain,omitempty"`
	MatchReason      string  `json:"match_reason,omitempty"`
	Score            float64 `json:"score,omitempty"`

	ProposedName string `json:"proposed_name,omitempty"`
	Category     string `json:"category,omitempty"`

	Generation uint64    `json:"generation"`
	ComputedAt time.Time `json:"computed_at"`
}

// NewExistingSuggestion builds a "link to organization" suggestion.
func NewExistingSuggestion(contactID int64, domain string, orgID int64, orgName string, primary bool, reason string) *Suggestion {
	return &Suggestion{
		Kind:             SuggestionExisting,
		ContactID:        contactID,
		Domain:           domain,
		OrganizationID:   orgID,
		OrganizationName: orgName,
		IsPrimaryDomain:  primary,
		MatchReason:      reason,
	}
}

// NewCreateSuggestion builds a "create organization" suggestion.
func NewCreateSuggestion(contactID int64, domain, proposedName, category string) *Suggestion {
	return &Suggestion{
		Kind:         SuggestionCreate,
		ContactID:    contactID,
		Domain:       domain,
		ProposedName: proposedName,
		Category:     category,
	}
}

func (s *Suggestion) IsExisting() bool { return s != nil && s.Kind == SuggestionExisting }
func (s *Suggestion) IsCreate() bool   { return s != nil && s.Kind == SuggestionCreate }

// SuggestionState tracks a contact through the confirmation workflow.
type SuggestionState string

const (
	StateSuggested  SuggestionState = "suggested"
	StateConfirming SuggestionState = "confirming" // an accept or reject holds the contact
	StateAccepted   SuggestionState = "accepted"
	StateRejected   SuggestionState = "rejected"
)

// ManualFlowContext is handed to the manual association flow after a rejection.
type ManualFlowContext struct {
	Contact      *Contact      `json:"contact"`
	Associations []Association `json:"associations"`
	Rejected     *Suggestion   `json:"rejected,omitempty"`
}

// ResolutionDecision is the audit record of an accept or reject.
type ResolutionDecision struct {
	ID             string          `json:"id" bson:"id"`
	ContactID      int64           `json:"contact_id" bson:"contact_id"`
	State          SuggestionState `json:"state" bson:"state"`
	Kind           SuggestionKind  `json:"kind" bson:"kind"`
	Domain         string          `json:"domain" bson:"domain"`
	OrganizationID int64           `json:"organization_id,omitempty" bson:"organization_id,omitempty"`
	MatchReason    string          `json:"match_reason,omitempty" bson:"match_reason,omitempty"`
	DecidedAt      time.Time       `json:"decided_at" bson:"decided_at"`
}
