package mongodb

import (
	"context"
	"fmt"
	"time"

	"crm_server/core/domain"
	"crm_server/core/port/out"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionDecisions = "resolution_decisions"

	decisionRetention   = 180 * 24 * time.Hour
	defaultListDecision = 20
	maxListDecision     = 200
)

// ResolutionLogAdapter implements out.ResolutionLogRepository using MongoDB.
type ResolutionLogAdapter struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewResolutionLogAdapter creates a new decision log adapter.
func NewResolutionLogAdapter(db *mongo.Database) *ResolutionLogAdapter {
	return &ResolutionLogAdapter{
		collection: db.Collection(collectionDecisions),
		now:        time.Now,
	}
}

var _ out.ResolutionLogRepository = (*ResolutionLogAdapter)(nil)

// EnsureIndexes creates the lookup and TTL indexes.
func (a *ResolutionLogAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "contact_id", Value: 1},
				{Key: "decided_at", Value: -1},
			},
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

type decisionDocument struct {
	ID             string    `bson:"id"`
	ContactID      int64     `bson:"contact_id"`
	State          string    `bson:"state"`
	Kind           string    `bson:"kind"`
	Domain         string    `bson:"domain"`
	OrganizationID int64     `bson:"organization_id,omitempty"`
	MatchReason    string    `bson:"match_reason,omitempty"`
	DecidedAt      time.Time `bson:"decided_at"`
	ExpiresAt      time.Time `bson:"expires_at"`
}

// RecordDecision inserts one decision. Missing ID and DecidedAt are filled in.
func (a *ResolutionLogAdapter) RecordDecision(ctx context.Context, d *domain.ResolutionDecision) error {
	if d == nil {
		return nil
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = a.now().UTC()
	}

	doc := decisionDocument{
		ID:             d.ID,
		ContactID:      d.ContactID,
		State:          string(d.State),
		Kind:           string(d.Kind),
		Domain:         d.Domain,
		OrganizationID: d.OrganizationID,
		MatchReason:    d.MatchReason,
		DecidedAt:      d.DecidedAt,
		ExpiresAt:      d.DecidedAt.Add(decisionRetention),
	}

	if _, err := a.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	return nil
}

// ListDecisions returns the newest decisions for a contact.
func (a *ResolutionLogAdapter) ListDecisions(ctx context.Context, contactID int64, limit int) ([]*domain.ResolutionDecision, error) {
	if limit <= 0 {
		limit = defaultListDecision
	}
	if limit > maxListDecision {
		limit = maxListDecision
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "decided_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := a.collection.Find(ctx, bson.M{"contact_id": contactID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []decisionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode decisions: %w", err)
	}

	result := make([]*domain.ResolutionDecision, len(docs))
	for i, doc := range docs {
		result[i] = &domain.ResolutionDecision{
			ID:             doc.ID,
			ContactID:      doc.ContactID,
			State:          domain.SuggestionState(doc.State),
			Kind:           domain.SuggestionKind(doc.Kind),
			Domain:         doc.Domain,
			OrganizationID: doc.OrganizationID,
			MatchReason:    doc.MatchReason,
			DecidedAt:      doc.DecidedAt,
		}
	}
	return result, nil
}
