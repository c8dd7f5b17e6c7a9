package mongodb

import (
	"context"
	"testing"
	"time"

	"crm_server/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestResolutionLogAdapter_RecordDecision(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("fills id and timestamp", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		a := NewResolutionLogAdapter(mt.DB)
		fixed := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
		a.now = func() time.Time { return fixed }

		d := &domain.ResolutionDecision{ContactID: 4, State: domain.StateAccepted, Kind: domain.SuggestionCreate, Domain: "newco.io"}
		require.NoError(mt, a.RecordDecision(context.Background(), d))
		assert.NotEmpty(mt, d.ID)
		assert.Equal(mt, fixed, d.DecidedAt)
	})

	mt.Run("write error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))
		a := NewResolutionLogAdapter(mt.DB)

		err := a.RecordDecision(context.Background(), &domain.ResolutionDecision{ID: "dup", ContactID: 1})
		require.Error(mt, err)
		assert.Contains(mt, err.Error(), "failed to record decision")
	})
}

func TestResolutionLogAdapter_ListDecisions(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("decodes documents", func(mt *mtest.T) {
		decided := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
		ns := mt.DB.Name() + "." + collectionDecisions
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{
				{Key: "id", Value: "d2"},
				{Key: "contact_id", Value: int64(4)},
				{Key: "state", Value: "rejected"},
				{Key: "kind", Value: "existing"},
				{Key: "domain", Value: "acme.com"},
				{Key: "organization_id", Value: int64(7)},
				{Key: "decided_at", Value: decided},
			},
			bson.D{
				{Key: "id", Value: "d1"},
				{Key: "contact_id", Value: int64(4)},
				{Key: "state", Value: "accepted"},
				{Key: "kind", Value: "create"},
				{Key: "domain", Value: "acme.com"},
				{Key: "decided_at", Value: decided.Add(-time.Hour)},
			},
		))
		a := NewResolutionLogAdapter(mt.DB)

		got, err := a.ListDecisions(context.Background(), 4, 0)
		require.NoError(mt, err)
		require.Len(mt, got, 2)
		assert.Equal(mt, "d2", got[0].ID)
		assert.Equal(mt, domain.StateRejected, got[0].State)
		assert.Equal(mt, int64(7), got[0].OrganizationID)
		assert.True(mt, got[0].DecidedAt.Equal(decided))
		assert.Equal(mt, domain.SuggestionCreate, got[1].Kind)
	})

	mt.Run("command error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Message: "bad query",
		}))
		a := NewResolutionLogAdapter(mt.DB)

		_, err := a.ListDecisions(context.Background(), 4, 10)
		require.Error(mt, err)
	})
}
