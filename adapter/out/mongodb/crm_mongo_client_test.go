package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDecisionLog_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	client, log, err := OpenDecisionLog(ctx, "mongodb://127.0.0.1:1/?connect=direct", "crm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping decision log store")
	assert.Nil(t, client)
	assert.Nil(t, log)
}

func TestOpenDecisionLog_InvalidURL(t *testing.T) {
	_, _, err := OpenDecisionLog(context.Background(), "not-a-mongo-url", "crm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect decision log store")
}
