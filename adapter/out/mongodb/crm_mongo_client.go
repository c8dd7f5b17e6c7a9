// Package mongodb keeps the resolution decision log in MongoDB. The log is
// optional and append-only: each accept or reject is written once and read
// back per contact.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	decisionLogAppName = "crm-decision-log"

	// one write per confirmation, so a small pool is enough
	decisionLogMaxPool = 10
	decisionLogMinPool = 1

	connectTimeout         = 10 * time.Second
	serverSelectionTimeout = 5 * time.Second
)

// OpenDecisionLog connects to the deployment at url and returns the client
// together with a decision log bound to dbName. The client is disconnected
// again when the primary does not answer a ping.
func OpenDecisionLog(ctx context.Context, url, dbName string) (*mongo.Client, *ResolutionLogAdapter, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(url).
		SetAppName(decisionLogAppName).
		SetMaxPoolSize(decisionLogMaxPool).
		SetMinPoolSize(decisionLogMinPool).
		SetMaxConnIdleTime(time.Minute).
		SetServerSelectionTimeout(serverSelectionTimeout).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("connect decision log store: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping decision log store: %w", err)
	}

	return client, NewResolutionLogAdapter(client.Database(dbName)), nil
}
