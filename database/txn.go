package database

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

// WithTransaction runs fn inside a multi-document transaction. The driver
// retries transient write conflicts, so callers can treat fn as all-or-nothing.
func WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := MongoClient.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}
