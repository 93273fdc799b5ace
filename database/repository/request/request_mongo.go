package requestRepo

import (
	"context"
	"fmt"
	"time"

	"medilink/database"
	"medilink/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoRequestRepo implements Repository using MongoDB.
type MongoRequestRepo struct {
	coll *mongo.Collection
}

// NewMongoRequestRepo creates a new Repository backed by the "emergency_requests" collection.
func NewMongoRequestRepo() Repository {
	return &MongoRequestRepo{coll: database.Collection("emergency_requests")}
}

func (r *MongoRequestRepo) Create(ctx context.Context, req *models.EmergencyRequest) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, req); err != nil {
		return fmt.Errorf("failed to create emergency request: %w", err)
	}
	return nil
}

func (r *MongoRequestRepo) GetByID(ctx context.Context, id string) (*models.EmergencyRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var req models.EmergencyRequest
	if err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&req); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch emergency request %s: %w", id, err)
	}
	return &req, nil
}

// Transition performs the optimistic-concurrency state change. The filter on
// the expected state is what makes concurrent dispatch loops for the same
// request impossible: the loser sees ErrStaleState.
func (r *MongoRequestRepo) Transition(ctx context.Context, id string, from models.RequestState, entry models.StateTransition, extra bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	set := bson.M{
		"state":     entry.To,
		"updatedAt": entry.At,
	}
	for k, v := range extra {
		set[k] = v
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"id": id, "state": from},
		bson.M{
			"$set":  set,
			"$push": bson.M{"history": entry},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to transition request %s from %s to %s: %w", id, from, entry.To, err)
	}
	if res.MatchedCount == 0 {
		// Distinguish a missing document from a lost optimistic check.
		n, err := r.coll.CountDocuments(ctx, bson.M{"id": id})
		if err == nil && n == 0 {
			return ErrNotFound
		}
		return ErrStaleState
	}
	return nil
}
