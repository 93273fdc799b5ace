package offerRepo

import (
	"context"
	"fmt"
	"time"

	"medilink/database"
	"medilink/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoOfferRepo implements Repository using MongoDB.
type MongoOfferRepo struct {
	coll *mongo.Collection
}

// NewMongoOfferRepo creates a new Repository backed by the "offers" collection.
func NewMongoOfferRepo() Repository {
	return &MongoOfferRepo{coll: database.Collection("offers")}
}

func (r *MongoOfferRepo) Create(ctx context.Context, offer *models.Offer) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, offer); err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	return nil
}

func (r *MongoOfferRepo) GetByID(ctx context.Context, id string) (*models.Offer, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var offer models.Offer
	if err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&offer); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch offer %s: %w", id, err)
	}
	return &offer, nil
}

// Resolve is the single atomic check shared by accept, reject and expire.
// Whichever caller matches the outstanding filter first wins; everyone else
// gets ErrResolved and must treat the operation as a no-op.
func (r *MongoOfferRepo) Resolve(ctx context.Context, id string, to models.OfferStatus, reason string, at time.Time) (*models.Offer, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"status":     to,
		"reason":     reason,
		"resolvedAt": at,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var offer models.Offer
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"id": id, "status": models.OfferOutstanding},
		update, opts,
	).Decode(&offer)
	if err == mongo.ErrNoDocuments {
		return nil, ErrResolved
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve offer %s to %s: %w", id, to, err)
	}
	return &offer, nil
}

func (r *MongoOfferRepo) ListOutstanding(ctx context.Context) ([]models.Offer, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cursor, err := r.coll.Find(ctx, bson.M{"status": models.OfferOutstanding})
	if err != nil {
		return nil, fmt.Errorf("failed to list outstanding offers: %w", err)
	}
	defer cursor.Close(ctx)

	var offers []models.Offer
	for cursor.Next(ctx) {
		var o models.Offer
		if err := cursor.Decode(&o); err != nil {
			return nil, fmt.Errorf("failed to decode offer: %w", err)
		}
		offers = append(offers, o)
	}
	return offers, nil
}
