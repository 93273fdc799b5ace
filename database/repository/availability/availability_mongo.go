package availabilityRepo

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

// MongoAvailabilityRepo implements Repository using MongoDB. Claim atomicity
// comes from document-level FindOneAndUpdate, so unrelated doctors never
// contend on a shared lock.
type MongoAvailabilityRepo struct {
	coll *mongo.Collection
}

// NewMongoAvailabilityRepo creates a new Repository backed by the "doctor_availability" collection.
func NewMongoAvailabilityRepo() Repository {
	return &MongoAvailabilityRepo{coll: database.Collection("doctor_availability")}
}

// EnsureIndexes creates the unique doctor index. Call once at startup.
func (r *MongoAvailabilityRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "doctorId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *MongoAvailabilityRepo) Upsert(ctx context.Context, av *models.DoctorAvailability) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.coll.ReplaceOne(ctx,
		bson.M{"doctorId": av.DoctorID},
		av,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert availability for doctor %s: %w", av.DoctorID, err)
	}
	return nil
}

func (r *MongoAvailabilityRepo) GetByID(ctx context.Context, doctorID string) (*models.DoctorAvailability, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var av models.DoctorAvailability
	if err := r.coll.FindOne(ctx, bson.M{"doctorId": doctorID}).Decode(&av); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch availability for doctor %s: %w", doctorID, err)
	}
	return &av, nil
}

// Claim is the compare-and-set that prevents double-booking: the filter only
// matches a doctor who is still offerable, so exactly one concurrent caller
// can flip the claimed flag.
func (r *MongoAvailabilityRepo) Claim(ctx context.Context, doctorID, requestID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"doctorId":  doctorID,
		"online":    true,
		"inSession": false,
		"claimed":   false,
	}
	update := bson.M{"$set": bson.M{"claimed": true, "claimedBy": requestID}}

	err := r.coll.FindOneAndUpdate(ctx, filter, update).Err()
	if err == mongo.ErrNoDocuments {
		return ErrNotClaimable
	}
	if err != nil {
		return fmt.Errorf("failed to claim doctor %s for request %s: %w", doctorID, requestID, err)
	}
	return nil
}

func (r *MongoAvailabilityRepo) Release(ctx context.Context, doctorID, requestID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// The claimedBy filter keeps a late release from one request from
	// clobbering a claim freshly acquired by another.
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"doctorId": doctorID, "claimedBy": requestID},
		bson.M{"$set": bson.M{"claimed": false, "claimedBy": "", "inSession": false}},
	)
	if err != nil {
		return fmt.Errorf("failed to release doctor %s for request %s: %w", doctorID, requestID, err)
	}
	return nil
}

func (r *MongoAvailabilityRepo) MarkInSession(ctx context.Context, doctorID string, inSession bool) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.coll.UpdateOne(ctx,
		bson.M{"doctorId": doctorID},
		bson.M{"$set": bson.M{"inSession": inSession}},
	)
	if err != nil {
		return fmt.Errorf("failed to set inSession=%t for doctor %s: %w", inSession, doctorID, err)
	}
	return nil
}

func (r *MongoAvailabilityRepo) SetOnline(ctx context.Context, doctorID string, online bool) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.coll.UpdateOne(ctx,
		bson.M{"doctorId": doctorID},
		bson.M{"$set": bson.M{"online": online, "lastHeartbeat": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to set online=%t for doctor %s: %w", online, doctorID, err)
	}
	return nil
}

func (r *MongoAvailabilityRepo) Heartbeat(ctx context.Context, doctorID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.coll.UpdateOne(ctx,
		bson.M{"doctorId": doctorID},
		bson.M{"$set": bson.M{"lastHeartbeat": at}},
	)
	if err != nil {
		return fmt.Errorf("failed to record heartbeat for doctor %s: %w", doctorID, err)
	}
	return nil
}

func (r *MongoAvailabilityRepo) Snapshot(ctx context.Context, criteria SnapshotCriteria) ([]models.DoctorAvailability, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{
		"online":    true,
		"inSession": false,
		"claimed":   false,
	}
	if !criteria.HeartbeatAfter.IsZero() {
		filter["lastHeartbeat"] = bson.M{"$gte": criteria.HeartbeatAfter}
	}

	cursor, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot doctor availability: %w", err)
	}
	defer cursor.Close(ctx)

	var doctors []models.DoctorAvailability
	for cursor.Next(ctx) {
		var av models.DoctorAvailability
		if err := cursor.Decode(&av); err != nil {
			return nil, fmt.Errorf("failed to decode availability: %w", err)
		}
		doctors = append(doctors, av)
	}
	return doctors, nil
}
