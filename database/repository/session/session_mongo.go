package sessionRepo

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

// MongoSessionRepo implements Repository using MongoDB.
type MongoSessionRepo struct {
	coll *mongo.Collection
}

// NewMongoSessionRepo creates a new Repository backed by the "sessions" collection.
func NewMongoSessionRepo() Repository {
	return &MongoSessionRepo{coll: database.Collection("sessions")}
}

func (r *MongoSessionRepo) Create(ctx context.Context, s *models.Session) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, s); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *MongoSessionRepo) GetByID(ctx context.Context, id string) (*models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var s models.Session
	if err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&s); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch session %s: %w", id, err)
	}
	return &s, nil
}

func (r *MongoSessionRepo) UpdatePresence(ctx context.Context, sessionID string, p models.Participant, presence models.MediaPresence) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	field := "patient"
	if p == models.ParticipantDoctor {
		field = "doctor"
	}
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"id": sessionID},
		bson.M{"$set": bson.M{field: presence}},
	)
	if err != nil {
		return fmt.Errorf("failed to update %s presence for session %s: %w", field, sessionID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoSessionRepo) End(ctx context.Context, sessionID string, reason models.EndReason, note string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	set := bson.M{
		"state":      models.SessionEnded,
		"endReason":  reason,
		"chatClosed": true,
		"endedAt":    at,
	}
	if note != "" {
		set["completionNote"] = note
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"id": sessionID, "state": models.SessionActive},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", sessionID, err)
	}
	if res.MatchedCount == 0 {
		n, err := r.coll.CountDocuments(ctx, bson.M{"id": sessionID})
		if err == nil && n == 0 {
			return ErrNotFound
		}
		return ErrEnded
	}
	return nil
}

// NextSeq relies on Mongo's document-level atomicity of $inc: concurrent
// senders each get a distinct, consecutive counter value.
func (r *MongoSessionRepo) NextSeq(ctx context.Context, sessionID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var s models.Session
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"id": sessionID, "chatClosed": false},
		bson.M{"$inc": bson.M{"nextSeq": 1}},
		opts,
	).Decode(&s)
	if err == mongo.ErrNoDocuments {
		n, cerr := r.coll.CountDocuments(ctx, bson.M{"id": sessionID})
		if cerr == nil && n == 0 {
			return 0, ErrNotFound
		}
		return 0, ErrChatClosed
	}
	if err != nil {
		return 0, fmt.Errorf("failed to advance chat sequence for session %s: %w", sessionID, err)
	}
	return s.NextSeq, nil
}

func (r *MongoSessionRepo) ListActive(ctx context.Context) ([]models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cursor, err := r.coll.Find(ctx, bson.M{"state": models.SessionActive})
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []models.Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode active sessions: %w", err)
	}
	return sessions, nil
}
