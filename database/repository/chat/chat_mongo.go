package chatRepo

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

// MongoChatRepo implements Repository using MongoDB.
type MongoChatRepo struct {
	msgColl     *mongo.Collection
	pointerColl *mongo.Collection
}

// NewMongoChatRepo creates a new Repository backed by the "chat_messages"
// and "chat_read_pointers" collections.
func NewMongoChatRepo() Repository {
	return &MongoChatRepo{
		msgColl:     database.Collection("chat_messages"),
		pointerColl: database.Collection("chat_read_pointers"),
	}
}

// EnsureIndexes creates the per-session sequence index. Call once at startup.
func (r *MongoChatRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.msgColl.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "sessionId", Value: 1}, {Key: "seq", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = r.pointerColl.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "sessionId", Value: 1}, {Key: "readerId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *MongoChatRepo) Insert(ctx context.Context, msg *models.ChatMessage) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.msgColl.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}

func (r *MongoChatRepo) ListBySession(ctx context.Context, sessionID string, afterSeq int64, limit int64) ([]models.ChatMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := r.msgColl.Find(ctx,
		bson.M{"sessionId": sessionID, "seq": bson.M{"$gt": afterSeq}},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages for session %s: %w", sessionID, err)
	}
	defer cursor.Close(ctx)

	var msgs []models.ChatMessage
	for cursor.Next(ctx) {
		var m models.ChatMessage
		if err := cursor.Decode(&m); err != nil {
			return nil, fmt.Errorf("failed to decode chat message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (r *MongoChatRepo) MarkDelivered(ctx context.Context, messageID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.msgColl.UpdateOne(ctx,
		bson.M{"id": messageID},
		bson.M{"$set": bson.M{"delivered": true}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark message %s delivered: %w", messageID, err)
	}
	return nil
}

func (r *MongoChatRepo) GetReadPointer(ctx context.Context, sessionID, readerID string) (*models.ReadPointer, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var ptr models.ReadPointer
	err := r.pointerColl.FindOne(ctx, bson.M{"sessionId": sessionID, "readerId": readerID}).Decode(&ptr)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch read pointer for session %s reader %s: %w", sessionID, readerID, err)
	}
	return &ptr, nil
}

func (r *MongoChatRepo) AdvanceReadPointer(ctx context.Context, sessionID, readerID string, upToSeq int64, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	existing, err := r.GetReadPointer(ctx, sessionID, readerID)
	if err != nil {
		return err
	}
	if existing != nil {
		if upToSeq < existing.UpToSeq {
			return ErrPointerRegressed
		}
		if upToSeq == existing.UpToSeq {
			return nil
		}
	}

	// $max guards against a concurrent advance racing past us between the
	// read above and this write.
	_, err = r.pointerColl.UpdateOne(ctx,
		bson.M{"sessionId": sessionID, "readerId": readerID},
		bson.M{
			"$max": bson.M{"upToSeq": upToSeq},
			"$set": bson.M{"updatedAt": at},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to advance read pointer for session %s reader %s: %w", sessionID, readerID, err)
	}

	_, err = r.msgColl.UpdateMany(ctx,
		bson.M{
			"sessionId": sessionID,
			"seq":       bson.M{"$lte": upToSeq},
			"senderId":  bson.M{"$ne": readerID},
		},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark messages read for session %s: %w", sessionID, err)
	}
	return nil
}
