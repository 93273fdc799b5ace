package chatRepo

import (
	"context"
	"errors"
	"time"

	"medilink/models"
)

var (
	// ErrPointerRegressed signals an attempt to move a read pointer backward.
	ErrPointerRegressed = errors.New("read pointer may not move backward")
)

// Repository defines data access for chat messages and read pointers.
type Repository interface {
	// Insert appends a message. The caller has already assigned the
	// sequence number through the session counter.
	Insert(ctx context.Context, msg *models.ChatMessage) error
	// ListBySession returns a session's messages with seq > afterSeq in
	// sequence order. A limit of 0 means no limit.
	ListBySession(ctx context.Context, sessionID string, afterSeq int64, limit int64) ([]models.ChatMessage, error)
	// MarkDelivered flags a stored message as handed to the delivery transport.
	MarkDelivered(ctx context.Context, messageID string) error
	// GetReadPointer returns a reader's pointer, or nil when none exists yet.
	GetReadPointer(ctx context.Context, sessionID, readerID string) (*models.ReadPointer, error)
	// AdvanceReadPointer moves a reader's pointer forward and marks the
	// covered messages read. Fails with ErrPointerRegressed on a backward
	// move; an equal position is a no-op.
	AdvanceReadPointer(ctx context.Context, sessionID, readerID string, upToSeq int64, at time.Time) error
}
