package models

import "time"

// MessageType is the payload kind of a chat message.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageLocation MessageType = "location"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageLocation:
		return true
	}
	return false
}

// ChatMessage is one message in a session's chat channel. Ordering within a
// session is defined by Seq, not wall-clock time.
type ChatMessage struct {
	ID        string      `bson:"id" json:"id"`
	SessionID string      `bson:"sessionId" json:"sessionId"`
	SenderID  string      `bson:"senderId" json:"senderId"`
	Type      MessageType `bson:"type" json:"type"`
	// Payload is the message text, an attachment URL for images, or an
	// encoded coordinate pair for location shares.
	Payload   string    `bson:"payload" json:"payload"`
	Seq       int64     `bson:"seq" json:"seq"`
	Delivered bool      `bson:"delivered" json:"delivered"`
	Read      bool      `bson:"read" json:"read"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// ReadPointer is a reader's monotonic read position within a session.
type ReadPointer struct {
	SessionID string    `bson:"sessionId" json:"sessionId"`
	ReaderID  string    `bson:"readerId" json:"readerId"`
	UpToSeq   int64     `bson:"upToSeq" json:"upToSeq"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
