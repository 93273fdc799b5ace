package consult

import (
	"context"
	"errors"
	"fmt"
	"time"

	chatRepo "medilink/database/repository/chat"
	sessionRepo "medilink/database/repository/session"
	"medilink/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TxnRunner executes fn atomically; every repository call made with the ctx
// it passes commits or rolls back as one unit.
type TxnRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// Channel is the per-session chat service. All ordering guarantees flow
// from the session's atomic sequence counter: a message only exists once it
// holds a seq, and seqs are allocated strictly in send order.
type Channel struct {
	Sessions  sessionRepo.Repository
	Messages  chatRepo.Repository
	Transport ChatTransport
	// Txn makes the counter advance and the message insert one atomic unit,
	// so an insert failure rolls the allocated seq back instead of leaving a
	// gap. Nil runs the two writes without that guarantee.
	Txn    TxnRunner
	Logger *zap.Logger
}

func (c *Channel) runTxn(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.Txn == nil {
		return fn(ctx)
	}
	return c.Txn(ctx, fn)
}

// Send persists and delivers one message. The transport health check runs
// before the sequence number is allocated, so a rejected send leaves no gap.
// Delivery failure after persistence leaves the message undelivered; History
// backfills it on the recipient's next sync.
func (c *Channel) Send(ctx context.Context, sessionID, senderID string, msgType models.MessageType, payload string) (*models.ChatMessage, error) {
	sess, err := c.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.PatientID != senderID && sess.DoctorID != senderID {
		return nil, NotParticipantError{SessionID: sessionID, UserID: senderID}
	}
	if sess.State == models.SessionEnded || sess.ChatClosed {
		return nil, sessionRepo.ErrChatClosed
	}
	if !msgType.Valid() {
		return nil, fmt.Errorf("unknown message type %q", msgType)
	}
	if c.Transport != nil && !c.Transport.Healthy(ctx) {
		return nil, DeliveryUnavailableError{SessionID: sessionID}
	}

	var msg *models.ChatMessage
	err = c.runTxn(ctx, func(ctx context.Context) error {
		seq, err := c.Sessions.NextSeq(ctx, sessionID)
		if err != nil {
			return err
		}
		msg = &models.ChatMessage{
			ID:        uuid.New().String(),
			SessionID: sessionID,
			SenderID:  senderID,
			Type:      msgType,
			Payload:   payload,
			Seq:       seq,
			CreatedAt: time.Now(),
		}
		return c.Messages.Insert(ctx, msg)
	})
	if err != nil {
		return nil, err
	}

	recipient := sess.PatientID
	if senderID == sess.PatientID {
		recipient = sess.DoctorID
	}
	if c.Transport != nil {
		if err := c.Transport.Deliver(ctx, msg, recipient); err != nil {
			c.Logger.Warn("chat delivery failed, message kept for backfill",
				zap.String("sessionId", sessionID),
				zap.Int64("seq", msg.Seq),
				zap.Error(err))
		} else {
			if err := c.Messages.MarkDelivered(ctx, msg.ID); err != nil {
				c.Logger.Warn("failed to flag message delivered",
					zap.String("messageId", msg.ID), zap.Error(err))
			}
			msg.Delivered = true
		}
	}
	return msg, nil
}

// MarkRead advances the reader's pointer. The pointer only moves forward;
// a stale client reporting an older position gets ErrPointerRegressed and
// the stored pointer is untouched.
func (c *Channel) MarkRead(ctx context.Context, sessionID, readerID string, upToSeq int64) error {
	sess, err := c.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.PatientID != readerID && sess.DoctorID != readerID {
		return NotParticipantError{SessionID: sessionID, UserID: readerID}
	}
	err = c.Messages.AdvanceReadPointer(ctx, sessionID, readerID, upToSeq, time.Now())
	if errors.Is(err, chatRepo.ErrPointerRegressed) {
		return err
	}
	return err
}

// History returns messages after a sequence position in seq order. Reading
// stays available after the session ends.
func (c *Channel) History(ctx context.Context, sessionID, requesterID string, afterSeq, limit int64) ([]models.ChatMessage, error) {
	sess, err := c.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.PatientID != requesterID && sess.DoctorID != requesterID {
		return nil, NotParticipantError{SessionID: sessionID, UserID: requesterID}
	}
	return c.Messages.ListBySession(ctx, sessionID, afterSeq, limit)
}

// ReadPointer returns the counterpart's read position, for read receipts.
func (c *Channel) ReadPointer(ctx context.Context, sessionID, readerID string) (*models.ReadPointer, error) {
	return c.Messages.GetReadPointer(ctx, sessionID, readerID)
}
