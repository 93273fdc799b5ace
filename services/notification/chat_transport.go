package notification

import (
	"context"
	"fmt"
	"strconv"

	"medilink/models"
	"medilink/utils"

	"firebase.google.com/go/v4/messaging"
	"github.com/go-redis/redis/v8"
)

// FCMChatTransport delivers chat messages as data-only pushes. Health is
// the FCM client plus the token store's Redis being reachable; the channel
// checks it before allocating a sequence number.
type FCMChatTransport struct {
	Tokens TokenStore
	Redis  *redis.Client
}

func (t *FCMChatTransport) Healthy(ctx context.Context) bool {
	if utils.FCMClient == nil {
		return false
	}
	if t.Redis != nil && t.Redis.Ping(ctx).Err() != nil {
		return false
	}
	return true
}

func (t *FCMChatTransport) Deliver(ctx context.Context, msg *models.ChatMessage, recipientID string) error {
	token, err := t.Tokens.Lookup(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("chat delivery token lookup for %s failed: %w", recipientID, err)
	}
	if token == "" {
		return fmt.Errorf("chat recipient %s has no FCM token", recipientID)
	}

	push := &messaging.Message{
		Token: token,
		Data: map[string]string{
			"type":      "chat_message",
			"sessionId": msg.SessionID,
			"messageId": msg.ID,
			"senderId":  msg.SenderID,
			"msgType":   string(msg.Type),
			"payload":   msg.Payload,
			"seq":       strconv.FormatInt(msg.Seq, 10),
		},
		Android: &messaging.AndroidConfig{Priority: "high"},
	}
	if _, err := utils.FCMClient.Send(ctx, push); err != nil {
		return fmt.Errorf("chat delivery to %s failed: %w", recipientID, err)
	}
	return nil
}
