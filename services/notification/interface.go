package notification

import (
	"context"
	"fmt"

	"medilink/models"
	"medilink/utils"

	"firebase.google.com/go/v4/messaging"
)

// NotificationService defines methods for sending FCM pushes.
type NotificationService interface {
	SendPushNotification(ctx context.Context, userID, title, body string, data map[string]string) error
	NotifyDispatchAlert(ctx context.Context, alert models.DispatchAlert) error
}

// DefaultNotificationService is the production implementation.
type DefaultNotificationService struct {
	tokens TokenStore
}

func NewDefaultNotificationService(tokens TokenStore) (*DefaultNotificationService, error) {
	if tokens == nil {
		return nil, fmt.Errorf("notification service initialization error: token store is nil")
	}
	return &DefaultNotificationService{tokens: tokens}, nil
}

// SendPushNotification looks up the recipient's FCM token and sends a push.
// Emergency alerts always go out at high priority so locked devices wake.
func (s *DefaultNotificationService) SendPushNotification(
	ctx context.Context,
	userID, title, body string,
	data map[string]string,
) error {
	token, err := s.tokens.Lookup(ctx, userID)
	if err != nil {
		return fmt.Errorf("SendPushNotification: token lookup for %s failed: %w", userID, err)
	}
	if token == "" {
		return fmt.Errorf("SendPushNotification: user %s has no FCM token", userID)
	}

	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: "emergency_dispatch",
				Sound:     "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority":  "10",
				"apns-push-type": "alert",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
	}

	if _, err := utils.FCMClient.Send(ctx, msg); err != nil {
		return fmt.Errorf("SendPushNotification: failed to send FCM message: %w", err)
	}
	return nil
}

// NotifyDispatchAlert fans a dispatch transition out to the patient and,
// when one is attached, the doctor. A missing token on either side never
// fails the other.
func (s *DefaultNotificationService) NotifyDispatchAlert(ctx context.Context, alert models.DispatchAlert) error {
	title, body := alertText(alert)
	data := map[string]string{
		"type":      "dispatch_alert",
		"requestId": alert.RequestID,
		"state":     string(alert.State),
	}
	if alert.SessionID != "" {
		data["sessionId"] = alert.SessionID
	}

	var firstErr error
	if err := s.SendPushNotification(ctx, alert.PatientID, title, body, data); err != nil {
		firstErr = err
	}
	if alert.DoctorID != "" {
		if err := s.SendPushNotification(ctx, alert.DoctorID, title, body, data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func alertText(alert models.DispatchAlert) (string, string) {
	switch alert.State {
	case models.RequestOffering:
		return "Finding you a doctor", "We are contacting available doctors for your emergency request."
	case models.RequestAccepted:
		return "Doctor found", "A doctor accepted your request. Your consultation is being set up."
	case models.RequestInProgress:
		return "Consultation started", "Your doctor is on the line now."
	case models.RequestCompleted:
		return "Consultation ended", "Your consultation has ended."
	case models.RequestCancelled:
		return "Request cancelled", "Your emergency request was cancelled."
	case models.RequestExhausted:
		return "No doctor available", "We could not reach an available doctor. Please call emergency services if this is life-threatening."
	default:
		return "Dispatch update", fmt.Sprintf("Your request is now %s.", alert.State)
	}
}
