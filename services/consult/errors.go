package consult

import "fmt"

// MediaSetupFailedError reports that a session could not bring up both media
// tracks inside the setup window. The dispatch layer treats it as a signal
// to re-offer, never as a terminal failure.
type MediaSetupFailedError struct {
	RequestID string
	DoctorID  string
	Err       error
}

func (e MediaSetupFailedError) Error() string {
	return fmt.Sprintf("media setup failed for request %s with doctor %s: %v", e.RequestID, e.DoctorID, e.Err)
}

func (e MediaSetupFailedError) Unwrap() error {
	return e.Err
}

// DeliveryUnavailableError reports that the chat transport is down. It is
// returned before a sequence number is allocated, so failed sends never
// leave gaps in the chat ordering.
type DeliveryUnavailableError struct {
	SessionID string
}

func (e DeliveryUnavailableError) Error() string {
	return fmt.Sprintf("chat delivery unavailable for session %s", e.SessionID)
}

// NotParticipantError reports a session operation attempted by someone who
// is neither the patient nor the doctor of that session.
type NotParticipantError struct {
	SessionID string
	UserID    string
}

func (e NotParticipantError) Error() string {
	return fmt.Sprintf("user %s is not a participant of session %s", e.UserID, e.SessionID)
}
