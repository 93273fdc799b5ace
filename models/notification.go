package models

import "time"

// DispatchAlert is the event payload emitted on every dispatch transition
// and delivered best-effort to patient, doctor and admin channels.
type DispatchAlert struct {
	RequestID string       `json:"requestId"`
	State     RequestState `json:"state"`
	Reason    string       `json:"reason,omitempty"`
	PatientID string       `json:"patientId"`
	DoctorID  string       `json:"doctorId,omitempty"`
	SessionID string       `json:"sessionId,omitempty"`
	At        time.Time    `json:"at"`
}
