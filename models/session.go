package models

import "time"

// Participant identifies a side of a consultation session.
type Participant string

const (
	ParticipantPatient Participant = "patient"
	ParticipantDoctor  Participant = "doctor"
)

// SessionState is the lifecycle state of a consultation session.
type SessionState string

const (
	SessionActive SessionState = "active"
	SessionEnded  SessionState = "ended"
)

// EndReason records why a session ended.
type EndReason string

const (
	EndCompleted   EndReason = "completed"
	EndPatientLeft EndReason = "patient_left"
	EndDoctorLeft  EndReason = "doctor_left"
	EndError       EndReason = "error"
	EndCancelled   EndReason = "cancelled"
)

// MediaPresence is the media-track state of one participant.
type MediaPresence struct {
	TrackID        string     `bson:"trackId,omitempty" json:"trackId,omitempty"`
	Connected      bool       `bson:"connected" json:"connected"`
	Muted          bool       `bson:"muted" json:"muted"`
	DisconnectedAt *time.Time `bson:"disconnectedAt,omitempty" json:"disconnectedAt,omitempty"`
}

// Session is the live audio/video plus chat context created when a doctor
// accepts an emergency request.
type Session struct {
	ID        string `bson:"id" json:"id"`
	RequestID string `bson:"requestId" json:"requestId"`
	PatientID string `bson:"patientId" json:"patientId"`
	DoctorID  string `bson:"doctorId" json:"doctorId"`

	State     SessionState `bson:"state" json:"state"`
	EndReason EndReason    `bson:"endReason,omitempty" json:"endReason,omitempty"`
	// CompletionNote is the doctor's closing note on an explicit close.
	CompletionNote string `bson:"completionNote,omitempty" json:"completionNote,omitempty"`

	Patient MediaPresence `bson:"patient" json:"patient"`
	Doctor  MediaPresence `bson:"doctor" json:"doctor"`

	// NextSeq is the per-session chat sequence counter. It is advanced only
	// through the repository's atomic increment, which is what keeps chat
	// ordering gap-free under concurrent senders.
	NextSeq    int64 `bson:"nextSeq" json:"-"`
	ChatClosed bool  `bson:"chatClosed" json:"chatClosed"`

	CreatedAt time.Time  `bson:"createdAt" json:"createdAt"`
	EndedAt   *time.Time `bson:"endedAt,omitempty" json:"endedAt,omitempty"`
}

// Presence returns the media presence of the given participant.
func (s *Session) Presence(p Participant) MediaPresence {
	if p == ParticipantDoctor {
		return s.Doctor
	}
	return s.Patient
}

// ParticipantID maps a participant role to its user id.
func (s *Session) ParticipantID(p Participant) string {
	if p == ParticipantDoctor {
		return s.DoctorID
	}
	return s.PatientID
}
