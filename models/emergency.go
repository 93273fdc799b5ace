package models

import "time"

// Priority is the triage priority of an emergency request. It drives offer
// timeouts and candidate ranking.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is one of the known priority levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// RequestState is the dispatch lifecycle state of an emergency request.
type RequestState string

const (
	RequestPending    RequestState = "pending"
	RequestOffering   RequestState = "offering"
	RequestAccepted   RequestState = "accepted"
	RequestInProgress RequestState = "in_progress"
	RequestCompleted  RequestState = "completed"
	RequestCancelled  RequestState = "cancelled"
	RequestExhausted  RequestState = "exhausted"
)

// Terminal reports whether s is a terminal dispatch state.
func (s RequestState) Terminal() bool {
	return s == RequestCompleted || s == RequestCancelled || s == RequestExhausted
}

// StateTransition is one immutable entry in a request's dispatch history.
type StateTransition struct {
	From   RequestState `bson:"from" json:"from"`
	To     RequestState `bson:"to" json:"to"`
	Reason string       `bson:"reason,omitempty" json:"reason,omitempty"`
	Actor  string       `bson:"actor,omitempty" json:"actor,omitempty"` // patient, doctor, system
	At     time.Time    `bson:"at" json:"at"`
}

// EmergencyRequest is a patient's urgent-care request. It is created on
// intake, mutated only through dispatch transitions and retained after a
// terminal state for audit.
type EmergencyRequest struct {
	ID          string    `bson:"id" json:"id"`
	PatientID   string    `bson:"patientId" json:"patientId"`
	Symptoms    []string  `bson:"symptoms" json:"symptoms"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	Priority    Priority  `bson:"priority" json:"priority"`
	Location    *GeoPoint `bson:"location,omitempty" json:"location,omitempty"`

	State   RequestState `bson:"state" json:"state"`
	Outcome string       `bson:"outcome,omitempty" json:"outcome,omitempty"` // terminal reason

	// CurrentOfferID references the single outstanding offer, if any.
	CurrentOfferID string `bson:"currentOfferId,omitempty" json:"currentOfferId,omitempty"`
	SessionID      string `bson:"sessionId,omitempty" json:"sessionId,omitempty"`

	// AttemptedDoctorIDs lists doctors already offered during this dispatch,
	// so escalation never re-offers and is guaranteed to terminate.
	AttemptedDoctorIDs []string `bson:"attemptedDoctorIds,omitempty" json:"attemptedDoctorIds,omitempty"`
	// ExcludedDoctorIDs lists doctors barred from re-offer after a failed
	// media setup on their accepted session.
	ExcludedDoctorIDs []string `bson:"excludedDoctorIds,omitempty" json:"excludedDoctorIds,omitempty"`

	History   []StateTransition `bson:"history" json:"history"`
	CreatedAt time.Time         `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time         `bson:"updatedAt" json:"updatedAt"`
}

// DispatchStatus is the cached public view of a request's progress, served
// to polling clients.
type DispatchStatus struct {
	RequestID string       `json:"requestId"`
	State     RequestState `json:"state"`
	Outcome   string       `json:"outcome,omitempty"`
	DoctorID  string       `json:"doctorId,omitempty"`
	SessionID string       `json:"sessionId,omitempty"`
	UpdatedAt time.Time    `json:"updatedAt"`
}
