package models

import "time"

// OfferStatus is the resolution state of an offer.
type OfferStatus string

const (
	OfferOutstanding OfferStatus = "outstanding"
	OfferAccepted    OfferStatus = "accepted"
	OfferRejected    OfferStatus = "rejected"
	OfferExpired     OfferStatus = "expired"
)

// Offer is a time-boxed proposal of an emergency request to one specific
// doctor. At most one outstanding offer exists per request and per doctor at
// any instant; the expiry deadline is persisted so a restart never loses it.
type Offer struct {
	ID        string      `bson:"id" json:"id"`
	RequestID string      `bson:"requestId" json:"requestId"`
	DoctorID  string      `bson:"doctorId" json:"doctorId"`
	Status    OfferStatus `bson:"status" json:"status"`
	// Reason records why a non-accepted offer was resolved, e.g. "timeout",
	// "declined" or "cancelled". Kept distinct for analytics.
	Reason     string     `bson:"reason,omitempty" json:"reason,omitempty"`
	CreatedAt  time.Time  `bson:"createdAt" json:"createdAt"`
	ExpiresAt  time.Time  `bson:"expiresAt" json:"expiresAt"`
	ResolvedAt *time.Time `bson:"resolvedAt,omitempty" json:"resolvedAt,omitempty"`
}
