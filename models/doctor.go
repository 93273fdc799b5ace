package models

import "time"

// DoctorAvailability tracks a doctor's eligibility to receive emergency
// offers. The claim fields are the single shared mutable resource contended
// across concurrent dispatches; they are only ever flipped through the
// repository's atomic claim/release operations.
type DoctorAvailability struct {
	DoctorID        string   `bson:"doctorId" json:"doctorId"`
	Specializations []string `bson:"specializations" json:"specializations"`

	Online    bool `bson:"online" json:"online"`
	InSession bool `bson:"inSession" json:"inSession"`

	// Claimed marks the doctor as holding an outstanding offer or session.
	// ClaimedBy is the request id that won the claim.
	Claimed   bool   `bson:"claimed" json:"claimed"`
	ClaimedBy string `bson:"claimedBy,omitempty" json:"claimedBy,omitempty"`

	Rating float64 `bson:"rating" json:"rating"`
	// AvgResponseSeconds is the doctor's historical mean time to answer an
	// offer, used by the ranker's response-time estimate.
	AvgResponseSeconds float64   `bson:"avgResponseSeconds" json:"avgResponseSeconds"`
	Location           *GeoPoint `bson:"location,omitempty" json:"location,omitempty"`

	LastHeartbeat time.Time `bson:"lastHeartbeat" json:"lastHeartbeat"`
	FCMToken      string    `bson:"fcmToken,omitempty" json:"-"`
}

// MatchesAny reports whether the doctor covers at least one of the wanted
// specializations, and how many.
func (d DoctorAvailability) MatchesAny(wanted []string) int {
	if len(wanted) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(d.Specializations))
	for _, s := range d.Specializations {
		set[s] = struct{}{}
	}
	matches := 0
	for _, w := range wanted {
		if _, ok := set[w]; ok {
			matches++
		}
	}
	return matches
}
