package dispatch

import "fmt"

// StaleTransitionError signals an optimistic-concurrency violation: the
// request moved to a different state since the caller last read it. The
// caller must re-read and retry.
type StaleTransitionError struct {
	RequestID string
	Expected  string
}

func (e StaleTransitionError) Error() string {
	return fmt.Sprintf("stale transition for request %s: expected state %q no longer current", e.RequestID, e.Expected)
}

// DoctorUnavailableError signals a lost claim race; the caller should move
// on to the next ranked candidate.
type DoctorUnavailableError struct {
	DoctorID  string
	RequestID string
}

func (e DoctorUnavailableError) Error() string {
	return fmt.Sprintf("doctor %s is not claimable for request %s", e.DoctorID, e.RequestID)
}

// AlreadyResolvedError signals a late accept, reject or expiry on an offer
// that was already decided. It is always safe to treat as a no-op.
type AlreadyResolvedError struct {
	OfferID string
}

func (e AlreadyResolvedError) Error() string {
	return fmt.Sprintf("offer %s is already resolved", e.OfferID)
}

// NoCandidatesError signals that intake found no eligible doctor at all.
type NoCandidatesError struct {
	RequestID string
}

func (e NoCandidatesError) Error() string {
	return fmt.Sprintf("no candidate doctors for request %s", e.RequestID)
}

// ExhaustedError signals that every ranked candidate was offered and none
// accepted. Terminal for the dispatch; surfaced to patient and admin.
type ExhaustedError struct {
	RequestID string
	Attempts  int
}

func (e ExhaustedError) Error() string {
	return fmt.Sprintf("dispatch exhausted for request %s after %d offers", e.RequestID, e.Attempts)
}
