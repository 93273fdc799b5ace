package availabilityRepo

import (
	"context"
	"errors"
	"time"

	"medilink/models"
)

var (
	// ErrNotFound signals that no availability record exists for the doctor.
	ErrNotFound = errors.New("doctor availability not found")
	// ErrNotClaimable signals a lost claim race: the doctor is offline,
	// already claimed or already in a session.
	ErrNotClaimable = errors.New("doctor is not claimable")
)

// SnapshotCriteria narrows an availability snapshot.
type SnapshotCriteria struct {
	// HeartbeatAfter drops doctors whose last heartbeat is older than this.
	// Zero disables the check (the presence layer then decides liveness).
	HeartbeatAfter time.Time
}

// Repository defines data access for doctor availability. Claim and Release
// are the atomic compare-and-set primitives the whole dispatch engine leans
// on; every other mutation is plain bookkeeping.
type Repository interface {
	// Upsert creates or replaces a doctor's availability record.
	Upsert(ctx context.Context, av *models.DoctorAvailability) error
	// GetByID retrieves one doctor's availability.
	GetByID(ctx context.Context, doctorID string) (*models.DoctorAvailability, error)
	// Claim atomically marks the doctor claimed by the given request, but
	// only if the doctor is online, unclaimed and not in a session.
	// Fails fast with ErrNotClaimable when the condition does not hold.
	Claim(ctx context.Context, doctorID, requestID string) error
	// Release clears the claim, but only if it is held by the given request.
	// Releasing an unheld claim is a no-op.
	Release(ctx context.Context, doctorID, requestID string) error
	// MarkInSession flips the in-session flag.
	MarkInSession(ctx context.Context, doctorID string, inSession bool) error
	// SetOnline flips the online flag.
	SetOnline(ctx context.Context, doctorID string, online bool) error
	// Heartbeat records the doctor's last liveness signal.
	Heartbeat(ctx context.Context, doctorID string, at time.Time) error
	// Snapshot lists doctors currently eligible for an offer: online,
	// unclaimed and not in a session.
	Snapshot(ctx context.Context, criteria SnapshotCriteria) ([]models.DoctorAvailability, error)
}
