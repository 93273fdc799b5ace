package offerRepo

import (
	"context"
	"errors"
	"time"

	"medilink/models"
)

var (
	// ErrNotFound signals that no offer exists with the given id.
	ErrNotFound = errors.New("offer not found")
	// ErrResolved signals that the offer is no longer outstanding, so a late
	// accept/reject/expire lost the resolution race.
	ErrResolved = errors.New("offer already resolved")
)

// Repository defines data access for offers. Resolution is a compare-and-set
// on the outstanding status: exactly one of accept, reject and expire wins.
type Repository interface {
	// Create inserts a new outstanding offer.
	Create(ctx context.Context, offer *models.Offer) error
	// GetByID retrieves an offer by its unique id.
	GetByID(ctx context.Context, id string) (*models.Offer, error)
	// Resolve atomically moves an outstanding offer to a final status and
	// returns the resolved document. Fails with ErrResolved when the offer
	// was already decided.
	Resolve(ctx context.Context, id string, to models.OfferStatus, reason string, at time.Time) (*models.Offer, error)
	// ListOutstanding returns all offers still awaiting resolution, used by
	// the watchdog recovery pass to re-arm persisted deadlines.
	ListOutstanding(ctx context.Context) ([]models.Offer, error)
}
