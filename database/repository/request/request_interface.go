package requestRepo

import (
	"context"
	"errors"

	"medilink/models"

	"go.mongodb.org/mongo-driver/bson"
)

var (
	// ErrNotFound signals that no request exists with the given id.
	ErrNotFound = errors.New("emergency request not found")
	// ErrStaleState signals that the request's persisted state no longer
	// matches the caller's expected state. The caller must re-read and retry.
	ErrStaleState = errors.New("emergency request state changed concurrently")
)

// Repository defines data access for emergency requests. Requests are never
// deleted; terminal-state documents are retained for audit.
type Repository interface {
	// Create inserts a new request document.
	Create(ctx context.Context, req *models.EmergencyRequest) error
	// GetByID retrieves a request by its unique id.
	GetByID(ctx context.Context, id string) (*models.EmergencyRequest, error)
	// Transition atomically moves a request from the expected state to
	// entry.To, appends the history entry and applies any extra field sets.
	// It fails with ErrStaleState when the persisted state differs from the
	// expected one, which is what serializes the dispatch loop per request.
	Transition(ctx context.Context, id string, from models.RequestState, entry models.StateTransition, extra bson.M) error
}
