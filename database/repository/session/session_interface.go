package sessionRepo

import (
	"context"
	"errors"
	"time"

	"medilink/models"
)

var (
	// ErrNotFound signals that no session exists with the given id.
	ErrNotFound = errors.New("session not found")
	// ErrEnded signals that the session already reached its terminal state.
	ErrEnded = errors.New("session already ended")
	// ErrChatClosed signals that the session no longer accepts chat writes.
	ErrChatClosed = errors.New("session chat is closed for writes")
)

// Repository defines data access for consultation sessions.
type Repository interface {
	// Create inserts a new active session.
	Create(ctx context.Context, s *models.Session) error
	// GetByID retrieves a session by its unique id.
	GetByID(ctx context.Context, id string) (*models.Session, error)
	// UpdatePresence replaces one participant's media presence.
	UpdatePresence(ctx context.Context, sessionID string, p models.Participant, presence models.MediaPresence) error
	// End atomically moves an active session to ended and closes the chat
	// for new writes. Fails with ErrEnded when the session was already
	// ended, which is what makes the service-level End idempotent.
	End(ctx context.Context, sessionID string, reason models.EndReason, note string, at time.Time) error
	// NextSeq atomically advances and returns the session's chat sequence
	// counter. Fails with ErrChatClosed once the chat no longer accepts
	// writes. This per-document increment is the single-writer counter that
	// keeps sequence numbers strictly increasing and gap-free.
	NextSeq(ctx context.Context, sessionID string) (int64, error)
	// ListActive returns every session still in the active state, for
	// disconnect-deadline recovery after a restart.
	ListActive(ctx context.Context) ([]models.Session, error)
}
