package consult

import (
	"context"
	"sync"

	"medilink/models"

	"github.com/google/uuid"
)

// MediaTransport abstracts the audio/video track provider. The manager only
// needs track establishment, teardown and mute control; the signalling
// details live behind this interface.
type MediaTransport interface {
	// Establish brings up a media track for one participant and returns its
	// track id. It must respect ctx's deadline.
	Establish(ctx context.Context, sessionID string, p models.Participant, userID string) (string, error)
	// Teardown releases a track. Tearing down an unknown track is a no-op.
	Teardown(ctx context.Context, sessionID, trackID string)
	// SetMuted toggles the audio state of a track.
	SetMuted(ctx context.Context, sessionID, trackID string, muted bool) error
}

// ChatTransport abstracts real-time chat delivery to a participant's device.
type ChatTransport interface {
	// Healthy reports whether the transport can currently deliver. Checked
	// before a sequence number is allocated.
	Healthy(ctx context.Context) bool
	// Deliver pushes a stored message to the recipient's device.
	Deliver(ctx context.Context, msg *models.ChatMessage, recipientID string) error
}

// RelayTransport is the in-process media transport: it allocates relay
// track ids and keeps the live set in memory. Suited to a single-node relay
// colocated with the API server.
type RelayTransport struct {
	mu     sync.Mutex
	tracks map[string]string // trackID -> sessionID
}

func NewRelayTransport() *RelayTransport {
	return &RelayTransport{tracks: make(map[string]string)}
}

func (t *RelayTransport) Establish(ctx context.Context, sessionID string, p models.Participant, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	trackID := uuid.New().String()
	t.mu.Lock()
	t.tracks[trackID] = sessionID
	t.mu.Unlock()
	return trackID, nil
}

func (t *RelayTransport) Teardown(ctx context.Context, sessionID, trackID string) {
	t.mu.Lock()
	delete(t.tracks, trackID)
	t.mu.Unlock()
}

func (t *RelayTransport) SetMuted(ctx context.Context, sessionID, trackID string, muted bool) error {
	t.mu.Lock()
	_, ok := t.tracks[trackID]
	t.mu.Unlock()
	if !ok {
		return ctx.Err()
	}
	return nil
}
