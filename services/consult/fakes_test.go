package consult

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	availabilityRepo "medilink/database/repository/availability"
	chatRepo "medilink/database/repository/chat"
	sessionRepo "medilink/database/repository/session"
	"medilink/models"
)

// In-memory doubles mirroring the Mongo repositories' CAS behavior.

type memSessionRepo struct {
	mu         sync.Mutex
	sessions   map[string]*models.Session
	failCreate error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*models.Session)}
}

func (r *memSessionRepo) Create(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate != nil {
		return r.failCreate
	}
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) GetByID(ctx context.Context, id string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, sessionRepo.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memSessionRepo) UpdatePresence(ctx context.Context, sessionID string, p models.Participant, presence models.MediaPresence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return sessionRepo.ErrNotFound
	}
	if p == models.ParticipantDoctor {
		s.Doctor = presence
	} else {
		s.Patient = presence
	}
	return nil
}

func (r *memSessionRepo) End(ctx context.Context, sessionID string, reason models.EndReason, note string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return sessionRepo.ErrNotFound
	}
	if s.State == models.SessionEnded {
		return sessionRepo.ErrEnded
	}
	s.State = models.SessionEnded
	s.EndReason = reason
	s.CompletionNote = note
	s.ChatClosed = true
	s.EndedAt = &at
	return nil
}

func (r *memSessionRepo) NextSeq(ctx context.Context, sessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return 0, sessionRepo.ErrNotFound
	}
	if s.ChatClosed {
		return 0, sessionRepo.ErrChatClosed
	}
	s.NextSeq++
	return s.NextSeq, nil
}

func (r *memSessionRepo) ListActive(ctx context.Context) ([]models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Session
	for _, s := range r.sessions {
		if s.State == models.SessionActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *memSessionRepo) seqOf(sessionID string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		return s.NextSeq
	}
	return 0
}

func (r *memSessionRepo) setSeq(sessionID string, v int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		s.NextSeq = v
	}
}

type memChatRepo struct {
	mu         sync.Mutex
	messages   []models.ChatMessage
	pointers   map[string]*models.ReadPointer // sessionID + ":" + readerID
	failInsert error
}

func newMemChatRepo() *memChatRepo {
	return &memChatRepo{pointers: make(map[string]*models.ReadPointer)}
}

func (r *memChatRepo) Insert(ctx context.Context, msg *models.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failInsert != nil {
		err := r.failInsert
		r.failInsert = nil
		return err
	}
	for _, m := range r.messages {
		if m.SessionID == msg.SessionID && m.Seq == msg.Seq {
			return fmt.Errorf("duplicate seq %d in session %s", msg.Seq, msg.SessionID)
		}
	}
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *memChatRepo) ListBySession(ctx context.Context, sessionID string, afterSeq int64, limit int64) ([]models.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ChatMessage
	for _, m := range r.messages {
		if m.SessionID == sessionID && m.Seq > afterSeq {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memChatRepo) MarkDelivered(ctx context.Context, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.messages {
		if r.messages[i].ID == messageID {
			r.messages[i].Delivered = true
			return nil
		}
	}
	return errors.New("message not found")
}

func (r *memChatRepo) GetReadPointer(ctx context.Context, sessionID, readerID string) (*models.ReadPointer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pointers[sessionID+":"+readerID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *memChatRepo) AdvanceReadPointer(ctx context.Context, sessionID, readerID string, upToSeq int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := sessionID + ":" + readerID
	if p, ok := r.pointers[key]; ok {
		if upToSeq < p.UpToSeq {
			return chatRepo.ErrPointerRegressed
		}
		if upToSeq == p.UpToSeq {
			return nil
		}
	}
	r.pointers[key] = &models.ReadPointer{SessionID: sessionID, ReaderID: readerID, UpToSeq: upToSeq, UpdatedAt: at}
	for i := range r.messages {
		if r.messages[i].SessionID == sessionID && r.messages[i].SenderID != readerID && r.messages[i].Seq <= upToSeq {
			r.messages[i].Read = true
		}
	}
	return nil
}

// memAvailabilityRepo covers the slice of the availability repository the
// registry touches during session teardown.
type memAvailabilityRepo struct {
	mu      sync.Mutex
	doctors map[string]*models.DoctorAvailability
}

func newMemAvailabilityRepo() *memAvailabilityRepo {
	return &memAvailabilityRepo{doctors: make(map[string]*models.DoctorAvailability)}
}

func (r *memAvailabilityRepo) Upsert(ctx context.Context, av *models.DoctorAvailability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *av
	r.doctors[av.DoctorID] = &cp
	return nil
}

func (r *memAvailabilityRepo) GetByID(ctx context.Context, doctorID string) (*models.DoctorAvailability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[doctorID]
	if !ok {
		return nil, availabilityRepo.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memAvailabilityRepo) Claim(ctx context.Context, doctorID, requestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[doctorID]
	if !ok || !d.Online || d.Claimed || d.InSession {
		return availabilityRepo.ErrNotClaimable
	}
	d.Claimed = true
	d.ClaimedBy = requestID
	return nil
}

func (r *memAvailabilityRepo) Release(ctx context.Context, doctorID, requestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.doctors[doctorID]; ok && d.Claimed && d.ClaimedBy == requestID {
		d.Claimed = false
		d.ClaimedBy = ""
	}
	return nil
}

func (r *memAvailabilityRepo) MarkInSession(ctx context.Context, doctorID string, inSession bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.doctors[doctorID]; ok {
		d.InSession = inSession
	}
	return nil
}

func (r *memAvailabilityRepo) SetOnline(ctx context.Context, doctorID string, online bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[doctorID]
	if !ok {
		return availabilityRepo.ErrNotFound
	}
	d.Online = online
	return nil
}

func (r *memAvailabilityRepo) Heartbeat(ctx context.Context, doctorID string, at time.Time) error {
	return nil
}

func (r *memAvailabilityRepo) Snapshot(ctx context.Context, criteria availabilityRepo.SnapshotCriteria) ([]models.DoctorAvailability, error) {
	return nil, nil
}

// flakyMedia fails establishment on demand and records teardowns.
type flakyMedia struct {
	mu            sync.Mutex
	failFor       map[models.Participant]bool
	established   int
	tornDown      []string
	establishSlow time.Duration
}

func newFlakyMedia() *flakyMedia {
	return &flakyMedia{failFor: make(map[models.Participant]bool)}
}

func (m *flakyMedia) Establish(ctx context.Context, sessionID string, p models.Participant, userID string) (string, error) {
	if m.establishSlow > 0 {
		select {
		case <-time.After(m.establishSlow):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[p] {
		return "", errors.New("signalling failed")
	}
	m.established++
	return fmt.Sprintf("track-%s-%d", p, m.established), nil
}

func (m *flakyMedia) Teardown(ctx context.Context, sessionID, trackID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tornDown = append(m.tornDown, trackID)
}

func (m *flakyMedia) SetMuted(ctx context.Context, sessionID, trackID string, muted bool) error {
	return nil
}

// stubChatTransport is a controllable delivery transport.
type stubChatTransport struct {
	mu        sync.Mutex
	healthy   bool
	failNext  error
	delivered []models.ChatMessage
}

func (t *stubChatTransport) Healthy(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.healthy
}

func (t *stubChatTransport) Deliver(ctx context.Context, msg *models.ChatMessage, recipientID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failNext != nil {
		err := t.failNext
		t.failNext = nil
		return err
	}
	t.delivered = append(t.delivered, *msg)
	return nil
}

// recordingReporter captures what the manager reports back to dispatch.
type recordingReporter struct {
	mu      sync.Mutex
	reports []models.EndReason
}

func (r *recordingReporter) SessionEnded(ctx context.Context, sess *models.Session, reason models.EndReason) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, reason)
	return nil
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}
