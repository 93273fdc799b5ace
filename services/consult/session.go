package consult

import (
	"context"
	"errors"
	"sync"
	"time"

	sessionRepo "medilink/database/repository/session"
	"medilink/models"
	"medilink/services/dispatch"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DispatchReporter is the dispatch engine's ear on session outcomes.
type DispatchReporter interface {
	SessionEnded(ctx context.Context, sess *models.Session, reason models.EndReason) error
}

// Manager owns the consultation session lifecycle: media bring-up inside
// the setup window, disconnect grace handling, and the single terminal end.
// Ending is idempotent; the repository's state CAS guarantees exactly one
// caller records the end reason.
type Manager struct {
	Sessions sessionRepo.Repository
	Registry *dispatch.Registry
	Media    MediaTransport
	Reporter DispatchReporter

	SetupWindow     time.Duration
	DisconnectGrace time.Duration
	Logger          *zap.Logger

	mu          sync.Mutex
	graceTimers map[string]*time.Timer // sessionID + ":" + participant
}

func NewManager(sessions sessionRepo.Repository, registry *dispatch.Registry, media MediaTransport, reporter DispatchReporter, setupWindow, disconnectGrace time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		Sessions:        sessions,
		Registry:        registry,
		Media:           media,
		Reporter:        reporter,
		SetupWindow:     setupWindow,
		DisconnectGrace: disconnectGrace,
		Logger:          logger,
		graceTimers:     make(map[string]*time.Timer),
	}
}

// Start creates the session and establishes both media tracks within the
// setup window. On any failure the session is closed, the doctor's claim is
// handed back and MediaSetupFailedError is returned so dispatch can
// re-offer.
func (m *Manager) Start(ctx context.Context, req *models.EmergencyRequest, doctorID string) (*models.Session, error) {
	now := time.Now()
	sess := &models.Session{
		ID:        uuid.New().String(),
		RequestID: req.ID,
		PatientID: req.PatientID,
		DoctorID:  doctorID,
		State:     models.SessionActive,
		CreatedAt: now,
	}
	if err := m.Sessions.Create(ctx, sess); err != nil {
		// No session record exists yet, so there is nothing to end, but the
		// doctor's claim still has to go back before dispatch re-offers.
		m.releaseDoctor(ctx, sess)
		return nil, MediaSetupFailedError{RequestID: req.ID, DoctorID: doctorID, Err: err}
	}

	setupCtx, cancel := context.WithTimeout(ctx, m.SetupWindow)
	defer cancel()

	patientTrack, err := m.Media.Establish(setupCtx, sess.ID, models.ParticipantPatient, req.PatientID)
	if err != nil {
		return nil, m.abortSetup(ctx, sess, "", "", err)
	}
	doctorTrack, err := m.Media.Establish(setupCtx, sess.ID, models.ParticipantDoctor, doctorID)
	if err != nil {
		return nil, m.abortSetup(ctx, sess, patientTrack, "", err)
	}

	sess.Patient = models.MediaPresence{TrackID: patientTrack, Connected: true}
	sess.Doctor = models.MediaPresence{TrackID: doctorTrack, Connected: true}
	if err := m.Sessions.UpdatePresence(ctx, sess.ID, models.ParticipantPatient, sess.Patient); err != nil {
		return nil, m.abortSetup(ctx, sess, patientTrack, doctorTrack, err)
	}
	if err := m.Sessions.UpdatePresence(ctx, sess.ID, models.ParticipantDoctor, sess.Doctor); err != nil {
		return nil, m.abortSetup(ctx, sess, patientTrack, doctorTrack, err)
	}

	m.Logger.Info("session started",
		zap.String("sessionId", sess.ID),
		zap.String("requestId", req.ID),
		zap.String("doctorId", doctorID))
	return sess, nil
}

// abortSetup tears down whatever came up, closes the session record and
// releases the doctor back to the pool.
func (m *Manager) abortSetup(ctx context.Context, sess *models.Session, patientTrack, doctorTrack string, cause error) error {
	if patientTrack != "" {
		m.Media.Teardown(ctx, sess.ID, patientTrack)
	}
	if doctorTrack != "" {
		m.Media.Teardown(ctx, sess.ID, doctorTrack)
	}
	if err := m.Sessions.End(ctx, sess.ID, models.EndError, "media setup failed", time.Now()); err != nil && !errors.Is(err, sessionRepo.ErrEnded) {
		m.Logger.Error("failed to close session after setup failure",
			zap.String("sessionId", sess.ID), zap.Error(err))
	}
	m.releaseDoctor(ctx, sess)
	return MediaSetupFailedError{RequestID: sess.RequestID, DoctorID: sess.DoctorID, Err: cause}
}

// ReportDisconnect records a dropped media track and arms the grace timer.
// If the participant does not reconnect inside the grace window the session
// ends with the corresponding left reason.
func (m *Manager) ReportDisconnect(ctx context.Context, sessionID string, p models.Participant) error {
	sess, err := m.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.State == models.SessionEnded {
		return nil
	}

	now := time.Now()
	presence := sess.Presence(p)
	presence.Connected = false
	presence.DisconnectedAt = &now
	if err := m.Sessions.UpdatePresence(ctx, sessionID, p, presence); err != nil {
		return err
	}
	m.Logger.Info("participant disconnected",
		zap.String("sessionId", sessionID),
		zap.String("participant", string(p)),
		zap.Duration("grace", m.DisconnectGrace))

	m.armGrace(sessionID, p, now)
	return nil
}

// Reconnect re-establishes a participant's media track and cancels the
// pending grace timer. Reconnecting to an ended session fails with ErrEnded.
func (m *Manager) Reconnect(ctx context.Context, sessionID string, p models.Participant) error {
	sess, err := m.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.State == models.SessionEnded {
		return sessionRepo.ErrEnded
	}

	trackID, err := m.Media.Establish(ctx, sessionID, p, sess.ParticipantID(p))
	if err != nil {
		return err
	}
	presence := sess.Presence(p)
	if presence.TrackID != "" {
		m.Media.Teardown(ctx, sessionID, presence.TrackID)
	}
	presence.TrackID = trackID
	presence.Connected = true
	presence.DisconnectedAt = nil
	if err := m.Sessions.UpdatePresence(ctx, sessionID, p, presence); err != nil {
		m.Media.Teardown(ctx, sessionID, trackID)
		return err
	}

	m.cancelGrace(sessionID, p)
	m.Logger.Info("participant reconnected",
		zap.String("sessionId", sessionID),
		zap.String("participant", string(p)))
	return nil
}

// SetMuted toggles a participant's audio. Mute state survives reconnects
// because it lives on the presence record, not the track.
func (m *Manager) SetMuted(ctx context.Context, sessionID string, p models.Participant, muted bool) error {
	sess, err := m.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.State == models.SessionEnded {
		return sessionRepo.ErrEnded
	}

	presence := sess.Presence(p)
	presence.Muted = muted
	if err := m.Sessions.UpdatePresence(ctx, sessionID, p, presence); err != nil {
		return err
	}
	if presence.TrackID != "" {
		if err := m.Media.SetMuted(ctx, sessionID, presence.TrackID, muted); err != nil {
			m.Logger.Warn("failed to apply mute on media track",
				zap.String("sessionId", sessionID), zap.Error(err))
		}
	}
	return nil
}

// End closes the session. The first caller's reason wins; every later call
// is a no-op regardless of its reason, which is what makes a doctor close
// racing a disconnect timeout safe.
func (m *Manager) End(ctx context.Context, sessionID string, reason models.EndReason, note string) error {
	err := m.Sessions.End(ctx, sessionID, reason, note, time.Now())
	if errors.Is(err, sessionRepo.ErrEnded) {
		return nil
	}
	if err != nil {
		return err
	}

	sess, err := m.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}

	m.cancelGrace(sessionID, models.ParticipantPatient)
	m.cancelGrace(sessionID, models.ParticipantDoctor)
	if sess.Patient.TrackID != "" {
		m.Media.Teardown(ctx, sessionID, sess.Patient.TrackID)
	}
	if sess.Doctor.TrackID != "" {
		m.Media.Teardown(ctx, sessionID, sess.Doctor.TrackID)
	}
	m.releaseDoctor(ctx, sess)

	m.Logger.Info("session ended",
		zap.String("sessionId", sessionID),
		zap.String("reason", string(reason)))

	if m.Reporter != nil {
		if err := m.Reporter.SessionEnded(ctx, sess, reason); err != nil {
			m.Logger.Error("failed to report session end to dispatch",
				zap.String("sessionId", sessionID), zap.Error(err))
		}
	}
	return nil
}

// GetByID returns a session visible to one of its participants.
func (m *Manager) GetByID(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	sess, err := m.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.PatientID != userID && sess.DoctorID != userID {
		return nil, NotParticipantError{SessionID: sessionID, UserID: userID}
	}
	return sess, nil
}

func (m *Manager) releaseDoctor(ctx context.Context, sess *models.Session) {
	if err := m.Registry.MarkInSession(ctx, sess.DoctorID, false); err != nil {
		m.Logger.Error("failed to clear in-session flag",
			zap.String("doctorId", sess.DoctorID), zap.Error(err))
	}
	if err := m.Registry.Release(ctx, sess.DoctorID, sess.RequestID); err != nil {
		m.Logger.Error("failed to release doctor claim",
			zap.String("doctorId", sess.DoctorID), zap.Error(err))
	}
}

// armGrace schedules the grace expiry from the persisted disconnect time,
// not from now, so a timer re-armed by Recover fires at the original
// deadline. An already-overdue deadline fires immediately.
func (m *Manager) armGrace(sessionID string, p models.Participant, disconnectedAt time.Time) {
	key := sessionID + ":" + string(p)
	d := time.Until(disconnectedAt.Add(m.DisconnectGrace))
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	if t, ok := m.graceTimers[key]; ok {
		t.Stop()
	}
	m.graceTimers[key] = time.AfterFunc(d, func() {
		m.graceExpired(sessionID, p, disconnectedAt)
	})
	m.mu.Unlock()
}

func (m *Manager) cancelGrace(sessionID string, p models.Participant) {
	key := sessionID + ":" + string(p)
	m.mu.Lock()
	if t, ok := m.graceTimers[key]; ok {
		t.Stop()
		delete(m.graceTimers, key)
	}
	m.mu.Unlock()
}

// graceExpired re-checks the persisted presence before ending: a reconnect
// that raced the timer leaves DisconnectedAt cleared, so the end is skipped.
func (m *Manager) graceExpired(sessionID string, p models.Participant, disconnectedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	m.cancelGrace(sessionID, p)

	sess, err := m.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		m.Logger.Error("grace check failed to load session",
			zap.String("sessionId", sessionID), zap.Error(err))
		return
	}
	if sess.State == models.SessionEnded {
		return
	}
	presence := sess.Presence(p)
	if presence.Connected || presence.DisconnectedAt == nil || presence.DisconnectedAt.After(disconnectedAt) {
		return
	}

	reason := models.EndPatientLeft
	if p == models.ParticipantDoctor {
		reason = models.EndDoctorLeft
	}
	if err := m.End(ctx, sessionID, reason, ""); err != nil {
		m.Logger.Error("failed to end session after grace expiry",
			zap.String("sessionId", sessionID), zap.Error(err))
	}
}

// Recover re-arms disconnect grace deadlines lost with the process. Every
// active session with a disconnected participant gets its timer rebuilt from
// the persisted DisconnectedAt; overdue ones end right away through the
// normal grace path. Run it at startup and from the periodic sweep.
func (m *Manager) Recover(ctx context.Context) error {
	sessions, err := m.Sessions.ListActive(ctx)
	if err != nil {
		return err
	}
	rearmed := 0
	for i := range sessions {
		sess := &sessions[i]
		for _, p := range []models.Participant{models.ParticipantPatient, models.ParticipantDoctor} {
			presence := sess.Presence(p)
			if presence.Connected || presence.DisconnectedAt == nil {
				continue
			}
			m.armGrace(sess.ID, p, *presence.DisconnectedAt)
			rearmed++
		}
	}
	if rearmed > 0 {
		m.Logger.Info("re-armed disconnect grace deadlines", zap.Int("count", rearmed))
	}
	return nil
}

// Stop cancels all pending grace timers, for shutdown.
func (m *Manager) Stop() {
	m.mu.Lock()
	for key, t := range m.graceTimers {
		t.Stop()
		delete(m.graceTimers, key)
	}
	m.mu.Unlock()
}
