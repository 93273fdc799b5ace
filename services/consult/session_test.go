package consult

import (
	"context"
	"errors"
	"testing"
	"time"

	"medilink/models"
	"medilink/services/dispatch"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type managerEnv struct {
	sessions     *memSessionRepo
	availability *memAvailabilityRepo
	media        *flakyMedia
	reporter     *recordingReporter
	manager      *Manager
}

func newManagerEnv(t *testing.T, grace time.Duration) *managerEnv {
	t.Helper()
	env := &managerEnv{
		sessions:     newMemSessionRepo(),
		availability: newMemAvailabilityRepo(),
		media:        newFlakyMedia(),
		reporter:     &recordingReporter{},
	}
	registry := &dispatch.Registry{Repo: env.availability, PresenceTTL: time.Minute, Logger: zap.NewNop()}
	env.manager = NewManager(env.sessions, registry, env.media, env.reporter, time.Second, grace, zap.NewNop())
	t.Cleanup(env.manager.Stop)
	return env
}

func (env *managerEnv) claimedDoctor(ctx context.Context, doctorID, requestID string) {
	env.availability.Upsert(ctx, &models.DoctorAvailability{DoctorID: doctorID, Online: true})
	env.availability.Claim(ctx, doctorID, requestID)
	env.availability.MarkInSession(ctx, doctorID, true)
}

func testRequest() *models.EmergencyRequest {
	return &models.EmergencyRequest{
		ID:        "req-1",
		PatientID: "patient-1",
		State:     models.RequestAccepted,
		Priority:  models.PriorityHigh,
	}
}

func TestStartEstablishesBothTracks(t *testing.T) {
	env := newManagerEnv(t, time.Minute)
	ctx := context.Background()
	env.claimedDoctor(ctx, "doc-1", "req-1")

	sess, err := env.manager.Start(ctx, testRequest(), "doc-1")
	require.NoError(t, err)

	stored, err := env.sessions.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, stored.State)
	assert.True(t, stored.Patient.Connected)
	assert.True(t, stored.Doctor.Connected)
	assert.NotEmpty(t, stored.Patient.TrackID)
	assert.NotEmpty(t, stored.Doctor.TrackID)
}

func TestStartMediaFailureTearsDownAndReleases(t *testing.T) {
	env := newManagerEnv(t, time.Minute)
	ctx := context.Background()
	env.claimedDoctor(ctx, "doc-1", "req-1")
	env.media.failFor[models.ParticipantDoctor] = true

	_, err := env.manager.Start(ctx, testRequest(), "doc-1")
	var setupErr MediaSetupFailedError
	require.ErrorAs(t, err, &setupErr)
	assert.Equal(t, "req-1", setupErr.RequestID)

	// The patient track that did come up is torn down again.
	assert.Len(t, env.media.tornDown, 1)

	doc, err := env.availability.GetByID(ctx, "doc-1")
	require.NoError(t, err)
	assert.False(t, doc.Claimed)
	assert.False(t, doc.InSession)

	// Setup failures are surfaced through the error, not the end report.
	assert.Zero(t, env.reporter.count())
}

func TestDisconnectGraceEndsSession(t *testing.T) {
	env := newManagerEnv(t, 30*time.Millisecond)
	ctx := context.Background()
	env.claimedDoctor(ctx, "doc-1", "req-1")

	sess, err := env.manager.Start(ctx, testRequest(), "doc-1")
	require.NoError(t, err)

	require.NoError(t, env.manager.ReportDisconnect(ctx, sess.ID, models.ParticipantPatient))

	require.Eventually(t, func() bool {
		got, err := env.sessions.GetByID(ctx, sess.ID)
		return err == nil && got.State == models.SessionEnded
	}, 2*time.Second, 10*time.Millisecond)

	got, err := env.sessions.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EndPatientLeft, got.EndReason)

	doc, err := env.availability.GetByID(ctx, "doc-1")
	require.NoError(t, err)
	assert.False(t, doc.InSession)

	assert.Equal(t, 1, env.reporter.count())
}

func TestReconnectWithinGraceKeepsSessionAlive(t *testing.T) {
	env := newManagerEnv(t, 60*time.Millisecond)
	ctx := context.Background()
	env.claimedDoctor(ctx, "doc-1", "req-1")

	sess, err := env.manager.Start(ctx, testRequest(), "doc-1")
	require.NoError(t, err)

	require.NoError(t, env.manager.ReportDisconnect(ctx, sess.ID, models.ParticipantDoctor))
	require.NoError(t, env.manager.Reconnect(ctx, sess.ID, models.ParticipantDoctor))

	time.Sleep(150 * time.Millisecond)

	got, err := env.sessions.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, got.State)
	assert.True(t, got.Doctor.Connected)
	assert.Nil(t, got.Doctor.DisconnectedAt)
}

func TestEndFirstReasonWins(t *testing.T) {
	env := newManagerEnv(t, time.Minute)
	ctx := context.Background()
	env.claimedDoctor(ctx, "doc-1", "req-1")

	sess, err := env.manager.Start(ctx, testRequest(), "doc-1")
	require.NoError(t, err)

	require.NoError(t, env.manager.End(ctx, sess.ID, models.EndCompleted, "patient advised rest"))
	require.NoError(t, env.manager.End(ctx, sess.ID, models.EndError, ""))

	got, err := env.sessions.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionEnded, got.State)
	assert.Equal(t, models.EndCompleted, got.EndReason)
	assert.Equal(t, "patient advised rest", got.CompletionNote)
	assert.True(t, got.ChatClosed)

	// Only the winning end reaches dispatch.
	assert.Equal(t, 1, env.reporter.count())
}

func TestMutePersistsOnPresence(t *testing.T) {
	env := newManagerEnv(t, time.Minute)
	ctx := context.Background()
	env.claimedDoctor(ctx, "doc-1", "req-1")

	sess, err := env.manager.Start(ctx, testRequest(), "doc-1")
	require.NoError(t, err)

	require.NoError(t, env.manager.SetMuted(ctx, sess.ID, models.ParticipantPatient, true))

	got, err := env.sessions.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, got.Patient.Muted)
	assert.False(t, got.Doctor.Muted)
}

func TestReconnectAfterEndFails(t *testing.T) {
	env := newManagerEnv(t, time.Minute)
	ctx := context.Background()
	env.claimedDoctor(ctx, "doc-1", "req-1")

	sess, err := env.manager.Start(ctx, testRequest(), "doc-1")
	require.NoError(t, err)
	require.NoError(t, env.manager.End(ctx, sess.ID, models.EndCompleted, ""))

	err = env.manager.Reconnect(ctx, sess.ID, models.ParticipantPatient)
	assert.Error(t, err)
}

func TestGetByIDEnforcesParticipation(t *testing.T) {
	env := newManagerEnv(t, time.Minute)
	ctx := context.Background()
	env.claimedDoctor(ctx, "doc-1", "req-1")

	sess, err := env.manager.Start(ctx, testRequest(), "doc-1")
	require.NoError(t, err)

	_, err = env.manager.GetByID(ctx, sess.ID, "patient-1")
	assert.NoError(t, err)
	_, err = env.manager.GetByID(ctx, sess.ID, "someone-else")
	var notPart NotParticipantError
	assert.ErrorAs(t, err, &notPart)
}

func TestStartCreateFailureReleasesClaim(t *testing.T) {
	env := newManagerEnv(t, time.Minute)
	ctx := context.Background()
	env.claimedDoctor(ctx, "doc-1", "req-1")
	env.sessions.failCreate = errors.New("insert failed")

	_, err := env.manager.Start(ctx, testRequest(), "doc-1")
	var setupErr MediaSetupFailedError
	require.ErrorAs(t, err, &setupErr)
	assert.Equal(t, "req-1", setupErr.RequestID)

	doc, err := env.availability.GetByID(ctx, "doc-1")
	require.NoError(t, err)
	assert.False(t, doc.Claimed)
	assert.False(t, doc.InSession)
}

func TestRecoverEndsOverdueDisconnect(t *testing.T) {
	env := newManagerEnv(t, 30*time.Millisecond)
	ctx := context.Background()
	env.claimedDoctor(ctx, "doc-1", "req-1")

	sess, err := env.manager.Start(ctx, testRequest(), "doc-1")
	require.NoError(t, err)
	require.NoError(t, env.manager.ReportDisconnect(ctx, sess.ID, models.ParticipantDoctor))

	// The process dies with the grace timer in flight; the deadline passes
	// while nothing is running.
	env.manager.Stop()
	time.Sleep(60 * time.Millisecond)

	registry := &dispatch.Registry{Repo: env.availability, PresenceTTL: time.Minute, Logger: zap.NewNop()}
	reporter := &recordingReporter{}
	fresh := NewManager(env.sessions, registry, env.media, reporter, time.Second, 30*time.Millisecond, zap.NewNop())
	t.Cleanup(fresh.Stop)

	require.NoError(t, fresh.Recover(ctx))

	require.Eventually(t, func() bool {
		got, err := env.sessions.GetByID(ctx, sess.ID)
		return err == nil && got.State == models.SessionEnded
	}, 2*time.Second, 10*time.Millisecond)

	got, err := env.sessions.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EndDoctorLeft, got.EndReason)

	doc, err := env.availability.GetByID(ctx, "doc-1")
	require.NoError(t, err)
	assert.False(t, doc.Claimed)
	assert.False(t, doc.InSession)
	assert.Equal(t, 1, reporter.count())
}

func TestRecoverReArmsPendingGrace(t *testing.T) {
	env := newManagerEnv(t, 100*time.Millisecond)
	ctx := context.Background()
	env.claimedDoctor(ctx, "doc-1", "req-1")

	sess, err := env.manager.Start(ctx, testRequest(), "doc-1")
	require.NoError(t, err)
	require.NoError(t, env.manager.ReportDisconnect(ctx, sess.ID, models.ParticipantPatient))
	env.manager.Stop()

	registry := &dispatch.Registry{Repo: env.availability, PresenceTTL: time.Minute, Logger: zap.NewNop()}
	reporter := &recordingReporter{}
	fresh := NewManager(env.sessions, registry, env.media, reporter, time.Second, 100*time.Millisecond, zap.NewNop())
	t.Cleanup(fresh.Stop)

	require.NoError(t, fresh.Recover(ctx))

	// The deadline has not passed yet; recovery must not end early.
	got, err := env.sessions.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, got.State)

	require.Eventually(t, func() bool {
		got, err := env.sessions.GetByID(ctx, sess.ID)
		return err == nil && got.State == models.SessionEnded
	}, 2*time.Second, 10*time.Millisecond)

	got, err = env.sessions.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EndPatientLeft, got.EndReason)
}
