package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"medilink/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type expireRecorder struct {
	mu    sync.Mutex
	fired []string
	done  chan struct{}
}

func newExpireRecorder(expected int) *expireRecorder {
	return &expireRecorder{done: make(chan struct{}, expected)}
}

func (r *expireRecorder) expire(ctx context.Context, offerID string) {
	r.mu.Lock()
	r.fired = append(r.fired, offerID)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *expireRecorder) firedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.fired...)
}

func waitFired(t *testing.T, rec *expireRecorder) {
	t.Helper()
	select {
	case <-rec.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watchdog to fire")
	}
}

func TestWatchdogFiresAtDeadline(t *testing.T) {
	offers := newFakeOfferRepo()
	rec := newExpireRecorder(1)
	wd := NewWatchdog(offers, rec.expire, zap.NewNop())
	defer wd.Stop()

	wd.Arm("offer-1", time.Now().Add(20*time.Millisecond))
	waitFired(t, rec)
	assert.Equal(t, []string{"offer-1"}, rec.firedIDs())
}

func TestWatchdogDisarmPreventsFire(t *testing.T) {
	offers := newFakeOfferRepo()
	rec := newExpireRecorder(1)
	wd := NewWatchdog(offers, rec.expire, zap.NewNop())
	defer wd.Stop()

	wd.Arm("offer-1", time.Now().Add(50*time.Millisecond))
	wd.Disarm("offer-1")

	time.Sleep(120 * time.Millisecond)
	assert.Empty(t, rec.firedIDs())
}

func TestWatchdogArmIsIdempotent(t *testing.T) {
	offers := newFakeOfferRepo()
	rec := newExpireRecorder(2)
	wd := NewWatchdog(offers, rec.expire, zap.NewNop())
	defer wd.Stop()

	deadline := time.Now().Add(20 * time.Millisecond)
	wd.Arm("offer-1", deadline)
	wd.Arm("offer-1", deadline.Add(time.Hour))

	waitFired(t, rec)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"offer-1"}, rec.firedIDs())
}

func TestWatchdogPastDeadlineFiresImmediately(t *testing.T) {
	offers := newFakeOfferRepo()
	rec := newExpireRecorder(1)
	wd := NewWatchdog(offers, rec.expire, zap.NewNop())
	defer wd.Stop()

	wd.Arm("offer-1", time.Now().Add(-time.Minute))
	waitFired(t, rec)
	assert.Equal(t, []string{"offer-1"}, rec.firedIDs())
}

func TestWatchdogRecoverReArmsOutstanding(t *testing.T) {
	offers := newFakeOfferRepo()
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, offers.Create(ctx, &models.Offer{
		ID: "overdue", RequestID: "r1", DoctorID: "d1",
		Status: models.OfferOutstanding, ExpiresAt: now.Add(-time.Second),
	}))
	require.NoError(t, offers.Create(ctx, &models.Offer{
		ID: "resolved", RequestID: "r2", DoctorID: "d2",
		Status: models.OfferAccepted, ExpiresAt: now.Add(-time.Second),
	}))

	rec := newExpireRecorder(1)
	wd := NewWatchdog(offers, rec.expire, zap.NewNop())
	defer wd.Stop()

	require.NoError(t, wd.Recover(ctx))
	waitFired(t, rec)
	assert.Equal(t, []string{"overdue"}, rec.firedIDs())
}
