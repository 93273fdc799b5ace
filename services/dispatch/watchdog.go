package dispatch

import (
	"context"
	"sync"
	"time"

	offerRepo "medilink/database/repository/offer"

	"go.uber.org/zap"
)

// ExpireFunc is invoked when an offer deadline fires.
type ExpireFunc func(ctx context.Context, offerID string)

// Watchdog is the one-shot timer fabric behind offer expiry. Timers are
// in-memory but every deadline is persisted on the offer document, so
// Recover can re-arm or immediately fire anything lost across a restart.
type Watchdog struct {
	Offers offerRepo.Repository
	Logger *zap.Logger

	expire ExpireFunc

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewWatchdog builds a watchdog that calls fn on every fired deadline.
func NewWatchdog(offers offerRepo.Repository, fn ExpireFunc, logger *zap.Logger) *Watchdog {
	return &Watchdog{
		Offers: offers,
		Logger: logger,
		expire: fn,
		timers: make(map[string]*time.Timer),
	}
}

// Arm schedules a one-shot expiry for the offer. An already-armed offer is
// left untouched. A deadline in the past fires on a fresh goroutine right
// away.
func (w *Watchdog) Arm(offerID string, expiresAt time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.timers[offerID]; ok {
		return
	}
	d := time.Until(expiresAt)
	if d < 0 {
		d = 0
	}
	w.timers[offerID] = time.AfterFunc(d, func() { w.fire(offerID) })
}

// Disarm cancels the timer for an offer that was accepted or rejected before
// its deadline. Losing the race to a concurrent fire is harmless: the expiry
// path re-checks the offer status atomically and no-ops.
func (w *Watchdog) Disarm(offerID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[offerID]; ok {
		t.Stop()
		delete(w.timers, offerID)
	}
}

func (w *Watchdog) fire(offerID string) {
	w.mu.Lock()
	delete(w.timers, offerID)
	w.mu.Unlock()

	w.Logger.Debug("offer deadline fired", zap.String("offerId", offerID))
	w.expire(context.Background(), offerID)
}

// Recover re-arms every outstanding offer's persisted deadline. Run it once
// at startup and periodically from the sweeper; overdue offers expire
// immediately, so a restart never silently extends a deadline.
func (w *Watchdog) Recover(ctx context.Context) error {
	offers, err := w.Offers.ListOutstanding(ctx)
	if err != nil {
		return err
	}
	for _, o := range offers {
		w.Arm(o.ID, o.ExpiresAt)
	}
	if len(offers) > 0 {
		w.Logger.Info("re-armed outstanding offer deadlines", zap.Int("count", len(offers)))
	}
	return nil
}

// Stop cancels all pending timers, for shutdown.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, t := range w.timers {
		t.Stop()
		delete(w.timers, id)
	}
}
