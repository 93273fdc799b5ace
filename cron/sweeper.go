package cron

import (
	"context"
	"fmt"
	"time"

	availabilityRepo "medilink/database/repository/availability"
	"medilink/services/consult"
	"medilink/services/dispatch"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper is the periodic safety net behind the in-memory timers: after a
// restart it re-arms every outstanding offer and disconnect grace window
// from its persisted deadline, and it knocks doctors with dead heartbeats
// offline so they drop out of ranking even when the presence layer missed
// them.
type Sweeper struct {
	Watchdog     *dispatch.Watchdog
	Consults     *consult.Manager
	Availability availabilityRepo.Repository
	StaleAfter   time.Duration
	Logger       *zap.Logger

	runner *cron.Cron
}

// Start schedules the sweep at the given interval.
func (s *Sweeper) Start(interval time.Duration) error {
	s.runner = cron.New()
	spec := fmt.Sprintf("@every %s", interval)
	if _, err := s.runner.AddFunc(spec, s.sweep); err != nil {
		return fmt.Errorf("failed to schedule sweeper: %w", err)
	}
	s.runner.Start()
	// One immediate pass so a restart re-arms offers without waiting a tick.
	go s.sweep()
	return nil
}

func (s *Sweeper) Stop() {
	if s.runner != nil {
		s.runner.Stop()
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.Watchdog.Recover(ctx); err != nil {
		s.Logger.Error("offer recovery sweep failed", zap.Error(err))
	}
	if s.Consults != nil {
		if err := s.Consults.Recover(ctx); err != nil {
			s.Logger.Error("grace recovery sweep failed", zap.Error(err))
		}
	}

	doctors, err := s.Availability.Snapshot(ctx, availabilityRepo.SnapshotCriteria{})
	if err != nil {
		s.Logger.Error("availability sweep failed", zap.Error(err))
		return
	}
	cutoff := time.Now().Add(-s.StaleAfter)
	for _, d := range doctors {
		if d.LastHeartbeat.After(cutoff) {
			continue
		}
		if err := s.Availability.SetOnline(ctx, d.DoctorID, false); err != nil {
			s.Logger.Error("failed to mark stale doctor offline",
				zap.String("doctorId", d.DoctorID), zap.Error(err))
			continue
		}
		s.Logger.Info("marked stale doctor offline",
			zap.String("doctorId", d.DoctorID),
			zap.Time("lastHeartbeat", d.LastHeartbeat))
	}
}
