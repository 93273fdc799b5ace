package dispatch

import (
	"context"
	"errors"
	"time"

	availabilityRepo "medilink/database/repository/availability"
	"medilink/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const presenceKeyPrefix = "presence:doctor:"

// Registry tracks which doctors are eligible to receive emergency offers.
// Durable claim state lives in Mongo behind the repository's atomic
// claim/release; volatile liveness lives in Redis TTL keys so a crashed
// doctor app drops out of ranking without any explicit sign-off.
type Registry struct {
	Repo        availabilityRepo.Repository
	Presence    *redis.Client // nil disables the presence layer
	PresenceTTL time.Duration
	Logger      *zap.Logger
}

// SetOnline flips a doctor's availability for receiving offers.
func (r *Registry) SetOnline(ctx context.Context, doctorID string, online bool) error {
	if err := r.Repo.SetOnline(ctx, doctorID, online); err != nil {
		return err
	}
	if r.Presence == nil {
		return nil
	}
	key := presenceKeyPrefix + doctorID
	if online {
		if err := r.Presence.Set(ctx, key, "1", r.PresenceTTL).Err(); err != nil {
			r.Logger.Warn("failed to set presence key", zap.String("doctorId", doctorID), zap.Error(err))
		}
	} else {
		if err := r.Presence.Del(ctx, key).Err(); err != nil {
			r.Logger.Warn("failed to clear presence key", zap.String("doctorId", doctorID), zap.Error(err))
		}
	}
	return nil
}

// Heartbeat records a liveness signal and refreshes the presence TTL.
func (r *Registry) Heartbeat(ctx context.Context, doctorID string) error {
	now := time.Now()
	if err := r.Repo.Heartbeat(ctx, doctorID, now); err != nil {
		return err
	}
	if r.Presence != nil {
		if err := r.Presence.Set(ctx, presenceKeyPrefix+doctorID, "1", r.PresenceTTL).Err(); err != nil {
			r.Logger.Warn("failed to refresh presence key", zap.String("doctorId", doctorID), zap.Error(err))
		}
	}
	return nil
}

// Snapshot lists doctors currently offerable, filtered by live presence.
// When Redis is unreachable the heartbeat timestamps in Mongo stand in, so a
// presence outage degrades ranking freshness rather than halting dispatch.
func (r *Registry) Snapshot(ctx context.Context) ([]models.DoctorAvailability, error) {
	doctors, err := r.Repo.Snapshot(ctx, availabilityRepo.SnapshotCriteria{})
	if err != nil {
		return nil, err
	}
	if r.Presence == nil || len(doctors) == 0 {
		return doctors, nil
	}

	keys := make([]string, len(doctors))
	for i, d := range doctors {
		keys[i] = presenceKeyPrefix + d.DoctorID
	}
	vals, err := r.Presence.MGet(ctx, keys...).Result()
	if err != nil {
		r.Logger.Warn("presence lookup failed, falling back to heartbeat window", zap.Error(err))
		cutoff := time.Now().Add(-r.PresenceTTL)
		var live []models.DoctorAvailability
		for _, d := range doctors {
			if d.LastHeartbeat.After(cutoff) {
				live = append(live, d)
			}
		}
		return live, nil
	}

	var live []models.DoctorAvailability
	for i, d := range doctors {
		if vals[i] != nil {
			live = append(live, d)
		}
	}
	return live, nil
}

// Claim atomically reserves a doctor for a request.
func (r *Registry) Claim(ctx context.Context, doctorID, requestID string) error {
	err := r.Repo.Claim(ctx, doctorID, requestID)
	if errors.Is(err, availabilityRepo.ErrNotClaimable) {
		return DoctorUnavailableError{DoctorID: doctorID, RequestID: requestID}
	}
	return err
}

// Release returns a doctor to the offerable pool.
func (r *Registry) Release(ctx context.Context, doctorID, requestID string) error {
	return r.Repo.Release(ctx, doctorID, requestID)
}

// MarkInSession flips the in-session flag after an acceptance hands the
// doctor off to a live session.
func (r *Registry) MarkInSession(ctx context.Context, doctorID string, inSession bool) error {
	return r.Repo.MarkInSession(ctx, doctorID, inSession)
}
