package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	offerRepo "medilink/database/repository/offer"
	"medilink/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Coordinator extends time-boxed offers to one doctor at a time per request.
// The doctor claim it takes before creating an offer is what prevents
// double-booking across concurrently dispatched requests; the status CAS on
// resolution is what serializes accept against expiry.
type Coordinator struct {
	Offers   offerRepo.Repository
	Registry *Registry
	Watchdog *Watchdog
	// OfferTimeout maps a priority to the offer lifetime.
	OfferTimeout func(priority string) time.Duration
	Logger       *zap.Logger

	engine *Engine
}

// TryOffer atomically claims the doctor and creates an outstanding offer
// with a priority-derived expiry. Fails fast with DoctorUnavailableError
// when the claim race is lost.
func (c *Coordinator) TryOffer(ctx context.Context, req *models.EmergencyRequest, doctorID string) (*models.Offer, error) {
	if err := c.Registry.Claim(ctx, doctorID, req.ID); err != nil {
		return nil, err
	}

	now := time.Now()
	offer := &models.Offer{
		ID:        uuid.New().String(),
		RequestID: req.ID,
		DoctorID:  doctorID,
		Status:    models.OfferOutstanding,
		CreatedAt: now,
		ExpiresAt: now.Add(c.OfferTimeout(string(req.Priority))),
	}
	if err := c.Offers.Create(ctx, offer); err != nil {
		// Hand the claim back, otherwise the doctor is stuck unreachable.
		if relErr := c.Registry.Release(ctx, doctorID, req.ID); relErr != nil {
			c.Logger.Error("failed to release claim after offer create failure",
				zap.String("doctorId", doctorID), zap.String("requestId", req.ID), zap.Error(relErr))
		}
		return nil, fmt.Errorf("failed to persist offer for request %s: %w", req.ID, err)
	}

	c.Watchdog.Arm(offer.ID, offer.ExpiresAt)
	c.Logger.Info("offer extended",
		zap.String("offerId", offer.ID),
		zap.String("requestId", req.ID),
		zap.String("doctorId", doctorID),
		zap.Time("expiresAt", offer.ExpiresAt))
	return offer, nil
}

// Accept resolves an outstanding, unexpired offer in the doctor's favor.
// The doctor stays claimed into the session. First accept wins; anything
// later sees AlreadyResolvedError.
func (c *Coordinator) Accept(ctx context.Context, offerID, doctorID string) error {
	offer, err := c.Offers.GetByID(ctx, offerID)
	if err != nil {
		return err
	}
	if offer.DoctorID != doctorID {
		return fmt.Errorf("offer %s was not extended to doctor %s", offerID, doctorID)
	}
	if time.Now().After(offer.ExpiresAt) {
		// The wall clock beat the timer; expire on the same atomic check and
		// report the acceptance as late.
		c.Expire(ctx, offerID)
		return AlreadyResolvedError{OfferID: offerID}
	}

	resolved, err := c.Offers.Resolve(ctx, offerID, models.OfferAccepted, "accepted", time.Now())
	if errors.Is(err, offerRepo.ErrResolved) {
		return AlreadyResolvedError{OfferID: offerID}
	}
	if err != nil {
		return err
	}

	c.Watchdog.Disarm(offerID)
	c.Logger.Info("offer accepted",
		zap.String("offerId", offerID),
		zap.String("requestId", resolved.RequestID),
		zap.String("doctorId", doctorID))
	return c.engine.onOfferAccepted(ctx, resolved)
}

// Reject resolves an offer as an explicit doctor decline and escalates.
func (c *Coordinator) Reject(ctx context.Context, offerID, doctorID string) error {
	offer, err := c.Offers.GetByID(ctx, offerID)
	if err != nil {
		return err
	}
	if offer.DoctorID != doctorID {
		return fmt.Errorf("offer %s was not extended to doctor %s", offerID, doctorID)
	}
	return c.resolveAndEscalate(ctx, offerID, models.OfferRejected, "declined")
}

// Expire resolves an offer as timed out and escalates. Invoked by the
// watchdog; a concurrent accept that won the CAS makes this a no-op.
func (c *Coordinator) Expire(ctx context.Context, offerID string) {
	if err := c.resolveAndEscalate(ctx, offerID, models.OfferExpired, "timeout"); err != nil {
		var already AlreadyResolvedError
		if errors.As(err, &already) {
			return
		}
		c.Logger.Error("offer expiry failed", zap.String("offerId", offerID), zap.Error(err))
	}
}

// CancelOffer resolves an outstanding offer as part of a patient
// cancellation: claim released, no escalation, and the eventual watchdog
// fire becomes a no-op.
func (c *Coordinator) CancelOffer(ctx context.Context, offerID string) {
	resolved, err := c.Offers.Resolve(ctx, offerID, models.OfferExpired, "cancelled", time.Now())
	if errors.Is(err, offerRepo.ErrResolved) {
		return
	}
	if err != nil {
		c.Logger.Error("failed to cancel offer", zap.String("offerId", offerID), zap.Error(err))
		return
	}
	c.Watchdog.Disarm(offerID)
	if err := c.Registry.Release(ctx, resolved.DoctorID, resolved.RequestID); err != nil {
		c.Logger.Error("failed to release claim on cancelled offer",
			zap.String("offerId", offerID), zap.Error(err))
	}
}

func (c *Coordinator) resolveAndEscalate(ctx context.Context, offerID string, to models.OfferStatus, reason string) error {
	resolved, err := c.Offers.Resolve(ctx, offerID, to, reason, time.Now())
	if errors.Is(err, offerRepo.ErrResolved) {
		return AlreadyResolvedError{OfferID: offerID}
	}
	if err != nil {
		return err
	}

	c.Watchdog.Disarm(offerID)
	if err := c.Registry.Release(ctx, resolved.DoctorID, resolved.RequestID); err != nil {
		c.Logger.Error("failed to release claim on resolved offer",
			zap.String("offerId", offerID), zap.Error(err))
	}
	c.Logger.Info("offer resolved without acceptance",
		zap.String("offerId", offerID),
		zap.String("requestId", resolved.RequestID),
		zap.String("doctorId", resolved.DoctorID),
		zap.String("reason", reason))
	return c.engine.onOfferFailed(ctx, resolved, reason)
}
