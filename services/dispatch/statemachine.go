package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	requestRepo "medilink/database/repository/request"
	"medilink/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// SessionService is the slice of the session manager the engine drives on
// acceptance and cancellation.
type SessionService interface {
	Start(ctx context.Context, req *models.EmergencyRequest, doctorID string) (*models.Session, error)
	End(ctx context.Context, sessionID string, reason models.EndReason, note string) error
}

// Notifier receives a best-effort alert for every dispatch transition.
// Delivery sits outside the engine's consistency boundary.
type Notifier interface {
	DispatchAlert(ctx context.Context, alert models.DispatchAlert)
}

// IntakeInput is a patient's urgent-care request as it arrives.
type IntakeInput struct {
	PatientID   string           `json:"patientId"`
	Symptoms    []string         `json:"symptoms"`
	Description string           `json:"description"`
	Priority    models.Priority  `json:"priority"`
	Location    *models.GeoPoint `json:"location,omitempty"`
}

// Engine owns the lifecycle of emergency requests from intake to a terminal
// state. Each request has exactly one logical dispatch loop; the state CAS
// in the request repository is what keeps two callers from ever advancing
// the same request concurrently.
type Engine struct {
	Requests    requestRepo.Repository
	Registry    *Registry
	Coordinator *Coordinator
	Ranker      Ranker
	Sessions    SessionService
	Notifier    Notifier
	Status      *StatusCache
	Logger      *zap.Logger
}

// NewEngine wires the engine and registers it as the coordinator's outcome
// sink. Sessions is bound separately because the session manager needs the
// engine first.
func NewEngine(requests requestRepo.Repository, registry *Registry, coordinator *Coordinator, notifier Notifier, status *StatusCache, logger *zap.Logger) *Engine {
	e := &Engine{
		Requests:    requests,
		Registry:    registry,
		Coordinator: coordinator,
		Notifier:    notifier,
		Status:      status,
		Logger:      logger,
	}
	coordinator.engine = e
	return e
}

// BindSessions attaches the session manager once it exists.
func (e *Engine) BindSessions(s SessionService) {
	e.Sessions = s
}

// RequestDispatch accepts an intake, ranks candidates and extends the first
// offer. When no candidate exists at all the request goes straight to
// exhausted with reason "no candidates"; the caller reads the outcome off
// the returned request.
func (e *Engine) RequestDispatch(ctx context.Context, input IntakeInput) (*models.EmergencyRequest, error) {
	if input.PatientID == "" {
		return nil, fmt.Errorf("patientId is required")
	}
	if len(input.Symptoms) == 0 {
		return nil, fmt.Errorf("at least one symptom is required")
	}
	if !input.Priority.Valid() {
		return nil, fmt.Errorf("invalid priority %q", input.Priority)
	}

	now := time.Now()
	req := &models.EmergencyRequest{
		ID:          uuid.New().String(),
		PatientID:   input.PatientID,
		Symptoms:    input.Symptoms,
		Description: input.Description,
		Priority:    input.Priority,
		Location:    input.Location,
		State:       models.RequestPending,
		History: []models.StateTransition{
			{To: models.RequestPending, Reason: "intake", Actor: "patient", At: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.Requests.Create(ctx, req); err != nil {
		return nil, err
	}
	e.Logger.Info("emergency request created",
		zap.String("requestId", req.ID),
		zap.String("patientId", req.PatientID),
		zap.String("priority", string(req.Priority)))

	snapshot, err := e.Registry.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	ranked := e.Ranker.Rank(req, snapshot, nil)
	if len(ranked) == 0 {
		if err := e.transition(ctx, req, models.RequestPending, models.RequestExhausted,
			"no candidates", "system", "", "", bson.M{"outcome": "no candidates"}); err != nil {
			return nil, err
		}
		return e.Requests.GetByID(ctx, req.ID)
	}

	if err := e.transition(ctx, req, models.RequestPending, models.RequestOffering,
		"candidates ranked", "system", "", "", nil); err != nil {
		return nil, err
	}
	if err := e.escalate(ctx, req.ID); err != nil {
		e.Logger.Error("initial escalation failed", zap.String("requestId", req.ID), zap.Error(err))
	}
	return e.Requests.GetByID(ctx, req.ID)
}

// ReportOfferOutcome routes a doctor's response to the coordinator.
func (e *Engine) ReportOfferOutcome(ctx context.Context, offerID, doctorID, outcome string) error {
	switch outcome {
	case "accept":
		return e.Coordinator.Accept(ctx, offerID, doctorID)
	case "decline":
		return e.Coordinator.Reject(ctx, offerID, doctorID)
	default:
		return fmt.Errorf("unknown offer outcome %q", outcome)
	}
}

// Cancel records a patient-initiated cancellation from any non-terminal
// state and unwinds the outstanding offer or live session. Cancelling an
// already-cancelled request is a no-op; cancelling a completed or exhausted
// one fails with StaleTransitionError.
func (e *Engine) Cancel(ctx context.Context, requestID, actor string) error {
	for attempt := 0; attempt < 3; attempt++ {
		req, err := e.Requests.GetByID(ctx, requestID)
		if err != nil {
			return err
		}
		if req.State == models.RequestCancelled {
			return nil
		}
		if req.State.Terminal() {
			return StaleTransitionError{RequestID: requestID, Expected: string(req.State)}
		}

		err = e.transition(ctx, req, req.State, models.RequestCancelled,
			"cancelled by "+actor, actor, "", req.SessionID,
			bson.M{"outcome": "cancelled"})
		if err != nil {
			var stale StaleTransitionError
			if errors.As(err, &stale) {
				continue
			}
			return err
		}

		// The cancellation is durably recorded; everything after this point
		// is unwinding. Re-read for the unwind targets: escalation may have
		// replaced the offer between our snapshot and the transition without
		// leaving the offering state. A concurrently accepted offer already
		// lost: its accepted→in_progress transition will hit the stale check
		// and tear its session down.
		if fresh, err := e.Requests.GetByID(ctx, requestID); err == nil {
			req = fresh
		} else {
			e.Logger.Error("failed to re-read request for cancellation unwind",
				zap.String("requestId", requestID), zap.Error(err))
		}
		if req.CurrentOfferID != "" {
			e.Coordinator.CancelOffer(ctx, req.CurrentOfferID)
		}
		if req.SessionID != "" && e.Sessions != nil {
			if err := e.Sessions.End(ctx, req.SessionID, models.EndCancelled, ""); err != nil {
				e.Logger.Error("failed to end session on cancellation",
					zap.String("requestId", requestID), zap.String("sessionId", req.SessionID), zap.Error(err))
			}
		}
		return nil
	}
	return StaleTransitionError{RequestID: requestID, Expected: "non-terminal"}
}

// GetStatus serves the public progress view, preferring the Redis cache.
func (e *Engine) GetStatus(ctx context.Context, requestID string) (*models.DispatchStatus, error) {
	if cached, err := e.Status.Get(ctx, requestID); err == nil && cached != nil {
		return cached, nil
	}
	req, err := e.Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	status := models.DispatchStatus{
		RequestID: req.ID,
		State:     req.State,
		Outcome:   req.Outcome,
		SessionID: req.SessionID,
		UpdatedAt: req.UpdatedAt,
	}
	if err := e.Status.Put(ctx, status); err != nil {
		e.Logger.Warn("failed to cache dispatch status", zap.String("requestId", requestID), zap.Error(err))
	}
	return &status, nil
}

// GetRequest returns the full request document, history included.
func (e *Engine) GetRequest(ctx context.Context, requestID string) (*models.EmergencyRequest, error) {
	return e.Requests.GetByID(ctx, requestID)
}

// SessionEnded is the session manager's report that a live session reached
// its end. Cancellation-driven ends are already reflected on the request;
// every other reason completes the dispatch with the end reason as outcome.
func (e *Engine) SessionEnded(ctx context.Context, sess *models.Session, reason models.EndReason) error {
	if reason == models.EndCancelled {
		return nil
	}
	req, err := e.Requests.GetByID(ctx, sess.RequestID)
	if err != nil {
		return err
	}
	actor := "system"
	if reason == models.EndCompleted {
		actor = "doctor"
	}
	err = e.transition(ctx, req, models.RequestInProgress, models.RequestCompleted,
		string(reason), actor, sess.DoctorID, sess.ID, bson.M{"outcome": string(reason)})
	if err != nil {
		var stale StaleTransitionError
		if errors.As(err, &stale) {
			// A concurrent cancellation reached the terminal state first.
			e.Logger.Info("session end lost transition race",
				zap.String("requestId", req.ID), zap.String("sessionId", sess.ID))
			return nil
		}
		return err
	}
	return nil
}

// escalate offers to the best unattempted candidate, or exhausts the
// request when none is claimable. It is re-entered on every timeout and
// rejection; the attempted-doctor set guarantees at most one offer per
// candidate, so a request with N candidates terminates within N steps.
func (e *Engine) escalate(ctx context.Context, requestID string) error {
	req, err := e.Requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req.State != models.RequestOffering {
		// Cancelled or otherwise resolved while the trigger was in flight.
		return nil
	}

	snapshot, err := e.Registry.Snapshot(ctx)
	if err != nil {
		return err
	}
	exclude := make(map[string]struct{}, len(req.AttemptedDoctorIDs)+len(req.ExcludedDoctorIDs))
	for _, id := range req.AttemptedDoctorIDs {
		exclude[id] = struct{}{}
	}
	for _, id := range req.ExcludedDoctorIDs {
		exclude[id] = struct{}{}
	}
	ranked := e.Ranker.Rank(req, snapshot, exclude)

	for _, candidate := range ranked {
		offer, err := e.Coordinator.TryOffer(ctx, req, candidate.DoctorID)
		if err != nil {
			var unavailable DoctorUnavailableError
			if errors.As(err, &unavailable) {
				continue
			}
			return err
		}

		attempted := append(append([]string{}, req.AttemptedDoctorIDs...), candidate.DoctorID)
		err = e.transition(ctx, req, models.RequestOffering, models.RequestOffering,
			"offered to doctor", "system", candidate.DoctorID, "",
			bson.M{"currentOfferId": offer.ID, "attemptedDoctorIds": attempted})
		if err != nil {
			// The request was cancelled under us; take the offer back.
			e.Coordinator.CancelOffer(ctx, offer.ID)
			var stale StaleTransitionError
			if errors.As(err, &stale) {
				return nil
			}
			return err
		}
		return nil
	}

	err = e.transition(ctx, req, models.RequestOffering, models.RequestExhausted,
		"no doctor accepted", "system", "", "",
		bson.M{"outcome": "exhausted", "currentOfferId": ""})
	if err != nil {
		var stale StaleTransitionError
		if errors.As(err, &stale) {
			return nil
		}
		return err
	}
	e.Logger.Warn("dispatch exhausted",
		zap.String("requestId", req.ID),
		zap.Int("offersExtended", len(req.AttemptedDoctorIDs)))
	return nil
}

// onOfferAccepted moves the request into the session phase. First accept
// wins by construction (the offer CAS); losing the request-state CAS here
// means a durably recorded cancellation pre-empted the acceptance.
func (e *Engine) onOfferAccepted(ctx context.Context, offer *models.Offer) error {
	req, err := e.Requests.GetByID(ctx, offer.RequestID)
	if err != nil {
		return err
	}

	err = e.transition(ctx, req, models.RequestOffering, models.RequestAccepted,
		"offer accepted", "doctor", offer.DoctorID, "", bson.M{"currentOfferId": ""})
	if err != nil {
		var stale StaleTransitionError
		if errors.As(err, &stale) {
			if relErr := e.Registry.Release(ctx, offer.DoctorID, offer.RequestID); relErr != nil {
				e.Logger.Error("failed to release claim after pre-empted acceptance",
					zap.String("offerId", offer.ID), zap.Error(relErr))
			}
			return AlreadyResolvedError{OfferID: offer.ID}
		}
		return err
	}

	if err := e.Registry.MarkInSession(ctx, offer.DoctorID, true); err != nil {
		e.Logger.Error("failed to mark doctor in session",
			zap.String("doctorId", offer.DoctorID), zap.Error(err))
	}

	sess, err := e.Sessions.Start(ctx, req, offer.DoctorID)
	if err != nil {
		// Media setup failed: the manager has already torn down and released
		// the claim. Return to offering with this doctor barred from the
		// immediate re-offer, then escalate.
		e.Logger.Warn("session start failed, returning to offering",
			zap.String("requestId", req.ID),
			zap.String("doctorId", offer.DoctorID),
			zap.Error(err))
		excluded := append(append([]string{}, req.ExcludedDoctorIDs...), offer.DoctorID)
		terr := e.transition(ctx, req, models.RequestAccepted, models.RequestOffering,
			"media setup failed", "system", offer.DoctorID, "",
			bson.M{"excludedDoctorIds": excluded, "sessionId": ""})
		if terr != nil {
			var stale StaleTransitionError
			if errors.As(terr, &stale) {
				return nil
			}
			return terr
		}
		return e.escalate(ctx, req.ID)
	}

	err = e.transition(ctx, req, models.RequestAccepted, models.RequestInProgress,
		"media established", "system", offer.DoctorID, sess.ID, bson.M{"sessionId": sess.ID})
	if err != nil {
		var stale StaleTransitionError
		if errors.As(err, &stale) {
			// Cancellation was recorded while the session was being set up:
			// durable record wins, tear the fresh session down.
			if endErr := e.Sessions.End(ctx, sess.ID, models.EndCancelled, ""); endErr != nil {
				e.Logger.Error("failed to tear down session after cancellation",
					zap.String("sessionId", sess.ID), zap.Error(endErr))
			}
			return nil
		}
		return err
	}
	return nil
}

// onOfferFailed escalates after a timeout or explicit decline. These are
// recovered automatically and never surface as user-visible errors.
func (e *Engine) onOfferFailed(ctx context.Context, offer *models.Offer, reason string) error {
	e.Logger.Info("escalating after failed offer",
		zap.String("requestId", offer.RequestID),
		zap.String("offerId", offer.ID),
		zap.String("reason", reason))
	return e.escalate(ctx, offer.RequestID)
}

// transition performs one optimistic state change, appends history, emits
// the notification event and refreshes the status cache.
func (e *Engine) transition(ctx context.Context, req *models.EmergencyRequest, from, to models.RequestState, reason, actor, doctorID, sessionID string, extra bson.M) error {
	entry := models.StateTransition{From: from, To: to, Reason: reason, Actor: actor, At: time.Now()}
	err := e.Requests.Transition(ctx, req.ID, from, entry, extra)
	if errors.Is(err, requestRepo.ErrStaleState) {
		return StaleTransitionError{RequestID: req.ID, Expected: string(from)}
	}
	if err != nil {
		return err
	}

	outcome := ""
	if v, ok := extra["outcome"]; ok {
		outcome, _ = v.(string)
	}
	if e.Notifier != nil {
		e.Notifier.DispatchAlert(ctx, models.DispatchAlert{
			RequestID: req.ID,
			State:     to,
			Reason:    reason,
			PatientID: req.PatientID,
			DoctorID:  doctorID,
			SessionID: sessionID,
			At:        entry.At,
		})
	}
	if err := e.Status.Put(ctx, models.DispatchStatus{
		RequestID: req.ID,
		State:     to,
		Outcome:   outcome,
		DoctorID:  doctorID,
		SessionID: sessionID,
		UpdatedAt: entry.At,
	}); err != nil {
		e.Logger.Warn("failed to refresh status cache", zap.String("requestId", req.ID), zap.Error(err))
	}
	return nil
}
