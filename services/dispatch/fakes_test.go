package dispatch

import (
	"context"
	"sync"
	"time"

	availabilityRepo "medilink/database/repository/availability"
	offerRepo "medilink/database/repository/offer"
	requestRepo "medilink/database/repository/request"
	"medilink/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// In-memory repositories reproducing the Mongo implementations' CAS
// semantics under a mutex, so the engine's concurrency behavior is testable
// without a database.

type fakeRequestRepo struct {
	mu   sync.Mutex
	reqs map[string]*models.EmergencyRequest
	// beforeTransition runs under the lock just before a CAS applies, so a
	// test can interleave a concurrent mutation into the transition window.
	beforeTransition func(req *models.EmergencyRequest)
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{reqs: make(map[string]*models.EmergencyRequest)}
}

func (r *fakeRequestRepo) Create(ctx context.Context, req *models.EmergencyRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *req
	r.reqs[req.ID] = &cp
	return nil
}

func (r *fakeRequestRepo) GetByID(ctx context.Context, id string) (*models.EmergencyRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[id]
	if !ok {
		return nil, requestRepo.ErrNotFound
	}
	cp := *req
	cp.History = append([]models.StateTransition{}, req.History...)
	cp.AttemptedDoctorIDs = append([]string{}, req.AttemptedDoctorIDs...)
	cp.ExcludedDoctorIDs = append([]string{}, req.ExcludedDoctorIDs...)
	return &cp, nil
}

func (r *fakeRequestRepo) Transition(ctx context.Context, id string, from models.RequestState, entry models.StateTransition, extra bson.M) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[id]
	if !ok {
		return requestRepo.ErrNotFound
	}
	if req.State != from {
		return requestRepo.ErrStaleState
	}
	if r.beforeTransition != nil {
		r.beforeTransition(req)
	}
	req.State = entry.To
	req.History = append(req.History, entry)
	req.UpdatedAt = entry.At
	for k, v := range extra {
		switch k {
		case "currentOfferId":
			req.CurrentOfferID, _ = v.(string)
		case "sessionId":
			req.SessionID, _ = v.(string)
		case "outcome":
			req.Outcome, _ = v.(string)
		case "attemptedDoctorIds":
			if ids, ok := v.([]string); ok {
				req.AttemptedDoctorIDs = append([]string{}, ids...)
			}
		case "excludedDoctorIds":
			if ids, ok := v.([]string); ok {
				req.ExcludedDoctorIDs = append([]string{}, ids...)
			}
		}
	}
	return nil
}

type fakeAvailabilityRepo struct {
	mu      sync.Mutex
	doctors map[string]*models.DoctorAvailability
}

func newFakeAvailabilityRepo() *fakeAvailabilityRepo {
	return &fakeAvailabilityRepo{doctors: make(map[string]*models.DoctorAvailability)}
}

func (r *fakeAvailabilityRepo) Upsert(ctx context.Context, av *models.DoctorAvailability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *av
	r.doctors[av.DoctorID] = &cp
	return nil
}

func (r *fakeAvailabilityRepo) GetByID(ctx context.Context, doctorID string) (*models.DoctorAvailability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[doctorID]
	if !ok {
		return nil, availabilityRepo.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *fakeAvailabilityRepo) Claim(ctx context.Context, doctorID, requestID string) error {
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

func (r *fakeAvailabilityRepo) Release(ctx context.Context, doctorID, requestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[doctorID]
	if !ok {
		return nil
	}
	if d.Claimed && d.ClaimedBy == requestID {
		d.Claimed = false
		d.ClaimedBy = ""
	}
	return nil
}

func (r *fakeAvailabilityRepo) MarkInSession(ctx context.Context, doctorID string, inSession bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.doctors[doctorID]; ok {
		d.InSession = inSession
	}
	return nil
}

func (r *fakeAvailabilityRepo) SetOnline(ctx context.Context, doctorID string, online bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[doctorID]
	if !ok {
		return availabilityRepo.ErrNotFound
	}
	d.Online = online
	return nil
}

func (r *fakeAvailabilityRepo) Heartbeat(ctx context.Context, doctorID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[doctorID]
	if !ok {
		return availabilityRepo.ErrNotFound
	}
	d.LastHeartbeat = at
	return nil
}

func (r *fakeAvailabilityRepo) Snapshot(ctx context.Context, criteria availabilityRepo.SnapshotCriteria) ([]models.DoctorAvailability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DoctorAvailability
	for _, d := range r.doctors {
		if !d.Online || d.Claimed || d.InSession {
			continue
		}
		if !criteria.HeartbeatAfter.IsZero() && !d.LastHeartbeat.After(criteria.HeartbeatAfter) {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

type fakeOfferRepo struct {
	mu     sync.Mutex
	offers map[string]*models.Offer
}

func newFakeOfferRepo() *fakeOfferRepo {
	return &fakeOfferRepo{offers: make(map[string]*models.Offer)}
}

func (r *fakeOfferRepo) Create(ctx context.Context, offer *models.Offer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *offer
	r.offers[offer.ID] = &cp
	return nil
}

func (r *fakeOfferRepo) GetByID(ctx context.Context, id string) (*models.Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.offers[id]
	if !ok {
		return nil, offerRepo.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *fakeOfferRepo) Resolve(ctx context.Context, id string, to models.OfferStatus, reason string, at time.Time) (*models.Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.offers[id]
	if !ok {
		return nil, offerRepo.ErrNotFound
	}
	if o.Status != models.OfferOutstanding {
		return nil, offerRepo.ErrResolved
	}
	o.Status = to
	o.Reason = reason
	o.ResolvedAt = &at
	cp := *o
	return &cp, nil
}

func (r *fakeOfferRepo) ListOutstanding(ctx context.Context) ([]models.Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Offer
	for _, o := range r.offers {
		if o.Status == models.OfferOutstanding {
			out = append(out, *o)
		}
	}
	return out, nil
}

// fakeSessions stands in for the consultation manager.
type fakeSessions struct {
	mu        sync.Mutex
	failTimes int // fail the next N starts
	started   []*models.Session
	ended     map[string]models.EndReason
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{ended: make(map[string]models.EndReason)}
}

func (s *fakeSessions) Start(ctx context.Context, req *models.EmergencyRequest, doctorID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTimes > 0 {
		s.failTimes--
		return nil, context.DeadlineExceeded
	}
	sess := &models.Session{
		ID:        uuid.New().String(),
		RequestID: req.ID,
		PatientID: req.PatientID,
		DoctorID:  doctorID,
		State:     models.SessionActive,
		CreatedAt: time.Now(),
	}
	s.started = append(s.started, sess)
	return sess, nil
}

func (s *fakeSessions) End(ctx context.Context, sessionID string, reason models.EndReason, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended[sessionID] = reason
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []models.DispatchAlert
}

func (n *recordingNotifier) DispatchAlert(ctx context.Context, alert models.DispatchAlert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
}

func (n *recordingNotifier) states() []models.RequestState {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.RequestState
	for _, a := range n.alerts {
		out = append(out, a.State)
	}
	return out
}

// testEnv bundles a fully wired engine over the in-memory repositories.
type testEnv struct {
	requests     *fakeRequestRepo
	availability *fakeAvailabilityRepo
	offers       *fakeOfferRepo
	sessions     *fakeSessions
	notifier     *recordingNotifier
	registry     *Registry
	coordinator  *Coordinator
	watchdog     *Watchdog
	engine       *Engine
}

func newTestEnv(offerTimeout time.Duration) *testEnv {
	env := &testEnv{
		requests:     newFakeRequestRepo(),
		availability: newFakeAvailabilityRepo(),
		offers:       newFakeOfferRepo(),
		sessions:     newFakeSessions(),
		notifier:     &recordingNotifier{},
	}
	logger := zap.NewNop()
	env.registry = &Registry{Repo: env.availability, PresenceTTL: time.Minute, Logger: logger}
	env.coordinator = &Coordinator{
		Offers:       env.offers,
		Registry:     env.registry,
		OfferTimeout: func(string) time.Duration { return offerTimeout },
		Logger:       logger,
	}
	env.watchdog = NewWatchdog(env.offers, env.coordinator.Expire, logger)
	env.coordinator.Watchdog = env.watchdog
	env.engine = NewEngine(env.requests, env.registry, env.coordinator, env.notifier, nil, logger)
	env.engine.BindSessions(env.sessions)
	return env
}

func (env *testEnv) addDoctor(id string, specs ...string) {
	env.availability.Upsert(context.Background(), &models.DoctorAvailability{
		DoctorID:        id,
		Specializations: specs,
		Online:          true,
		Rating:          4.0,
		LastHeartbeat:   time.Now(),
	})
}

func (env *testEnv) currentOffer(requestID string) *models.Offer {
	env.offers.mu.Lock()
	defer env.offers.mu.Unlock()
	for _, o := range env.offers.offers {
		if o.RequestID == requestID && o.Status == models.OfferOutstanding {
			cp := *o
			return &cp
		}
	}
	return nil
}
