// Package dispatch implements the emergency request lifecycle: submission
// guards, subscription and coverage checks, allocation, field updates and
// nearest-team assignment.
package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"Guardline/internal/geo"
	"Guardline/internal/models"
	"Guardline/internal/spatial"
	"Guardline/pkg/cache"
	"Guardline/pkg/errors"
	"Guardline/pkg/logger"
	"Guardline/pkg/metrics"
	"Guardline/pkg/notification"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	SilentModeDuration       = 30 * time.Minute
	defaultSideEffectTimeout = 15 * time.Second
)

type Engine struct {
	db        *gorm.DB
	guard     *Guard
	validator *Validator
	locator   spatial.Locator

	notifier  Notifier
	silent    SilentMode
	publisher Publisher
	metrics   *metrics.Metrics
	now       Clock

	syncSideEffects   bool
	sideEffectTimeout time.Duration
	wg                sync.WaitGroup

	// status events leave in commit order through one drain goroutine
	pubMu      sync.Mutex
	pubQueue   []func()
	pubRunning bool
}

type Option func(*Engine)

func WithNotifier(n Notifier) Option     { return func(e *Engine) { e.notifier = n } }
func WithSilentMode(s SilentMode) Option { return func(e *Engine) { e.silent = s } }
func WithPublisher(p Publisher) Option   { return func(e *Engine) { e.publisher = p } }
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}
func WithClock(c Clock) Option { return func(e *Engine) { e.now = c } }

// WithSyncSideEffects runs notifications, silent mode and publishing inline
// before the operation returns.
func WithSyncSideEffects() Option { return func(e *Engine) { e.syncSideEffects = true } }

func WithSideEffectTimeout(d time.Duration) Option {
	return func(e *Engine) { e.sideEffectTimeout = d }
}

func NewEngine(db *gorm.DB, c cache.Cache, locator spatial.Locator, opts ...Option) *Engine {
	e := &Engine{
		db:                db,
		locator:           locator,
		notifier:          nopNotifier{},
		silent:            nopSilentMode{},
		publisher:         nopPublisher{},
		now:               SystemClock,
		sideEffectTimeout: defaultSideEffectTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.guard = NewGuard(c, db, e.now)
	e.validator = NewValidator(db, locator, e.now)
	return e
}

func (e *Engine) Guard() *Guard         { return e.guard }
func (e *Engine) Validator() *Validator { return e.validator }

// Wait blocks until every in-flight side effect has finished.
func (e *Engine) Wait() { e.wg.Wait() }

type SubmitInput struct {
	Phone       string    `json:"phone"`
	GroupID     uuid.UUID `json:"groupId"`
	ServiceType string    `json:"serviceType"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	Address     string    `json:"address"`
	Description string    `json:"description"`
	// Language is used for the confirmation when the user has none stored.
	Language string `json:"language,omitempty"`
}

// Submit validates and records a new emergency request. Checks run in a
// fixed order and the first failure is returned: service type, phone
// authorization, rate limit, duplicate, subscription, coverage.
func (e *Engine) Submit(ctx context.Context, in SubmitInput) (*models.PanicRequest, error) {
	req, user, err := e.submit(ctx, in)
	if err != nil {
		e.metrics.ObserveSubmission(Key(err))
		return nil, err
	}
	e.metrics.ObserveSubmission("accepted")

	if _, err := e.guard.RecordSubmission(ctx, req.Phone); err != nil {
		logger.Warn("rate limit counter not incremented", zap.String("phone", req.Phone), zap.Error(err))
	}

	snapshot := *req
	to := notification.Recipient{Phone: req.Phone}
	if user != nil {
		to = recipientOf(user)
	}
	if to.Language == "" {
		to.Language = in.Language
	}
	e.sideEffect("confirmation", req.ID, func(ctx context.Context) error {
		_, err := e.notifier.SendEmergencyConfirmation(ctx, to, &snapshot)
		return err
	})
	if req.ServiceType == models.ServiceCall {
		if user != nil {
			userID := user.ID
			e.sideEffect("silent_mode", req.ID, func(ctx context.Context) error {
				return e.silent.Activate(ctx, userID, snapshot.ID, SilentModeDuration)
			})
		} else {
			logger.Debug("silent mode skipped, phone has no account", zap.String("request_id", req.ID.String()))
		}
	}
	e.publish(req, "", "Emergency request submitted", nil)
	return req, nil
}

func (e *Engine) submit(ctx context.Context, in SubmitInput) (*models.PanicRequest, *models.User, error) {
	st, err := models.ParseServiceType(in.ServiceType)
	if err != nil {
		return nil, nil, errors.WithCodef(CodeInvalidServiceType,
			"invalid service type %q, expected one of call, security, ambulance, fire, towing", in.ServiceType)
	}
	phone := strings.TrimSpace(in.Phone)
	if phone == "" {
		return nil, nil, validation("phone is required")
	}
	p := geo.Point{Lat: in.Lat, Lon: in.Lon}
	if !p.Valid() {
		return nil, nil, validation("invalid coordinates %s", p)
	}

	user, err := e.authorizePhone(ctx, phone, in.GroupID)
	if err != nil {
		return nil, nil, err
	}
	if err := e.guard.CheckRateLimit(ctx, phone); err != nil {
		return nil, nil, err
	}
	if err := e.guard.CheckDuplicate(ctx, phone, st, p); err != nil {
		return nil, nil, err
	}
	group, err := e.validator.ValidateSubscription(ctx, in.GroupID)
	if err != nil {
		return nil, nil, err
	}
	if err := e.validator.ValidateCoverage(ctx, group, p); err != nil {
		return nil, nil, err
	}

	now := e.now()
	req := &models.PanicRequest{
		Base:        models.Base{CreatedAt: now, UpdatedAt: now},
		Phone:       phone,
		GroupID:     group.ID,
		ServiceType: st,
		Lat:         p.Lat,
		Lon:         p.Lon,
		Address:     in.Address,
		Description: in.Description,
		Status:      models.StatusPending,
	}
	var by *uuid.UUID
	if user != nil {
		by = &user.ID
	}
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return errors.Wrap(err, "create request")
		}
		return appendAudit(tx, req.ID, models.StatusPending, "Emergency request submitted", by, nil)
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("emergency request submitted",
		zap.String("request_id", req.ID.String()),
		zap.String("service_type", string(st)),
		zap.String("group_id", group.ID.String()))
	return req, user, nil
}

// authorizePhone accepts a phone that belongs to a member of the group or is
// registered as a legacy group number. Account locks are ignored here so a
// locked user can still raise an emergency. The returned user is nil for
// numbers without an account.
func (e *Engine) authorizePhone(ctx context.Context, phone string, groupID uuid.UUID) (*models.User, error) {
	db := e.db.WithContext(ctx)

	var user models.User
	err := db.Where("phone = ?", phone).First(&user).Error
	switch {
	case err == nil:
		var n int64
		if err := db.Model(&models.GroupMembership{}).
			Where("group_id = ? AND user_id = ?", groupID, user.ID).
			Count(&n).Error; err != nil {
			return nil, errors.Wrap(err, "check membership")
		}
		if n > 0 {
			return &user, nil
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, errors.Wrap(err, "load user")
	}

	var n int64
	if err := db.Model(&models.GroupMobileNumber{}).
		Where("group_id = ? AND phone_number = ?", groupID, phone).
		Count(&n).Error; err != nil {
		return nil, errors.Wrap(err, "check group numbers")
	}
	if n == 0 {
		return nil, ErrUnauthorizedPhone
	}
	if user.ID != uuid.Nil {
		return &user, nil
	}
	return nil, nil
}

// UpdateStatus moves a request to status, checked against the transition
// table. Lifecycle timestamps are stamped only the first time their status
// is reached.
func (e *Engine) UpdateStatus(ctx context.Context, id uuid.UUID, status models.RequestStatus, message string, updatedBy *uuid.UUID, loc *geo.Point) (*models.PanicRequest, error) {
	if !status.Valid() {
		return nil, validation("invalid status %q", status)
	}
	if loc != nil && !loc.Valid() {
		return nil, validation("invalid coordinates %s", *loc)
	}
	if message == "" {
		message = "Status updated to " + string(status)
	}

	var prev models.RequestStatus
	req, err := e.mutate(ctx, id, func(tx *gorm.DB, req *models.PanicRequest) error {
		from := req.Status
		if from.Dashboard() && !status.Dashboard() {
			// leaving a dashboard status resumes the lifecycle where it was
			from = req.EscalatedFrom
			if from == "" {
				from = models.StatusPending
			}
		}
		if !models.CanTransition(from, status) {
			return invalidState("cannot move request from %s to %s", req.Status, status)
		}
		switch {
		case status == models.StatusHandled && req.ServiceType != models.ServiceCall:
			return validation("only call requests can be handled, request is %s", req.ServiceType)
		case status == models.StatusHandled:
			return validation("call requests are closed through handle-call")
		case status == models.StatusAssigned && !req.Assigned():
			return validation("request has no team or service provider to be assigned to")
		}
		prev = req.Status
		return e.transition(tx, req, status, message, updatedBy, loc)
	})
	if err != nil {
		return nil, err
	}
	e.publish(req, prev, message, loc)
	return req, nil
}

func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*models.PanicRequest, error) {
	req, err := models.GetPanicRequest(e.db.WithContext(ctx), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("request %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load request")
	}
	return req, nil
}

func (e *Engine) History(ctx context.Context, id uuid.UUID) ([]models.RequestStatusUpdate, error) {
	if _, err := e.Get(ctx, id); err != nil {
		return nil, err
	}
	rows, err := models.GetStatusHistory(e.db.WithContext(ctx), id)
	if err != nil {
		return nil, errors.Wrap(err, "load history")
	}
	return rows, nil
}

func (e *Engine) List(ctx context.Context, f models.RequestFilter) ([]models.PanicRequest, int64, error) {
	rows, total, err := models.ListPanicRequests(e.db.WithContext(ctx), f)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list requests")
	}
	return rows, total, nil
}

// mutate loads the request under a row lock and runs fn in one transaction.
// fn must only use tx.
func (e *Engine) mutate(ctx context.Context, id uuid.UUID, fn func(tx *gorm.DB, req *models.PanicRequest) error) (*models.PanicRequest, error) {
	var out *models.PanicRequest
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := lockRequest(tx, id)
		if err != nil {
			return err
		}
		if err := fn(tx, req); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func lockRequest(tx *gorm.DB, id uuid.UUID) (*models.PanicRequest, error) {
	q := tx
	// sqlite serializes writers itself and has no FOR UPDATE
	if tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var req models.PanicRequest
	err := q.First(&req, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("request %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load request")
	}
	return &req, nil
}

// transition sets the status, stamps first-reach timestamps, saves the row
// and appends one audit entry.
func (e *Engine) transition(tx *gorm.DB, req *models.PanicRequest, to models.RequestStatus, message string, by *uuid.UUID, loc *geo.Point) error {
	now := e.now()
	switch to {
	case models.StatusAccepted, models.StatusHandled:
		if req.AcceptedAt == nil {
			req.AcceptedAt = &now
		}
	case models.StatusArrived:
		if req.ArrivedAt == nil {
			req.ArrivedAt = &now
		}
	case models.StatusCompleted:
		if req.CompletedAt == nil {
			req.CompletedAt = &now
		}
	}
	switch {
	case to.Dashboard() && !req.Status.Dashboard():
		req.EscalatedFrom = req.Status
	case !to.Dashboard():
		req.EscalatedFrom = ""
	}
	if to == models.StatusPending {
		req.AssignedTeamID = nil
		req.AssignedServiceProviderID = nil
	}
	req.Status = to
	req.UpdatedAt = now

	err := tx.Model(req).Select(
		"status", "escalated_from", "accepted_at", "arrived_at", "completed_at",
		"assigned_team_id", "assigned_service_provider_id", "updated_at",
	).Updates(req).Error
	if err != nil {
		return errors.Wrap(err, "update request")
	}
	if err := appendAudit(tx, req.ID, to, message, by, loc); err != nil {
		return err
	}
	e.metrics.ObserveTransition(string(to))
	return nil
}

func appendAudit(tx *gorm.DB, requestID uuid.UUID, status models.RequestStatus, message string, by *uuid.UUID, loc *geo.Point) error {
	row := models.RequestStatusUpdate{
		RequestID:   requestID,
		Status:      status,
		Message:     message,
		UpdatedByID: by,
	}
	if loc != nil {
		lat, lon := loc.Lat, loc.Lon
		row.Lat, row.Lon = &lat, &lon
	}
	if err := tx.Create(&row).Error; err != nil {
		return errors.Wrap(err, "append status update")
	}
	return nil
}

func (e *Engine) publish(req *models.PanicRequest, prev models.RequestStatus, message string, loc *geo.Point) {
	ev := StatusEvent{
		Request:  *req,
		Previous: prev,
		Status:   req.Status,
		Message:  message,
		Location: loc,
		At:       e.now(),
	}
	job := func() {
		e.runSideEffect("publish", ev.Request.ID, func(ctx context.Context) error {
			return e.publisher.PublishStatus(ctx, ev)
		})
	}
	if e.syncSideEffects {
		job()
		return
	}
	e.pubMu.Lock()
	e.pubQueue = append(e.pubQueue, job)
	if !e.pubRunning {
		e.pubRunning = true
		e.wg.Add(1)
		go e.drainPublishes()
	}
	e.pubMu.Unlock()
}

func (e *Engine) drainPublishes() {
	defer e.wg.Done()
	for {
		e.pubMu.Lock()
		if len(e.pubQueue) == 0 {
			e.pubRunning = false
			e.pubMu.Unlock()
			return
		}
		job := e.pubQueue[0]
		e.pubQueue[0] = nil
		e.pubQueue = e.pubQueue[1:]
		e.pubMu.Unlock()
		job()
	}
}

// sideEffect runs fn after the caller's transaction has committed. Errors
// and panics are logged and counted, never returned.
func (e *Engine) sideEffect(kind string, requestID uuid.UUID, fn func(ctx context.Context) error) {
	if e.syncSideEffects {
		e.runSideEffect(kind, requestID, fn)
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runSideEffect(kind, requestID, fn)
	}()
}

func (e *Engine) runSideEffect(kind string, requestID uuid.UUID, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.sideEffectTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("side effect panicked",
				zap.String("kind", kind),
				zap.String("request_id", requestID.String()),
				zap.Any("panic", r))
			e.metrics.ObserveSideEffectFailure(kind)
		}
	}()
	if err := fn(ctx); err != nil {
		logger.Warn("side effect failed",
			zap.String("kind", kind),
			zap.String("request_id", requestID.String()),
			zap.Error(err))
		e.metrics.ObserveSideEffectFailure(kind)
	}
}

func recipientOf(u *models.User) notification.Recipient {
	return notification.Recipient{
		Name:      u.DisplayName,
		Phone:     u.Phone,
		Email:     u.Email,
		PushToken: u.PushToken,
		Language:  u.Language,
	}
}
