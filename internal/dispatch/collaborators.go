package dispatch

import (
	"context"
	"time"

	"Guardline/internal/geo"
	"Guardline/internal/models"
	"Guardline/pkg/notification"

	"github.com/google/uuid"
)

// Notifier sends the outbound messages of the request lifecycle. Failures
// never affect the operation that triggered them.
type Notifier interface {
	SendEmergencyConfirmation(ctx context.Context, to notification.Recipient, req *models.PanicRequest) (notification.Result, error)
	SendProviderAssignment(ctx context.Context, to notification.Recipient, req *models.PanicRequest) (notification.Result, error)
	SendAgentAssignment(ctx context.Context, to []notification.Recipient, req *models.PanicRequest) (notification.Result, error)
}

// SilentMode silences the requester's device while a call-type request is
// being handled.
type SilentMode interface {
	Activate(ctx context.Context, userID, requestID uuid.UUID, d time.Duration) error
	Deactivate(ctx context.Context, userID, requestID uuid.UUID) error
}

// StatusEvent describes one committed change to a request.
type StatusEvent struct {
	Request  models.PanicRequest  `json:"request"`
	Previous models.RequestStatus `json:"previous,omitempty"`
	Status   models.RequestStatus `json:"status"`
	Message  string               `json:"message,omitempty"`
	Location *geo.Point           `json:"location,omitempty"`
	At       time.Time            `json:"at"`
}

type Publisher interface {
	PublishStatus(ctx context.Context, ev StatusEvent) error
}

type nopNotifier struct{}

func (nopNotifier) SendEmergencyConfirmation(context.Context, notification.Recipient, *models.PanicRequest) (notification.Result, error) {
	return notification.Result{}, nil
}

func (nopNotifier) SendProviderAssignment(context.Context, notification.Recipient, *models.PanicRequest) (notification.Result, error) {
	return notification.Result{}, nil
}

func (nopNotifier) SendAgentAssignment(context.Context, []notification.Recipient, *models.PanicRequest) (notification.Result, error) {
	return notification.Result{}, nil
}

type nopSilentMode struct{}

func (nopSilentMode) Activate(context.Context, uuid.UUID, uuid.UUID, time.Duration) error { return nil }
func (nopSilentMode) Deactivate(context.Context, uuid.UUID, uuid.UUID) error              { return nil }

type nopPublisher struct{}

func (nopPublisher) PublishStatus(context.Context, StatusEvent) error { return nil }

// Clock returns the current time. Engines use UTC without a monotonic reading.
type Clock func() time.Time

func SystemClock() time.Time { return time.Now().UTC().Round(0) }
