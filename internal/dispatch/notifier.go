package dispatch

import (
	"context"
	"fmt"

	"Guardline/internal/models"
	"Guardline/pkg/i18n"
	"Guardline/pkg/notification"
)

// DispatchNotifier renders lifecycle messages in the recipient's language
// and sends them through every channel the recipient can be reached on.
type DispatchNotifier struct {
	d  *notification.Dispatcher
	tr *i18n.Translator
}

// NewDispatchNotifier falls back to the English translator when tr is nil.
func NewDispatchNotifier(d *notification.Dispatcher, tr *i18n.Translator) *DispatchNotifier {
	if tr == nil {
		tr = i18n.Default()
	}
	return &DispatchNotifier{d: d, tr: tr}
}

func (n *DispatchNotifier) SendEmergencyConfirmation(ctx context.Context, to notification.Recipient, req *models.PanicRequest) (notification.Result, error) {
	return n.deliver(ctx, to, n.render(to.Language, "confirmation", "emergency_confirmation", req))
}

func (n *DispatchNotifier) SendProviderAssignment(ctx context.Context, to notification.Recipient, req *models.PanicRequest) (notification.Result, error) {
	return n.deliver(ctx, to, n.render(to.Language, "provider", "provider_assignment", req))
}

func (n *DispatchNotifier) SendAgentAssignment(ctx context.Context, to []notification.Recipient, req *models.PanicRequest) (notification.Result, error) {
	var res notification.Result
	for _, r := range to {
		one, _ := n.deliver(ctx, r, n.render(r.Language, "agent", "agent_assignment", req))
		res.Merge(one)
	}
	return res, res.Err()
}

func (n *DispatchNotifier) deliver(ctx context.Context, to notification.Recipient, msg notification.Message) (notification.Result, error) {
	if to.Empty() {
		return notification.Result{}, fmt.Errorf("recipient has no phone, email or push token")
	}
	res := n.d.Deliver(ctx, to, msg)
	return res, res.Err()
}

func (n *DispatchNotifier) render(lang, prefix, kind string, req *models.PanicRequest) notification.Message {
	address := req.Address
	if address == "" {
		address = n.tr.T(lang, "address.unspecified", nil)
	}
	data := map[string]interface{}{
		"ServiceType": string(req.ServiceType),
		"ID":          req.ID.String(),
		"Address":     address,
		"Lat":         fmt.Sprintf("%.5f", req.Lat),
		"Lon":         fmt.Sprintf("%.5f", req.Lon),
	}
	return notification.Message{
		Title: n.tr.T(lang, prefix+".title", data),
		Body:  n.tr.T(lang, prefix+".body", data),
		Data:  eventData(kind, req),
	}
}

func eventData(kind string, req *models.PanicRequest) map[string]string {
	return map[string]string{
		"type":         kind,
		"request_id":   req.ID.String(),
		"service_type": string(req.ServiceType),
		"status":       string(req.Status),
	}
}
