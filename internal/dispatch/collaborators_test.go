package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"Guardline/internal/models"
	"Guardline/pkg/i18n"
	"Guardline/pkg/notification"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePush struct {
	mu   sync.Mutex
	msgs map[string][]notification.Message
}

func (p *fakePush) Send(_ context.Context, token string, msg notification.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.msgs == nil {
		p.msgs = map[string][]notification.Message{}
	}
	p.msgs[token] = append(p.msgs[token], msg)
	return nil
}

type fakeSMS struct {
	bodies []string
	err    error
}

func (s *fakeSMS) Send(_ context.Context, phone, body string) error {
	s.bodies = append(s.bodies, phone+": "+body)
	return s.err
}

func TestDBSilentMode_Lifecycle(t *testing.T) {
	f := newFixture(t)
	push := &fakePush{}
	sm := NewDBSilentMode(f.db, notification.NewDispatcher(notification.NewPush(push), nil, nil), f.clock.Now)
	ctx := context.Background()
	reqID := uuid.New()

	require.NoError(t, sm.Activate(ctx, f.owner.ID, reqID, 30*time.Minute))
	active, err := sm.Active(ctx, f.owner.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.True(t, active[0].ExpiresAt.Equal(f.clock.Now().Add(30*time.Minute)))

	require.Len(t, push.msgs["tok-owner"], 1)
	data := push.msgs["tok-owner"][0].Data
	assert.Equal(t, "activate", data["action"])
	assert.Equal(t, "1800", data["duration_seconds"])
	assert.Equal(t, reqID.String(), data["request_id"])

	require.NoError(t, sm.Deactivate(ctx, f.owner.ID, reqID))
	active, err = sm.Active(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.Empty(t, active)
	require.Len(t, push.msgs["tok-owner"], 2)
	assert.Equal(t, "deactivate", push.msgs["tok-owner"][1].Data["action"])

	// nothing left to deactivate, nothing pushed
	require.NoError(t, sm.Deactivate(ctx, f.owner.ID, reqID))
	assert.Len(t, push.msgs["tok-owner"], 2)
}

func TestDBSilentMode_SweepExpired(t *testing.T) {
	f := newFixture(t)
	sm := NewDBSilentMode(f.db, nil, f.clock.Now)
	ctx := context.Background()

	require.NoError(t, sm.Activate(ctx, f.owner.ID, uuid.New(), 10*time.Minute))
	require.NoError(t, sm.Activate(ctx, f.owner.ID, uuid.New(), time.Hour))

	n, err := sm.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(15 * time.Minute)
	n, err = sm.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var open int64
	require.NoError(t, f.db.Model(&models.SilentModeSession{}).Where("active = ?", true).Count(&open).Error)
	assert.Equal(t, int64(1), open)
}

func TestEngine_WithDBSilentMode(t *testing.T) {
	f := newFixture(t)
	sm := NewDBSilentMode(f.db, nil, f.clock.Now)
	e := NewEngine(f.db, f.cache, f.engine.locator, WithSilentMode(sm), WithClock(f.clock.Now), WithSyncSideEffects())
	ctx := context.Background()

	req, err := e.Submit(ctx, f.input("call", jhb))
	require.NoError(t, err)
	active, err := sm.Active(ctx, f.owner.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, req.ID, active[0].RequestID)

	_, err = e.HandleCallService(ctx, req.ID, f.owner.ID, "")
	require.NoError(t, err)
	active, err = sm.Active(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestDispatchNotifier(t *testing.T) {
	push := &fakePush{}
	sms := &fakeSMS{}
	n := NewDispatchNotifier(notification.NewDispatcher(notification.NewPush(push), notification.NewSMS(sms), nil), nil)
	req := &models.PanicRequest{
		Base:        models.Base{ID: uuid.New()},
		ServiceType: models.ServiceAmbulance,
		Status:      models.StatusAssigned,
		Address:     "5 Oak Ave",
	}
	ctx := context.Background()

	res, err := n.SendEmergencyConfirmation(ctx, notification.Recipient{Phone: "+2711", PushToken: "tok"}, req)
	require.NoError(t, err)
	assert.Len(t, res.Channels, 2)
	assert.Equal(t, "emergency_confirmation", push.msgs["tok"][0].Data["type"])

	res, err = n.SendProviderAssignment(ctx, notification.Recipient{Phone: "+2712"}, req)
	require.NoError(t, err)
	assert.True(t, res.Delivered())
	assert.Contains(t, sms.bodies[1], "5 Oak Ave")

	_, err = n.SendProviderAssignment(ctx, notification.Recipient{}, req)
	assert.Error(t, err)

	sms.err = errors.New("carrier rejected")
	res, err = n.SendAgentAssignment(ctx, []notification.Recipient{{Phone: "+2713"}, {PushToken: "tok2"}}, req)
	require.Error(t, err)
	assert.True(t, res.Delivered(), "push still went out")
	assert.Len(t, res.Channels, 2)
}

func TestDispatchNotifierLanguage(t *testing.T) {
	sms := &fakeSMS{}
	tr, err := i18n.New(i18n.DefaultLanguage)
	require.NoError(t, err)
	n := NewDispatchNotifier(notification.NewDispatcher(nil, notification.NewSMS(sms), nil), tr)
	req := &models.PanicRequest{Base: models.Base{ID: uuid.New()}, ServiceType: models.ServiceSecurity}

	_, err = n.SendAgentAssignment(context.Background(), []notification.Recipient{
		{Phone: "+2714", Language: "af"},
		{Phone: "+2715"},
	}, req)
	require.NoError(t, err)
	require.Len(t, sms.bodies, 2)
	assert.Contains(t, sms.bodies[0], "'n onbekende adres")
	assert.Contains(t, sms.bodies[1], "an unspecified address")
}

func TestErrorMapping(t *testing.T) {
	assert.Equal(t, 429, HTTPStatus(ErrRateLimited))
	assert.Equal(t, 422, HTTPStatus(ErrLocationNotCovered))
	assert.Equal(t, 402, HTTPStatus(ErrSubscriptionExpired))
	assert.Equal(t, 409, HTTPStatus(invalidState("x")))
	assert.Equal(t, 500, HTTPStatus(errors.New("boom")))
	assert.Equal(t, "duplicate_request", Key(ErrDuplicateRequest))
	assert.Equal(t, "internal", Key(errors.New("boom")))
}
