package dispatch

import (
	"context"
	"testing"
	"time"

	"Guardline/internal/geo"
	"Guardline/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) assigned(st string) *models.PanicRequest {
	f.t.Helper()
	req := f.submit(st)
	req, err := f.engine.AllocateToTeam(context.Background(), req.ID, f.team.ID, f.owner.ID)
	require.NoError(f.t, err)
	return req
}

func TestUpdateStatus_AcceptedAtIsStampedOnce(t *testing.T) {
	f := newFixture(t)
	req := f.assigned("security")
	ctx := context.Background()

	first, err := f.engine.UpdateStatus(ctx, req.ID, models.StatusAccepted, "", nil, nil)
	require.NoError(t, err)
	require.NotNil(t, first.AcceptedAt)
	stamped := *first.AcceptedAt

	f.clock.Advance(5 * time.Minute)
	second, err := f.engine.UpdateStatus(ctx, req.ID, models.StatusAccepted, "again", nil, nil)
	require.NoError(t, err)
	assert.True(t, stamped.Equal(*second.AcceptedAt))
	assert.True(t, stamped.Equal(*f.reload(req.ID).AcceptedAt))
	assert.Len(t, f.history(req.ID), 4)
}

func TestUpdateStatus_Transitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit("security")

	_, err := f.engine.UpdateStatus(ctx, req.ID, models.StatusCompleted, "", nil, nil)
	assert.True(t, IsCode(err, CodeInvalidState), "pending cannot jump to completed: %v", err)

	_, err = f.engine.UpdateStatus(ctx, req.ID, "bogus", "", nil, nil)
	assert.True(t, IsCode(err, CodeValidation), "%v", err)

	_, err = f.engine.UpdateStatus(ctx, uuid.New(), models.StatusAssigned, "", nil, nil)
	assert.True(t, IsCode(err, CodeNotFound), "%v", err)

	// dashboard statuses layer on any open request
	loc := &geo.Point{Lat: jhb.Lat, Lon: jhb.Lon}
	got, err := f.engine.UpdateStatus(ctx, req.ID, models.StatusEscalated, "supervisor", &f.owner.ID, loc)
	require.NoError(t, err)
	assert.Equal(t, models.StatusEscalated, got.Status)
	rows := f.history(req.ID)
	require.Len(t, rows, 2)
	require.NotNil(t, rows[1].Lat)
	assert.InDelta(t, jhb.Lat, *rows[1].Lat, 1e-9)

	_, err = f.engine.UpdateStatus(ctx, req.ID, models.StatusPending, "", nil, nil)
	assert.NoError(t, err)
}

func TestUpdateStatus_HandledOnlyThroughCallHandling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, req := range []*models.PanicRequest{f.submit("security"), f.assigned("fire")} {
		_, err := f.engine.UpdateStatus(ctx, req.ID, models.StatusHandled, "", &f.owner.ID, nil)
		assert.True(t, IsCode(err, CodeValidation), "%s: %v", req.ServiceType, err)
		assert.NotEqual(t, models.StatusHandled, f.reload(req.ID).Status)
	}

	call := f.submit("call")
	_, err := f.engine.UpdateStatus(ctx, call.ID, models.StatusHandled, "", &f.owner.ID, nil)
	assert.True(t, IsCode(err, CodeValidation), "%v", err)
	assert.Equal(t, models.StatusPending, f.reload(call.ID).Status)
}

func TestUpdateStatus_BackToPendingReleasesAssignee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.assigned("security")

	got, err := f.engine.UpdateStatus(ctx, req.ID, models.StatusPending, "dispatcher recalled team", &f.owner.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, got.AssignedTeamID)
	assert.Nil(t, f.reload(req.ID).AssignedTeamID)

	_, err = f.engine.UpdateStatus(ctx, req.ID, models.StatusAssigned, "", &f.owner.ID, nil)
	assert.True(t, IsCode(err, CodeValidation), "assigned needs an assignee: %v", err)

	got, _, err = f.assigner.AssignToNearestTeam(ctx, req.ID, f.owner.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, got.Status)
	require.NotNil(t, got.AssignedTeamID)
	assert.Equal(t, f.team.ID, *got.AssignedTeamID)
}

func TestUpdateStatus_DashboardStatusResumesLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit("security")

	_, err := f.engine.UpdateStatus(ctx, req.ID, models.StatusEscalated, "", &f.owner.ID, nil)
	require.NoError(t, err)
	got, err := f.engine.UpdateStatus(ctx, req.ID, models.StatusAcknowledged, "", &f.owner.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.EscalatedFrom, "origin kept across dashboard statuses")

	for _, st := range []models.RequestStatus{models.StatusCompleted, models.StatusArrived, models.StatusAccepted} {
		_, err = f.engine.UpdateStatus(ctx, req.ID, st, "", &f.owner.ID, nil)
		assert.True(t, IsCode(err, CodeInvalidState), "%s: %v", st, err)
	}
	stored := f.reload(req.ID)
	assert.Nil(t, stored.CompletedAt)
	assert.Nil(t, stored.AcceptedAt)

	got, err = f.engine.UpdateStatus(ctx, req.ID, models.StatusPending, "", &f.owner.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Empty(t, f.reload(req.ID).EscalatedFrom)
}

func TestUpdateStatus_TerminalIsFinal(t *testing.T) {
	f := newFixture(t)
	req := f.submit("call")
	_, err := f.engine.HandleCallService(context.Background(), req.ID, f.owner.ID, "")
	require.NoError(t, err)

	for _, st := range []models.RequestStatus{models.StatusHandled, models.StatusPending, models.StatusEscalated} {
		_, err = f.engine.UpdateStatus(context.Background(), req.ID, st, "", nil, nil)
		assert.True(t, IsCode(err, CodeInvalidState), "%s: %v", st, err)
	}
}

func TestAllocateToTeam(t *testing.T) {
	f := newFixture(t)
	req := f.assigned("security")

	assert.Equal(t, models.StatusAssigned, req.Status)
	require.NotNil(t, req.AssignedTeamID)
	assert.Equal(t, f.team.ID, *req.AssignedTeamID)
	assert.Equal(t, []string{"confirmation", "agent"}, f.notifier.kinds())
	assert.Equal(t, "tok-agent", f.notifier.sent[1].to[0].PushToken)

	_, err := f.engine.AllocateToTeam(context.Background(), req.ID, f.team.ID, f.owner.ID)
	assert.True(t, IsCode(err, CodeInvalidState), "only pending requests: %v", err)
}

func TestAllocateToTeam_RejectsCallRequests(t *testing.T) {
	f := newFixture(t)
	req := f.submit("call")

	_, err := f.engine.AllocateToTeam(context.Background(), req.ID, f.team.ID, f.owner.ID)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeValidation), "%v", err)

	got := f.reload(req.ID)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Nil(t, got.AssignedTeamID)
	assert.Len(t, f.history(req.ID), 1)
}

func TestAllocateToTeam_InactiveTeam(t *testing.T) {
	f := newFixture(t)
	req := f.submit("security")
	require.NoError(t, f.db.Model(f.team).Update("is_active", false).Error)

	_, err := f.engine.AllocateToTeam(context.Background(), req.ID, f.team.ID, f.owner.ID)
	assert.True(t, IsCode(err, CodeNotFound), "%v", err)
	_, err = f.engine.AllocateToTeam(context.Background(), req.ID, uuid.New(), f.owner.ID)
	assert.True(t, IsCode(err, CodeNotFound), "%v", err)
}

func TestAllocateToServiceProvider(t *testing.T) {
	f := newFixture(t)
	req := f.submit("ambulance")

	got, err := f.engine.AllocateToServiceProvider(context.Background(), req.ID, f.provider.ID, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, got.Status)
	require.NotNil(t, got.AssignedServiceProviderID)
	assert.Equal(t, f.provider.ID, *got.AssignedServiceProviderID)
	assert.Nil(t, got.AssignedTeamID)

	assert.Equal(t, []string{"confirmation", "provider"}, f.notifier.kinds())
	assert.Equal(t, f.provider.Email, f.notifier.sent[1].to[0].Email)
}

func TestHandleCallService(t *testing.T) {
	f := newFixture(t)
	req := f.submit("call")
	f.clock.Advance(time.Minute)

	got, err := f.engine.HandleCallService(context.Background(), req.ID, f.owner.ID, "caller is safe")
	require.NoError(t, err)
	assert.Equal(t, models.StatusHandled, got.Status)
	require.NotNil(t, got.AcceptedAt)
	assert.Equal(t, f.clock.Now(), *got.AcceptedAt)

	require.Len(t, f.silent.calls, 2)
	assert.False(t, f.silent.calls[1].activate)
	assert.Equal(t, req.ID, f.silent.calls[1].requestID)

	rows := f.history(req.ID)
	assert.Contains(t, rows[len(rows)-1].Message, "caller is safe")
}

func TestHandleCallService_Preconditions(t *testing.T) {
	f := newFixture(t)
	sec := f.submit("security")
	_, err := f.engine.HandleCallService(context.Background(), sec.ID, f.owner.ID, "")
	assert.True(t, IsCode(err, CodeValidation), "%v", err)

	call, err := f.engine.Submit(context.Background(), f.input("call", north(jhb, 1)))
	require.NoError(t, err)
	_, err = f.engine.HandleCallService(context.Background(), call.ID, f.owner.ID, "")
	require.NoError(t, err)
	_, err = f.engine.HandleCallService(context.Background(), call.ID, f.owner.ID, "")
	assert.True(t, IsCode(err, CodeInvalidState), "%v", err)
}

func TestReassign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.assigned("security")

	_, err := f.engine.Reassign(ctx, ReassignInput{RequestID: req.ID, ReassignedBy: f.owner.ID})
	assert.True(t, IsCode(err, CodeValidation), "neither target: %v", err)
	_, err = f.engine.Reassign(ctx, ReassignInput{RequestID: req.ID, NewTeamID: &f.team.ID, NewServiceProviderID: &f.provider.ID})
	assert.True(t, IsCode(err, CodeValidation), "both targets: %v", err)

	_, err = f.engine.Accept(ctx, req.ID, f.agent.ID, nil)
	require.NoError(t, err)

	got, err := f.engine.Reassign(ctx, ReassignInput{
		RequestID:            req.ID,
		NewServiceProviderID: &f.provider.ID,
		ReassignedBy:         f.owner.ID,
		Reason:               "team stuck in traffic",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, got.Status)
	assert.Nil(t, got.AssignedTeamID)
	require.NotNil(t, got.AssignedServiceProviderID)

	rows := f.history(req.ID)
	assert.Contains(t, rows[len(rows)-1].Message, "team stuck in traffic")

	other := &models.Team{FirmID: f.firm.ID, Name: "Bravo", IsActive: true}
	f.mustCreate(other)
	got, err = f.engine.Reassign(ctx, ReassignInput{RequestID: req.ID, NewTeamID: &other.ID, ReassignedBy: f.owner.ID})
	require.NoError(t, err)
	assert.Equal(t, other.ID, *got.AssignedTeamID)
	assert.Nil(t, got.AssignedServiceProviderID)
}

func TestReassign_OnlyAssignedOrAccepted(t *testing.T) {
	f := newFixture(t)
	req := f.submit("security")
	_, err := f.engine.Reassign(context.Background(), ReassignInput{RequestID: req.ID, NewTeamID: &f.team.ID})
	assert.True(t, IsCode(err, CodeInvalidState), "%v", err)
}

func TestAccept_OnlyWhenAssigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := f.submit("security")
	_, err := f.engine.Accept(ctx, pending.ID, f.agent.ID, nil)
	assert.True(t, IsCode(err, CodeInvalidState), "pending: %v", err)

	req := f.assigned("fire")
	got, err := f.engine.Accept(ctx, req.ID, f.agent.ID, intp(7))
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, got.Status)
	require.NotNil(t, got.AcceptedAt)
	rows := f.history(req.ID)
	assert.Contains(t, rows[len(rows)-1].Message, "ETA 7 minutes")
	assert.Equal(t, f.agentUser.ID, *rows[len(rows)-1].UpdatedByID)

	_, err = f.engine.Accept(ctx, req.ID, f.agent.ID, nil)
	assert.True(t, IsCode(err, CodeInvalidState), "accepted: %v", err)

	_, err = f.engine.MarkArrived(ctx, req.ID, f.agent.ID, "")
	require.NoError(t, err)
	_, err = f.engine.CompleteWithFeedback(ctx, CompleteInput{RequestID: req.ID, AgentID: f.agent.ID})
	require.NoError(t, err)
	_, err = f.engine.Accept(ctx, req.ID, f.agent.ID, nil)
	assert.True(t, IsCode(err, CodeInvalidState), "completed: %v", err)
}

func TestAccept_AgentMustBeOnAssignedTeam(t *testing.T) {
	f := newFixture(t)
	req := f.assigned("security")

	otherTeam := &models.Team{FirmID: f.firm.ID, Name: "Bravo", IsActive: true}
	f.mustCreate(otherTeam)
	outsider := &models.FirmPersonnel{FirmID: f.firm.ID, UserID: f.owner.ID, Role: models.RoleFieldAgent, TeamID: &otherTeam.ID, IsActive: true}
	f.mustCreate(outsider)
	unassigned := &models.FirmPersonnel{FirmID: f.firm.ID, UserID: f.owner.ID, Role: models.RoleFieldAgent, IsActive: true}
	f.mustCreate(unassigned)

	for _, id := range []uuid.UUID{outsider.ID, unassigned.ID} {
		_, err := f.engine.Accept(context.Background(), req.ID, id, nil)
		assert.True(t, IsCode(err, CodeInvalidState), "%v", err)
	}
	_, err := f.engine.Accept(context.Background(), req.ID, uuid.New(), nil)
	assert.True(t, IsCode(err, CodeNotFound), "%v", err)

	assert.Equal(t, models.StatusAssigned, f.reload(req.ID).Status)
}

func TestReject_ReturnsToPendingAndClearsTeam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.assigned("security")

	got, err := f.engine.Reject(ctx, req.ID, f.agent.ID, "out of fuel")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Nil(t, got.AssignedTeamID)

	stored := f.reload(req.ID)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Nil(t, stored.AssignedTeamID)

	// eligible for allocation again
	_, err = f.engine.AllocateToTeam(ctx, req.ID, f.team.ID, f.owner.ID)
	assert.NoError(t, err)

	_, err = f.engine.Accept(ctx, req.ID, f.agent.ID, nil)
	require.NoError(t, err)
	_, err = f.engine.Reject(ctx, req.ID, f.agent.ID, "")
	assert.True(t, IsCode(err, CodeInvalidState), "%v", err)
}

func TestUpdateAgentLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.assigned("security")

	_, err := f.engine.UpdateAgentLocation(ctx, req.ID, f.agent.ID, jhb.Lat, jhb.Lon, "")
	assert.True(t, IsCode(err, CodeInvalidState), "assigned: %v", err)

	_, err = f.engine.Accept(ctx, req.ID, f.agent.ID, nil)
	require.NoError(t, err)

	p := north(jhb, 2)
	got, err := f.engine.UpdateAgentLocation(ctx, req.ID, f.agent.ID, p.Lat, p.Lon, "leaving base")
	require.NoError(t, err)
	assert.Equal(t, models.StatusEnRoute, got.Status)

	got, err = f.engine.UpdateAgentLocation(ctx, req.ID, f.agent.ID, jhb.Lat, jhb.Lon, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusEnRoute, got.Status)

	rows := f.history(req.ID)
	last := rows[len(rows)-1]
	assert.Equal(t, models.StatusEnRoute, last.Status)
	require.NotNil(t, last.Lat)
	require.NotNil(t, last.Lon)
	assert.InDelta(t, jhb.Lon, *last.Lon, 1e-9)

	ev := f.publisher.events[len(f.publisher.events)-1]
	require.NotNil(t, ev.Location)
	assert.Equal(t, models.StatusEnRoute, ev.Previous)

	_, err = f.engine.UpdateAgentLocation(ctx, req.ID, f.agent.ID, 91, 0, "")
	assert.True(t, IsCode(err, CodeValidation), "%v", err)
}

func TestCompleteWithFeedback_Rating(t *testing.T) {
	tests := []struct {
		rating *int
		ok     bool
	}{
		{rating: intp(0)},
		{rating: intp(6)},
		{rating: intp(-1)},
		{rating: intp(3), ok: true},
		{rating: intp(1), ok: true},
		{rating: intp(5), ok: true},
		{rating: nil, ok: true},
	}
	for _, tt := range tests {
		f := newFixture(t)
		req := f.assigned("security")
		_, err := f.engine.Accept(context.Background(), req.ID, f.agent.ID, nil)
		require.NoError(t, err)

		got, err := f.engine.CompleteWithFeedback(context.Background(), CompleteInput{RequestID: req.ID, AgentID: f.agent.ID, Rating: tt.rating})
		if !tt.ok {
			assert.True(t, IsCode(err, CodeValidation), "rating %d: %v", *tt.rating, err)
			assert.Equal(t, models.StatusAccepted, f.reload(req.ID).Status)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, got.Status)

		var fb models.RequestFeedback
		require.NoError(t, f.db.First(&fb, "request_id = ?", req.ID).Error)
		assert.Equal(t, tt.rating, fb.Rating)
	}
}

func TestCompleteWithFeedback_PrankCountsAgainstOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.assigned("security")
	_, err := f.engine.Accept(ctx, req.ID, f.agent.ID, nil)
	require.NoError(t, err)

	_, err = f.engine.CompleteWithFeedback(ctx, CompleteInput{RequestID: req.ID, AgentID: f.agent.ID, IsPrank: true, Notes: "nobody home"})
	require.NoError(t, err)

	var owner models.User
	require.NoError(t, f.db.First(&owner, "id = ?", f.owner.ID).Error)
	assert.Equal(t, 1, owner.PrankCount)

	var fb models.RequestFeedback
	require.NoError(t, f.db.First(&fb, "request_id = ?", req.ID).Error)
	assert.True(t, fb.IsPrank)
	assert.Equal(t, "nobody home", fb.Comments)
}

func TestCompleteWithFeedback_MissingOwnerIsNotFatal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.assigned("security")
	_, err := f.engine.Accept(ctx, req.ID, f.agent.ID, nil)
	require.NoError(t, err)
	require.NoError(t, f.db.Where("group_id = ?", f.group.ID).Delete(&models.GroupMembership{}).Error)

	got, err := f.engine.CompleteWithFeedback(ctx, CompleteInput{RequestID: req.ID, AgentID: f.agent.ID, IsPrank: true})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestHappyPath_EachStepAddsOneAuditRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.submit("security")
	require.Len(t, f.history(req.ID), 1)

	steps := []struct {
		want models.RequestStatus
		run  func() (*models.PanicRequest, error)
	}{
		{models.StatusAssigned, func() (*models.PanicRequest, error) {
			return f.engine.AllocateToTeam(ctx, req.ID, f.team.ID, f.owner.ID)
		}},
		{models.StatusAccepted, func() (*models.PanicRequest, error) {
			return f.engine.Accept(ctx, req.ID, f.agent.ID, intp(10))
		}},
		{models.StatusEnRoute, func() (*models.PanicRequest, error) {
			p := north(jhb, 1)
			return f.engine.UpdateAgentLocation(ctx, req.ID, f.agent.ID, p.Lat, p.Lon, "")
		}},
		{models.StatusArrived, func() (*models.PanicRequest, error) {
			return f.engine.MarkArrived(ctx, req.ID, f.agent.ID, "at gate")
		}},
		{models.StatusCompleted, func() (*models.PanicRequest, error) {
			return f.engine.CompleteWithFeedback(ctx, CompleteInput{RequestID: req.ID, AgentID: f.agent.ID, Rating: intp(4)})
		}},
	}
	for i, s := range steps {
		f.clock.Advance(time.Minute)
		got, err := s.run()
		require.NoError(t, err, s.want)
		assert.Equal(t, s.want, got.Status)

		rows := f.history(req.ID)
		require.Len(t, rows, i+2, s.want)
		assert.Equal(t, s.want, rows[len(rows)-1].Status)
	}

	done := f.reload(req.ID)
	require.NotNil(t, done.AcceptedAt)
	require.NotNil(t, done.ArrivedAt)
	require.NotNil(t, done.CompletedAt)
	assert.True(t, done.AcceptedAt.Before(*done.ArrivedAt))
	assert.True(t, done.ArrivedAt.Before(*done.CompletedAt))
	assert.Len(t, f.publisher.events, 6)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	f.submit("security")
	f.clock.Advance(time.Second)
	_, err := f.engine.Submit(context.Background(), f.input("fire", jhb))
	require.NoError(t, err)

	rows, total, err := f.engine.List(context.Background(), models.RequestFilter{ServiceType: models.ServiceFire})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.Equal(t, models.ServiceFire, rows[0].ServiceType)

	rows, total, err = f.engine.List(context.Background(), models.RequestFilter{Status: []models.RequestStatus{models.StatusPending}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, models.ServiceFire, rows[0].ServiceType, "newest first")
}
