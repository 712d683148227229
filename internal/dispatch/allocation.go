package dispatch

import (
	"context"
	"fmt"

	"Guardline/internal/models"
	"Guardline/pkg/errors"
	"Guardline/pkg/notification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AllocateToTeam hands a pending request to one of a firm's teams.
func (e *Engine) AllocateToTeam(ctx context.Context, requestID, teamID, allocator uuid.UUID) (*models.PanicRequest, error) {
	var team *models.Team
	req, err := e.mutate(ctx, requestID, func(tx *gorm.DB, req *models.PanicRequest) error {
		if req.Status != models.StatusPending {
			return invalidState("request is %s, not pending", req.Status)
		}
		if req.ServiceType == models.ServiceCall {
			return validation("call requests must be handled directly and cannot be allocated to a team")
		}
		t, err := activeTeam(tx, teamID)
		if err != nil {
			return err
		}
		team = t
		req.AssignedTeamID = &t.ID
		req.AssignedServiceProviderID = nil
		return e.transition(tx, req, models.StatusAssigned, "Allocated to team "+t.Name, &allocator, nil)
	})
	if err != nil {
		return nil, err
	}
	e.notifyTeam(req, team.ID)
	e.publish(req, models.StatusPending, "Allocated to team "+team.Name, nil)
	return req, nil
}

// AllocateToServiceProvider hands a pending request to an external provider.
func (e *Engine) AllocateToServiceProvider(ctx context.Context, requestID, providerID, allocator uuid.UUID) (*models.PanicRequest, error) {
	var provider *models.ServiceProvider
	req, err := e.mutate(ctx, requestID, func(tx *gorm.DB, req *models.PanicRequest) error {
		if req.Status != models.StatusPending {
			return invalidState("request is %s, not pending", req.Status)
		}
		sp, err := activeProvider(tx, providerID)
		if err != nil {
			return err
		}
		provider = sp
		req.AssignedServiceProviderID = &sp.ID
		req.AssignedTeamID = nil
		return e.transition(tx, req, models.StatusAssigned, "Allocated to service provider "+sp.Name, &allocator, nil)
	})
	if err != nil {
		return nil, err
	}
	e.notifyProvider(req, provider)
	e.publish(req, models.StatusPending, "Allocated to service provider "+provider.Name, nil)
	return req, nil
}

// HandleCallService closes a call-type request that was dealt with by phone.
func (e *Engine) HandleCallService(ctx context.Context, requestID, handler uuid.UUID, notes string) (*models.PanicRequest, error) {
	msg := "Call handled"
	if notes != "" {
		msg += ": " + notes
	}
	var prev models.RequestStatus
	req, err := e.mutate(ctx, requestID, func(tx *gorm.DB, req *models.PanicRequest) error {
		if req.ServiceType != models.ServiceCall {
			return validation("only call requests can be handled directly, request is %s", req.ServiceType)
		}
		if !models.StatusIn(req.Status, models.StatusPending, models.StatusAssigned) {
			return invalidState("request is %s, expected pending or assigned", req.Status)
		}
		prev = req.Status
		return e.transition(tx, req, models.StatusHandled, msg, &handler, nil)
	})
	if err != nil {
		return nil, err
	}

	phone, reqID := req.Phone, req.ID
	e.sideEffect("silent_mode", reqID, func(ctx context.Context) error {
		var user models.User
		err := e.db.WithContext(ctx).Where("phone = ?", phone).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return e.silent.Deactivate(ctx, user.ID, reqID)
	})
	e.publish(req, prev, msg, nil)
	return req, nil
}

type ReassignInput struct {
	RequestID            uuid.UUID  `json:"requestId"`
	NewTeamID            *uuid.UUID `json:"newTeamId,omitempty"`
	NewServiceProviderID *uuid.UUID `json:"newServiceProviderId,omitempty"`
	ReassignedBy         uuid.UUID  `json:"reassignedBy"`
	Reason               string     `json:"reason,omitempty"`
}

// Reassign moves an assigned or accepted request to exactly one new
// assignee. The status returns to assigned.
func (e *Engine) Reassign(ctx context.Context, in ReassignInput) (*models.PanicRequest, error) {
	if (in.NewTeamID == nil) == (in.NewServiceProviderID == nil) {
		return nil, validation("exactly one of team or service provider must be given")
	}

	var (
		prev     models.RequestStatus
		msg      string
		provider *models.ServiceProvider
	)
	req, err := e.mutate(ctx, in.RequestID, func(tx *gorm.DB, req *models.PanicRequest) error {
		if !models.StatusIn(req.Status, models.StatusAssigned, models.StatusAccepted) {
			return invalidState("request is %s, expected assigned or accepted", req.Status)
		}
		prev = req.Status
		req.AssignedTeamID = nil
		req.AssignedServiceProviderID = nil

		if in.NewTeamID != nil {
			if req.ServiceType == models.ServiceCall {
				return validation("call requests cannot be assigned to a team")
			}
			t, err := activeTeam(tx, *in.NewTeamID)
			if err != nil {
				return err
			}
			req.AssignedTeamID = &t.ID
			msg = "Reassigned to team " + t.Name
		} else {
			sp, err := activeProvider(tx, *in.NewServiceProviderID)
			if err != nil {
				return err
			}
			provider = sp
			req.AssignedServiceProviderID = &sp.ID
			msg = "Reassigned to service provider " + sp.Name
		}
		if in.Reason != "" {
			msg += ": " + in.Reason
		}
		return e.transition(tx, req, models.StatusAssigned, msg, &in.ReassignedBy, nil)
	})
	if err != nil {
		return nil, err
	}

	if provider != nil {
		e.notifyProvider(req, provider)
	} else {
		e.notifyTeam(req, *req.AssignedTeamID)
	}
	e.publish(req, prev, msg, nil)
	return req, nil
}

func activeTeam(tx *gorm.DB, id uuid.UUID) (*models.Team, error) {
	var t models.Team
	err := tx.Where("id = ? AND is_active = ?", id, true).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("team %s not found or inactive", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load team")
	}
	return &t, nil
}

func activeProvider(tx *gorm.DB, id uuid.UUID) (*models.ServiceProvider, error) {
	var sp models.ServiceProvider
	err := tx.Where("id = ? AND is_active = ?", id, true).First(&sp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("service provider %s not found or inactive", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load service provider")
	}
	return &sp, nil
}

// notifyTeam alerts the active field agents and leaders of the team.
func (e *Engine) notifyTeam(req *models.PanicRequest, teamID uuid.UUID) {
	snapshot := *req
	e.sideEffect("agent_assignment", req.ID, func(ctx context.Context) error {
		var staff []models.FirmPersonnel
		err := e.db.WithContext(ctx).Preload("User").
			Where("team_id = ? AND is_active = ? AND role IN ?", teamID, true,
				[]models.PersonnelRole{models.RoleFieldAgent, models.RoleTeamLeader}).
			Find(&staff).Error
		if err != nil {
			return err
		}
		to := make([]notification.Recipient, 0, len(staff))
		for _, p := range staff {
			if p.User != nil {
				to = append(to, recipientOf(p.User))
			}
		}
		if len(to) == 0 {
			return fmt.Errorf("team %s has no reachable agents", teamID)
		}
		_, err = e.notifier.SendAgentAssignment(ctx, to, &snapshot)
		return err
	})
}

func (e *Engine) notifyProvider(req *models.PanicRequest, sp *models.ServiceProvider) {
	snapshot := *req
	to := notification.Recipient{Name: sp.Name, Phone: sp.Phone, Email: sp.Email}
	e.sideEffect("provider_assignment", req.ID, func(ctx context.Context) error {
		_, err := e.notifier.SendProviderAssignment(ctx, to, &snapshot)
		return err
	})
}
