package dispatch

import (
	"context"
	"fmt"

	"Guardline/internal/geo"
	"Guardline/internal/models"
	"Guardline/pkg/errors"
	"Guardline/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// teamAgent loads the active personnel record agentID and checks that it
// belongs to the request's assigned team.
func teamAgent(tx *gorm.DB, req *models.PanicRequest, agentID uuid.UUID) (*models.FirmPersonnel, error) {
	var agent models.FirmPersonnel
	err := tx.Where("id = ? AND is_active = ?", agentID, true).First(&agent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("agent %s not found or inactive", agentID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load agent")
	}
	if req.AssignedTeamID == nil || agent.TeamID == nil || *agent.TeamID != *req.AssignedTeamID {
		return nil, invalidState("agent %s is not part of the assigned team", agentID)
	}
	return &agent, nil
}

func (e *Engine) Accept(ctx context.Context, requestID, agentID uuid.UUID, etaMinutes *int) (*models.PanicRequest, error) {
	if etaMinutes != nil && *etaMinutes < 0 {
		return nil, validation("eta must not be negative")
	}
	msg := "Accepted by field agent"
	if etaMinutes != nil {
		msg = fmt.Sprintf("Accepted by field agent, ETA %d minutes", *etaMinutes)
	}
	req, err := e.mutate(ctx, requestID, func(tx *gorm.DB, req *models.PanicRequest) error {
		if req.Status != models.StatusAssigned {
			return invalidState("request is %s, not assigned", req.Status)
		}
		agent, err := teamAgent(tx, req, agentID)
		if err != nil {
			return err
		}
		return e.transition(tx, req, models.StatusAccepted, msg, &agent.UserID, nil)
	})
	if err != nil {
		return nil, err
	}
	e.publish(req, models.StatusAssigned, msg, nil)
	return req, nil
}

// Reject returns the request to pending and clears the team so it can be
// allocated again.
func (e *Engine) Reject(ctx context.Context, requestID, agentID uuid.UUID, reason string) (*models.PanicRequest, error) {
	msg := "Rejected by field agent"
	if reason != "" {
		msg += ": " + reason
	}
	req, err := e.mutate(ctx, requestID, func(tx *gorm.DB, req *models.PanicRequest) error {
		if req.Status != models.StatusAssigned {
			return invalidState("request is %s, not assigned", req.Status)
		}
		agent, err := teamAgent(tx, req, agentID)
		if err != nil {
			return err
		}
		req.AssignedTeamID = nil
		return e.transition(tx, req, models.StatusPending, msg, &agent.UserID, nil)
	})
	if err != nil {
		return nil, err
	}
	e.publish(req, models.StatusAssigned, msg, nil)
	return req, nil
}

// UpdateAgentLocation records the agent's position. An accepted request is
// promoted to en_route by the first update.
func (e *Engine) UpdateAgentLocation(ctx context.Context, requestID, agentID uuid.UUID, lat, lon float64, message string) (*models.PanicRequest, error) {
	p := geo.Point{Lat: lat, Lon: lon}
	if !p.Valid() {
		return nil, validation("invalid coordinates %s", p)
	}
	if message == "" {
		message = "Agent location updated"
	}
	var prev models.RequestStatus
	req, err := e.mutate(ctx, requestID, func(tx *gorm.DB, req *models.PanicRequest) error {
		if !models.StatusIn(req.Status, models.StatusAccepted, models.StatusEnRoute) {
			return invalidState("request is %s, expected accepted or en_route", req.Status)
		}
		agent, err := teamAgent(tx, req, agentID)
		if err != nil {
			return err
		}
		prev = req.Status
		if req.Status == models.StatusAccepted {
			return e.transition(tx, req, models.StatusEnRoute, message, &agent.UserID, &p)
		}
		return appendAudit(tx, req.ID, req.Status, message, &agent.UserID, &p)
	})
	if err != nil {
		return nil, err
	}
	e.publish(req, prev, message, &p)
	return req, nil
}

func (e *Engine) MarkArrived(ctx context.Context, requestID, agentID uuid.UUID, notes string) (*models.PanicRequest, error) {
	msg := "Field agent arrived"
	if notes != "" {
		msg += ": " + notes
	}
	var prev models.RequestStatus
	req, err := e.mutate(ctx, requestID, func(tx *gorm.DB, req *models.PanicRequest) error {
		if !models.StatusIn(req.Status, models.StatusAccepted, models.StatusEnRoute) {
			return invalidState("request is %s, expected accepted or en_route", req.Status)
		}
		agent, err := teamAgent(tx, req, agentID)
		if err != nil {
			return err
		}
		prev = req.Status
		return e.transition(tx, req, models.StatusArrived, msg, &agent.UserID, nil)
	})
	if err != nil {
		return nil, err
	}
	e.publish(req, prev, msg, nil)
	return req, nil
}

type CompleteInput struct {
	RequestID uuid.UUID `json:"requestId"`
	AgentID   uuid.UUID `json:"agentId"`
	IsPrank   bool      `json:"isPrank"`
	Rating    *int      `json:"rating,omitempty"`
	Notes     string    `json:"notes,omitempty"`
}

// CompleteWithFeedback closes the request and stores the agent's feedback.
// A prank report counts against the group's owner.
func (e *Engine) CompleteWithFeedback(ctx context.Context, in CompleteInput) (*models.PanicRequest, error) {
	if in.Rating != nil && (*in.Rating < 1 || *in.Rating > 5) {
		return nil, validation("rating must be between 1 and 5, got %d", *in.Rating)
	}
	msg := "Completed"
	if in.IsPrank {
		msg = "Completed, reported as prank"
	}
	if in.Notes != "" {
		msg += ": " + in.Notes
	}

	var prev models.RequestStatus
	req, err := e.mutate(ctx, in.RequestID, func(tx *gorm.DB, req *models.PanicRequest) error {
		if !models.StatusIn(req.Status, models.StatusArrived, models.StatusEnRoute, models.StatusAccepted) {
			return invalidState("request is %s, expected arrived, en_route or accepted", req.Status)
		}
		agent, err := teamAgent(tx, req, in.AgentID)
		if err != nil {
			return err
		}
		prev = req.Status
		if err := e.transition(tx, req, models.StatusCompleted, msg, &agent.UserID, nil); err != nil {
			return err
		}
		fb := models.RequestFeedback{
			RequestID:     req.ID,
			PerformedByID: agent.UserID,
			IsPrank:       in.IsPrank,
			Rating:        in.Rating,
			Comments:      in.Notes,
		}
		if err := tx.Create(&fb).Error; err != nil {
			return errors.Wrap(err, "create feedback")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if in.IsPrank {
		if err := e.recordPrank(ctx, req.GroupID); err != nil {
			logger.Warn("prank count not updated",
				zap.String("request_id", req.ID.String()),
				zap.String("group_id", req.GroupID.String()),
				zap.Error(err))
		}
	}
	e.publish(req, prev, msg, nil)
	return req, nil
}

// recordPrank increments the prank counter of the group's owner.
func (e *Engine) recordPrank(ctx context.Context, groupID uuid.UUID) error {
	db := e.db.WithContext(ctx)
	var owner models.GroupMembership
	err := db.Where("group_id = ? AND role = ?", groupID, models.GroupRoleOwner).First(&owner).Error
	if err != nil {
		return errors.Wrap(err, "find group owner")
	}
	res := db.Model(&models.User{}).Where("id = ?", owner.UserID).
		UpdateColumn("prank_count", gorm.Expr("prank_count + ?", 1))
	if res.Error != nil {
		return errors.Wrap(res.Error, "increment prank count")
	}
	if res.RowsAffected == 0 {
		return errors.Errorf("owner %s not found", owner.UserID)
	}
	return nil
}
