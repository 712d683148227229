package dispatch

import (
	"context"
	"fmt"

	"Guardline/internal/geo"
	"Guardline/internal/models"
	"Guardline/internal/spatial"
	"Guardline/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Assigner picks the team whose coverage area centroid is closest to the
// request and allocates the request to it.
type Assigner struct {
	e *Engine
}

func NewAssigner(e *Engine) *Assigner {
	return &Assigner{e: e}
}

// FindNearestTeam returns nil when no active team has an active coverage area.
func (a *Assigner) FindNearestTeam(ctx context.Context, p geo.Point, firmID *uuid.UUID) (*spatial.TeamDistance, error) {
	if !p.Valid() {
		return nil, validation("invalid coordinates %s", p)
	}
	td, err := a.e.locator.NearestTeam(ctx, p, firmID)
	if err != nil {
		return nil, errors.Wrap(err, "nearest team lookup")
	}
	return td, nil
}

// AssignToNearestTeam allocates an unassigned pending request to the nearest
// team. When maxDistanceKm is set and the nearest team is farther away the
// request is left untouched.
func (a *Assigner) AssignToNearestTeam(ctx context.Context, requestID, assigner uuid.UUID, maxDistanceKm *float64) (*models.PanicRequest, *spatial.TeamDistance, error) {
	req, err := a.e.Get(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if err := assignable(req); err != nil {
		return nil, nil, err
	}

	nearest, err := a.FindNearestTeam(ctx, geo.Point{Lat: req.Lat, Lon: req.Lon}, nil)
	if err != nil {
		return nil, nil, err
	}
	if nearest == nil {
		return nil, nil, notFound("no active team with an active coverage area")
	}
	a.e.metrics.ObserveNearestDistance(nearest.DistanceKm)
	if maxDistanceKm != nil && nearest.DistanceKm > *maxDistanceKm {
		return nil, nearest, validation("nearest team %s is %.2f km away, beyond the %.2f km limit",
			nearest.TeamName, nearest.DistanceKm, *maxDistanceKm)
	}

	msg := fmt.Sprintf("Auto-assigned to nearest team %s (%.2f km)", nearest.TeamName, nearest.DistanceKm)
	req, err = a.e.mutate(ctx, requestID, func(tx *gorm.DB, req *models.PanicRequest) error {
		// state may have moved since the lookup
		if err := assignable(req); err != nil {
			return err
		}
		t, err := activeTeam(tx, nearest.TeamID)
		if err != nil {
			return err
		}
		req.AssignedTeamID = &t.ID
		return a.e.transition(tx, req, models.StatusAssigned, msg, &assigner, nil)
	})
	if err != nil {
		return nil, nil, err
	}
	a.e.notifyTeam(req, nearest.TeamID)
	a.e.publish(req, models.StatusPending, msg, nil)
	return req, nearest, nil
}

func assignable(req *models.PanicRequest) error {
	if req.Assigned() || req.Status != models.StatusPending {
		return invalidState("request is already assigned or not pending (status %s)", req.Status)
	}
	if req.ServiceType == models.ServiceCall {
		return validation("call requests must be handled directly and cannot be allocated to a team")
	}
	return nil
}
