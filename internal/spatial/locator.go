// Package spatial answers the coverage and proximity questions the
// dispatch flow asks of the database.
package spatial

import (
	"context"

	"Guardline/internal/geo"
	"Guardline/internal/models"

	"github.com/google/uuid"
)

// TeamDistance is a candidate team and the distance from the request point
// to the centroid of the team's coverage area.
type TeamDistance struct {
	TeamID     uuid.UUID `json:"teamId"`
	TeamName   string    `json:"teamName"`
	FirmID     uuid.UUID `json:"firmId"`
	DistanceKm float64   `json:"distanceKm"`
}

type Locator interface {
	// Covers reports whether any active coverage area of the firm contains p.
	Covers(ctx context.Context, firmID uuid.UUID, p geo.Point) (bool, error)
	// FirmsCovering lists active, verified firms with an active area
	// containing p, ordered by name.
	FirmsCovering(ctx context.Context, p geo.Point, limit int) ([]models.SecurityFirm, error)
	// NearestTeam returns the closest active team with an active coverage
	// area, ties broken by team id. It returns nil when no team qualifies.
	NearestTeam(ctx context.Context, p geo.Point, firmID *uuid.UUID) (*TeamDistance, error)
}
