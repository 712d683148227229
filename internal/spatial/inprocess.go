package spatial

import (
	"context"

	"Guardline/internal/geo"
	"Guardline/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InProcess loads candidate rows through gorm and evaluates the geometry in
// Go. Used with sqlite and mysql, which have no PostGIS.
type InProcess struct {
	db *gorm.DB
}

func NewInProcess(db *gorm.DB) *InProcess {
	return &InProcess{db: db}
}

func (l *InProcess) Covers(ctx context.Context, firmID uuid.UUID, p geo.Point) (bool, error) {
	var areas []models.CoverageArea
	err := l.db.WithContext(ctx).
		Where("firm_id = ? AND is_active = ?", firmID, true).
		Find(&areas).Error
	if err != nil {
		return false, err
	}
	for _, a := range areas {
		if a.Boundary.Data().Contains(p) {
			return true, nil
		}
	}
	return false, nil
}

func (l *InProcess) FirmsCovering(ctx context.Context, p geo.Point, limit int) ([]models.SecurityFirm, error) {
	var areas []models.CoverageArea
	if err := l.db.WithContext(ctx).Where("is_active = ?", true).Find(&areas).Error; err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, a := range areas {
		if !seen[a.FirmID] && a.Boundary.Data().Contains(p) {
			seen[a.FirmID] = true
			ids = append(ids, a.FirmID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	q := l.db.WithContext(ctx).
		Where("id IN ? AND is_active = ? AND verification_status = ?", ids, true, models.VerificationApproved).
		Order("name ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var firms []models.SecurityFirm
	err := q.Find(&firms).Error
	return firms, err
}

func (l *InProcess) NearestTeam(ctx context.Context, p geo.Point, firmID *uuid.UUID) (*TeamDistance, error) {
	q := l.db.WithContext(ctx).
		Preload("CoverageArea").
		Where("is_active = ? AND coverage_area_id IS NOT NULL", true)
	if firmID != nil {
		q = q.Where("firm_id = ?", *firmID)
	}
	var teams []models.Team
	if err := q.Find(&teams).Error; err != nil {
		return nil, err
	}

	var best *TeamDistance
	for _, t := range teams {
		if t.CoverageArea == nil || !t.CoverageArea.IsActive {
			continue
		}
		d := t.CoverageArea.Boundary.Data().DistanceToCentroid(p)
		if best == nil || d < best.DistanceKm || (d == best.DistanceKm && t.ID.String() < best.TeamID.String()) {
			best = &TeamDistance{TeamID: t.ID, TeamName: t.Name, FirmID: t.FirmID, DistanceKm: d}
		}
	}
	return best, nil
}
