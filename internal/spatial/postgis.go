package spatial

import (
	"context"

	"Guardline/internal/geo"
	"Guardline/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PostGIS pushes containment and distance into the database. Boundaries are
// stored as GeoJSON in jsonb and converted per query.
type PostGIS struct {
	db *gorm.DB
}

func NewPostGIS(db *gorm.DB) *PostGIS {
	return &PostGIS{db: db}
}

const (
	boundaryGeom = "ST_SetSRID(ST_GeomFromGeoJSON(ca.boundary::text), 4326)"
	pointGeom    = "ST_SetSRID(ST_MakePoint(?, ?), 4326)"
)

func (l *PostGIS) Covers(ctx context.Context, firmID uuid.UUID, p geo.Point) (bool, error) {
	var covered bool
	err := l.db.WithContext(ctx).Raw(`
		SELECT EXISTS (
			SELECT 1 FROM coverage_areas ca
			WHERE ca.firm_id = ? AND ca.is_active
			  AND ST_Contains(`+boundaryGeom+`, `+pointGeom+`)
		)`, firmID, p.Lon, p.Lat).Scan(&covered).Error
	return covered, err
}

func (l *PostGIS) FirmsCovering(ctx context.Context, p geo.Point, limit int) ([]models.SecurityFirm, error) {
	if limit <= 0 {
		limit = 100
	}
	var firms []models.SecurityFirm
	err := l.db.WithContext(ctx).Raw(`
		SELECT f.* FROM security_firms f
		WHERE f.is_active AND f.verification_status = ?
		  AND EXISTS (
			SELECT 1 FROM coverage_areas ca
			WHERE ca.firm_id = f.id AND ca.is_active
			  AND ST_Contains(`+boundaryGeom+`, `+pointGeom+`)
		  )
		ORDER BY f.name ASC
		LIMIT ?`, models.VerificationApproved, p.Lon, p.Lat, limit).Scan(&firms).Error
	return firms, err
}

// NearestTeam measures on the geography type so distances agree with the
// haversine figures of the in-process locator.
func (l *PostGIS) NearestTeam(ctx context.Context, p geo.Point, firmID *uuid.UUID) (*TeamDistance, error) {
	sql := `
		SELECT t.id AS team_id, t.name AS team_name, t.firm_id AS firm_id,
		       ST_Distance(ST_Centroid(` + boundaryGeom + `)::geography, ` + pointGeom + `::geography) / 1000 AS distance_km
		FROM teams t
		JOIN coverage_areas ca ON ca.id = t.coverage_area_id
		WHERE t.is_active AND ca.is_active`
	args := []any{p.Lon, p.Lat}
	if firmID != nil {
		sql += ` AND t.firm_id = ?`
		args = append(args, *firmID)
	}
	sql += ` ORDER BY distance_km ASC, t.id ASC LIMIT 1`

	var rows []TeamDistance
	if err := l.db.WithContext(ctx).Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
