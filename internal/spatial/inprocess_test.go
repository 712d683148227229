package spatial

import (
	"context"
	"testing"

	"Guardline/internal/geo"
	"Guardline/internal/models"
	"Guardline/pkg/util"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const kmPerDegLat = 111.2

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := util.InitDatabase(util.DriverSQLite, "file::memory:", false)
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func square(center geo.Point, halfDeg float64) geo.Polygon {
	return geo.NewPolygon(
		geo.Point{Lat: center.Lat - halfDeg, Lon: center.Lon - halfDeg},
		geo.Point{Lat: center.Lat - halfDeg, Lon: center.Lon + halfDeg},
		geo.Point{Lat: center.Lat + halfDeg, Lon: center.Lon + halfDeg},
		geo.Point{Lat: center.Lat + halfDeg, Lon: center.Lon - halfDeg},
	)
}

func createFirm(t *testing.T, db *gorm.DB, name string, verified bool) *models.SecurityFirm {
	t.Helper()
	status := models.VerificationPending
	if verified {
		status = models.VerificationApproved
	}
	f := &models.SecurityFirm{Name: name, VerificationStatus: status, IsActive: true}
	require.NoError(t, db.Create(f).Error)
	return f
}

func createArea(t *testing.T, db *gorm.DB, firmID uuid.UUID, pg geo.Polygon, active bool) *models.CoverageArea {
	t.Helper()
	a := &models.CoverageArea{FirmID: firmID, Name: "area", Boundary: datatypes.NewJSONType(pg), IsActive: active}
	require.NoError(t, db.Create(a).Error)
	return a
}

func createTeam(t *testing.T, db *gorm.DB, firmID uuid.UUID, areaID *uuid.UUID, name string, active bool) *models.Team {
	t.Helper()
	tm := &models.Team{FirmID: firmID, Name: name, CoverageAreaID: areaID, IsActive: active}
	require.NoError(t, db.Create(tm).Error)
	return tm
}

var jhb = geo.Point{Lat: -26.2041, Lon: 28.0473}

func TestInProcess_Covers(t *testing.T) {
	db := openDB(t)
	loc := NewInProcess(db)
	ctx := context.Background()

	firm := createFirm(t, db, "Alpha", true)
	createArea(t, db, firm.ID, square(jhb, 0.05), true)
	inactive := createFirm(t, db, "Beta", true)
	createArea(t, db, inactive.ID, square(jhb, 0.05), false)

	ok, err := loc.Covers(ctx, firm.ID, jhb)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = loc.Covers(ctx, firm.ID, geo.Point{Lat: jhb.Lat + 1, Lon: jhb.Lon})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = loc.Covers(ctx, inactive.ID, jhb)
	require.NoError(t, err)
	assert.False(t, ok, "inactive area does not cover")
}

func TestInProcess_FirmsCovering(t *testing.T) {
	db := openDB(t)
	loc := NewInProcess(db)

	for _, name := range []string{"Delta", "Alpha", "Charlie", "Bravo"} {
		f := createFirm(t, db, name, true)
		createArea(t, db, f.ID, square(jhb, 0.05), true)
	}
	unverified := createFirm(t, db, "Aardvark", false)
	createArea(t, db, unverified.ID, square(jhb, 0.05), true)

	firms, err := loc.FirmsCovering(context.Background(), jhb, 3)
	require.NoError(t, err)
	require.Len(t, firms, 3)
	assert.Equal(t, []string{"Alpha", "Bravo", "Charlie"}, []string{firms[0].Name, firms[1].Name, firms[2].Name})

	firms, err = loc.FirmsCovering(context.Background(), geo.Point{Lat: 10, Lon: 10}, 3)
	require.NoError(t, err)
	assert.Empty(t, firms)
}

func TestInProcess_NearestTeam(t *testing.T) {
	db := openDB(t)
	loc := NewInProcess(db)
	ctx := context.Background()

	firm := createFirm(t, db, "Alpha", true)
	near := createArea(t, db, firm.ID, square(geo.Point{Lat: jhb.Lat + 2/kmPerDegLat, Lon: jhb.Lon}, 0.01), true)
	far := createArea(t, db, firm.ID, square(geo.Point{Lat: jhb.Lat + 10/kmPerDegLat, Lon: jhb.Lon}, 0.01), true)
	closed := createArea(t, db, firm.ID, square(jhb, 0.01), false)

	createTeam(t, db, firm.ID, &far.ID, "Far", true)
	nearTeam := createTeam(t, db, firm.ID, &near.ID, "Near", true)
	createTeam(t, db, firm.ID, &closed.ID, "Closed area", true)
	createTeam(t, db, firm.ID, &near.ID, "Inactive", false)
	createTeam(t, db, firm.ID, nil, "No area", true)

	td, err := loc.NearestTeam(ctx, jhb, nil)
	require.NoError(t, err)
	require.NotNil(t, td)
	assert.Equal(t, nearTeam.ID, td.TeamID)
	assert.InDelta(t, 2.0, td.DistanceKm, 0.05)

	other := uuid.New()
	td, err = loc.NearestTeam(ctx, jhb, &other)
	require.NoError(t, err)
	assert.Nil(t, td)
}

func TestInProcess_NearestTeamTieBreaksOnID(t *testing.T) {
	db := openDB(t)
	loc := NewInProcess(db)

	firm := createFirm(t, db, "Alpha", true)
	area := createArea(t, db, firm.ID, square(jhb, 0.01), true)
	a := createTeam(t, db, firm.ID, &area.ID, "A", true)
	b := createTeam(t, db, firm.ID, &area.ID, "B", true)

	want := a.ID
	if b.ID.String() < a.ID.String() {
		want = b.ID
	}
	td, err := loc.NearestTeam(context.Background(), jhb, &firm.ID)
	require.NoError(t, err)
	require.NotNil(t, td)
	assert.Equal(t, want, td.TeamID)
}
