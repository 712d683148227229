// Package seed creates a minimal, consistent data set: one verified firm
// with a square coverage area, a subscribed family group, a response team
// with a field agent, and an ambulance provider.
package seed

import (
	"context"
	"time"

	"Guardline/internal/geo"
	"Guardline/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Options struct {
	Center     geo.Point
	HalfDeg    float64
	OwnerPhone string
	AgentPhone string
	ExpiresAt  time.Time
}

func DefaultOptions() Options {
	return Options{
		Center:     geo.Point{Lat: -26.2041, Lon: 28.0473},
		HalfDeg:    0.05,
		OwnerPhone: "+27820000001",
		AgentPhone: "+27820000100",
		ExpiresAt:  time.Now().UTC().AddDate(1, 0, 0),
	}
}

type Demo struct {
	Firm         models.SecurityFirm
	Area         models.CoverageArea
	Product      models.SubscriptionProduct
	Subscription models.Subscription
	Owner        models.User
	Group        models.UserGroup
	Team         models.Team
	AgentUser    models.User
	Agent        models.FirmPersonnel
	Provider     models.ServiceProvider
}

// Square returns the axis-aligned square of half-width halfDeg around c.
func Square(c geo.Point, halfDeg float64) geo.Polygon {
	return geo.NewPolygon(
		geo.Point{Lat: c.Lat - halfDeg, Lon: c.Lon - halfDeg},
		geo.Point{Lat: c.Lat - halfDeg, Lon: c.Lon + halfDeg},
		geo.Point{Lat: c.Lat + halfDeg, Lon: c.Lon + halfDeg},
		geo.Point{Lat: c.Lat + halfDeg, Lon: c.Lon - halfDeg},
	)
}

func Run(ctx context.Context, db *gorm.DB, opts Options) (*Demo, error) {
	d := &Demo{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d.Firm = models.SecurityFirm{Name: "Guardline Demo Security", Email: "ops@demo.example",
			VerificationStatus: models.VerificationApproved, IsActive: true}
		if err := tx.Create(&d.Firm).Error; err != nil {
			return err
		}
		d.Area = models.CoverageArea{FirmID: d.Firm.ID, Name: "Central",
			Boundary: datatypes.NewJSONType(Square(opts.Center, opts.HalfDeg)), IsActive: true}
		if err := tx.Create(&d.Area).Error; err != nil {
			return err
		}
		d.Product = models.SubscriptionProduct{FirmID: d.Firm.ID, Name: "Family", IsActive: true}
		if err := tx.Create(&d.Product).Error; err != nil {
			return err
		}
		d.Subscription = models.Subscription{ProductID: d.Product.ID, IsActive: true, ExpiresAt: opts.ExpiresAt}
		if err := tx.Create(&d.Subscription).Error; err != nil {
			return err
		}

		d.Owner = models.User{Phone: opts.OwnerPhone, DisplayName: "Demo Owner"}
		if err := tx.Create(&d.Owner).Error; err != nil {
			return err
		}
		d.Group = models.UserGroup{UserID: d.Owner.ID, Name: "Home", Lat: opts.Center.Lat, Lon: opts.Center.Lon,
			SubscriptionID: &d.Subscription.ID}
		if err := tx.Create(&d.Group).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.GroupMembership{GroupID: d.Group.ID, UserID: d.Owner.ID, Role: models.GroupRoleOwner}).Error; err != nil {
			return err
		}

		d.Team = models.Team{FirmID: d.Firm.ID, Name: "Response One", CoverageAreaID: &d.Area.ID, IsActive: true}
		if err := tx.Create(&d.Team).Error; err != nil {
			return err
		}
		d.AgentUser = models.User{Phone: opts.AgentPhone, DisplayName: "Demo Agent"}
		if err := tx.Create(&d.AgentUser).Error; err != nil {
			return err
		}
		d.Agent = models.FirmPersonnel{FirmID: d.Firm.ID, UserID: d.AgentUser.ID, Role: models.RoleFieldAgent,
			TeamID: &d.Team.ID, IsActive: true}
		if err := tx.Create(&d.Agent).Error; err != nil {
			return err
		}
		d.Provider = models.ServiceProvider{FirmID: d.Firm.ID, Name: "Demo Ambulance", ServiceType: models.ServiceAmbulance,
			Phone: "+27110000000", Lat: opts.Center.Lat, Lon: opts.Center.Lon, IsActive: true}
		return tx.Create(&d.Provider).Error
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}
