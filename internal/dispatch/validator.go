package dispatch

import (
	"context"
	"strings"

	"Guardline/internal/geo"
	"Guardline/internal/models"
	"Guardline/internal/spatial"
	"Guardline/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxAlternativeFirms bounds the firms suggested when a location is not covered.
const MaxAlternativeFirms = 3

// Validator checks the group's subscription and that the request point
// lies inside the subscribed firm's coverage.
type Validator struct {
	db      *gorm.DB
	locator spatial.Locator
	now     Clock
}

func NewValidator(db *gorm.DB, locator spatial.Locator, now Clock) *Validator {
	if now == nil {
		now = SystemClock
	}
	return &Validator{db: db, locator: locator, now: now}
}

// ValidateSubscription returns the group with Subscription.Product.Firm loaded.
func (v *Validator) ValidateSubscription(ctx context.Context, groupID uuid.UUID) (*models.UserGroup, error) {
	var group models.UserGroup
	err := v.db.WithContext(ctx).
		Preload("Subscription.Product.Firm").
		First(&group, "id = ?", groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("group %s not found", groupID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load group")
	}

	if group.SubscriptionID == nil || group.Subscription == nil {
		return nil, errors.WithCode(CodeSubscriptionExpired, "group has no subscription")
	}
	if !group.Subscription.IsCurrent(v.now()) {
		return nil, errors.WithCodef(CodeSubscriptionExpired,
			"subscription %s is inactive or expired", group.Subscription.ID)
	}
	if group.Subscription.Product == nil {
		return nil, errors.WithCode(CodeSubscriptionExpired, "subscription has no product")
	}
	return &group, nil
}

func (v *Validator) ValidateCoverage(ctx context.Context, group *models.UserGroup, p geo.Point) error {
	firmID := group.Subscription.Product.FirmID

	covered, err := v.locator.Covers(ctx, firmID, p)
	if err != nil {
		return errors.Wrap(err, "coverage lookup")
	}
	if covered {
		return nil
	}

	msg := "location is not covered by your security provider"
	firmName := ""
	if f := group.Subscription.Product.Firm; f != nil {
		firmName = f.Name
		msg = "location is not covered by " + f.Name
	}

	firms, err := v.locator.FirmsCovering(ctx, p, MaxAlternativeFirms+1)
	if err != nil {
		// the suggestion list is a courtesy
		firms = nil
	}
	var names []string
	for _, f := range firms {
		if f.ID == firmID || len(names) == MaxAlternativeFirms {
			continue
		}
		names = append(names, f.Name)
	}

	e := errors.WithCode(CodeLocationNotCovered, msg)
	if len(names) > 0 {
		e = errors.WithCode(CodeLocationNotCovered, msg+"; firms covering this location: "+strings.Join(names, ", "))
		e = e.WithContext("alternatives", strings.Join(names, ","))
	}
	if firmName != "" {
		e = e.WithContext("firm", firmName)
	}
	return e
}
