package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base 所有实体共用的主键与时间戳
type Base struct {
	ID        uuid.UUID `json:"id" gorm:"type:varchar(36);primaryKey"`
	CreatedAt time.Time `json:"createdAt" gorm:"index"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

var models = []any{
	&User{},
	&UserGroup{},
	&GroupMembership{},
	&GroupMobileNumber{},
	&SecurityFirm{},
	&SubscriptionProduct{},
	&Subscription{},
	&CoverageArea{},
	&Team{},
	&FirmPersonnel{},
	&ServiceProvider{},
	&PanicRequest{},
	&RequestStatusUpdate{},
	&RequestFeedback{},
	&SilentModeSession{},
}

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(models...)
}
