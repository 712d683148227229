package models

import (
	"time"

	"Guardline/internal/geo"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	VerificationPending  = "pending"
	VerificationApproved = "approved"
	VerificationRejected = "rejected"
)

type SecurityFirm struct {
	Base
	Name               string `json:"name" gorm:"size:255;index"`
	Email              string `json:"email" gorm:"size:128"`
	ContactPhone       string `json:"contactPhone" gorm:"size:32"`
	VerificationStatus string `json:"verificationStatus" gorm:"size:16;default:pending"`
	IsActive           bool   `json:"isActive"`
}

type SubscriptionProduct struct {
	Base
	FirmID   uuid.UUID     `json:"firmId" gorm:"type:varchar(36);index"`
	Firm     *SecurityFirm `json:"firm,omitempty"`
	Name     string        `json:"name" gorm:"size:128"`
	IsActive bool          `json:"isActive"`
}

type Subscription struct {
	Base
	ProductID uuid.UUID            `json:"productId" gorm:"type:varchar(36);index"`
	Product   *SubscriptionProduct `json:"product,omitempty"`
	IsActive  bool                 `json:"isActive"`
	ExpiresAt time.Time            `json:"expiresAt"`
}

// IsCurrent 订阅处于激活状态且未过期
func (s *Subscription) IsCurrent(now time.Time) bool {
	return s != nil && s.IsActive && s.ExpiresAt.After(now)
}

// CoverageArea 安保公司声明的服务区域（GeoJSON 多边形）
type CoverageArea struct {
	Base
	FirmID   uuid.UUID                      `json:"firmId" gorm:"type:varchar(36);index"`
	Name     string                         `json:"name" gorm:"size:128"`
	Boundary datatypes.JSONType[geo.Polygon] `json:"boundary"`
	IsActive bool                           `json:"isActive"`
}

type Team struct {
	Base
	FirmID         uuid.UUID     `json:"firmId" gorm:"type:varchar(36);index"`
	Name           string        `json:"name" gorm:"size:128"`
	CoverageAreaID *uuid.UUID    `json:"coverageAreaId,omitempty" gorm:"type:varchar(36)"`
	CoverageArea   *CoverageArea `json:"coverageArea,omitempty"`
	TeamLeaderID   *uuid.UUID    `json:"teamLeaderId,omitempty" gorm:"type:varchar(36)"`
	IsActive       bool          `json:"isActive"`
}

type PersonnelRole string

const (
	RoleFieldAgent  PersonnelRole = "field_agent"
	RoleTeamLeader  PersonnelRole = "team_leader"
	RoleOfficeStaff PersonnelRole = "office_staff"
	RoleFirmAdmin   PersonnelRole = "firm_admin"
)

type FirmPersonnel struct {
	Base
	FirmID   uuid.UUID     `json:"firmId" gorm:"type:varchar(36);index"`
	UserID   uuid.UUID     `json:"userId" gorm:"type:varchar(36);index"`
	User     *User         `json:"user,omitempty"`
	Role     PersonnelRole `json:"role" gorm:"size:16"`
	TeamID   *uuid.UUID    `json:"teamId,omitempty" gorm:"type:varchar(36);index"`
	IsActive bool          `json:"isActive"`
}

func (FirmPersonnel) TableName() string { return "firm_personnel" }

// ServiceProvider 外部服务商（救护、消防、拖车）
type ServiceProvider struct {
	Base
	FirmID      uuid.UUID   `json:"firmId" gorm:"type:varchar(36);index"`
	Name        string      `json:"name" gorm:"size:255"`
	ServiceType ServiceType `json:"serviceType" gorm:"size:16"`
	Email       string      `json:"email" gorm:"size:128"`
	Phone       string      `json:"phone" gorm:"size:32"`
	Lat         float64     `json:"lat"`
	Lon         float64     `json:"lon"`
	IsActive    bool        `json:"isActive"`
}
