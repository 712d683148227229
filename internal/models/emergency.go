package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PanicRequest 紧急求助请求
type PanicRequest struct {
	Base
	Phone       string        `json:"phone" gorm:"size:32;index:idx_panic_dup"`
	GroupID     uuid.UUID     `json:"groupId" gorm:"type:varchar(36);index"`
	Group       *UserGroup    `json:"group,omitempty"`
	ServiceType ServiceType   `json:"serviceType" gorm:"size:16;index:idx_panic_dup"`
	Lat         float64       `json:"lat"`
	Lon         float64       `json:"lon"`
	Address     string        `json:"address" gorm:"size:512"`
	Description string        `json:"description" gorm:"size:2048"`
	Status      RequestStatus `json:"status" gorm:"size:16;index"`
	// EscalatedFrom 进入控制台状态前的生命周期状态，离开时只能回到这里继续
	EscalatedFrom RequestStatus `json:"escalatedFrom,omitempty" gorm:"size:16"`

	AcceptedAt  *time.Time `json:"acceptedAt,omitempty"`
	ArrivedAt   *time.Time `json:"arrivedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	AssignedTeamID            *uuid.UUID `json:"assignedTeamId,omitempty" gorm:"type:varchar(36);index"`
	AssignedServiceProviderID *uuid.UUID `json:"assignedServiceProviderId,omitempty" gorm:"type:varchar(36);index"`
}

// Assigned reports whether a team or provider currently holds the request.
func (r *PanicRequest) Assigned() bool {
	return r.AssignedTeamID != nil || r.AssignedServiceProviderID != nil
}

// RequestStatusUpdate 状态变更/位置上报的审计记录，只追加
type RequestStatusUpdate struct {
	Base
	RequestID   uuid.UUID     `json:"requestId" gorm:"type:varchar(36);index"`
	Status      RequestStatus `json:"status" gorm:"size:16"`
	Message     string        `json:"message,omitempty" gorm:"size:1024"`
	Lat         *float64      `json:"lat,omitempty"`
	Lon         *float64      `json:"lon,omitempty"`
	UpdatedByID *uuid.UUID    `json:"updatedById,omitempty" gorm:"type:varchar(36)"`
}

// RequestFeedback 完成后由现场人员填写
type RequestFeedback struct {
	Base
	RequestID     uuid.UUID `json:"requestId" gorm:"type:varchar(36);uniqueIndex"`
	PerformedByID uuid.UUID `json:"performedById" gorm:"type:varchar(36)"`
	IsPrank       bool      `json:"isPrank"`
	Rating        *int      `json:"rating,omitempty"`
	Comments      string    `json:"comments,omitempty" gorm:"size:2048"`
}

// SilentModeSession 设备静音会话
type SilentModeSession struct {
	Base
	UserID        uuid.UUID  `json:"userId" gorm:"type:varchar(36);index"`
	RequestID     uuid.UUID  `json:"requestId" gorm:"type:varchar(36);index"`
	ExpiresAt     time.Time  `json:"expiresAt" gorm:"index"`
	Active        bool       `json:"active" gorm:"index"`
	DeactivatedAt *time.Time `json:"deactivatedAt,omitempty"`
}

// GetPanicRequest loads a request by id; gorm.ErrRecordNotFound when absent.
func GetPanicRequest(db *gorm.DB, id uuid.UUID) (*PanicRequest, error) {
	var req PanicRequest
	if err := db.First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// GetStatusHistory returns the audit trail of a request, oldest first.
func GetStatusHistory(db *gorm.DB, requestID uuid.UUID) ([]RequestStatusUpdate, error) {
	var rows []RequestStatusUpdate
	err := db.Where("request_id = ?", requestID).Order("created_at ASC").Order("id ASC").Find(&rows).Error
	return rows, err
}

type RequestFilter struct {
	Status         []RequestStatus
	ServiceType    ServiceType
	GroupID        *uuid.UUID
	AssignedTeamID *uuid.UUID
	Phone          string
	Since          *time.Time
	Offset         int
	Limit          int
}

// ListPanicRequests pages through requests newest first.
func ListPanicRequests(db *gorm.DB, f RequestFilter) ([]PanicRequest, int64, error) {
	q := db.Model(&PanicRequest{})
	if len(f.Status) > 0 {
		q = q.Where("status IN ?", f.Status)
	}
	if f.ServiceType != "" {
		q = q.Where("service_type = ?", f.ServiceType)
	}
	if f.GroupID != nil {
		q = q.Where("group_id = ?", *f.GroupID)
	}
	if f.AssignedTeamID != nil {
		q = q.Where("assigned_team_id = ?", *f.AssignedTeamID)
	}
	if f.Phone != "" {
		q = q.Where("phone = ?", f.Phone)
	}
	if f.Since != nil {
		q = q.Where("created_at >= ?", *f.Since)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []PanicRequest
	err := q.Order("created_at DESC, id").Offset(f.Offset).Limit(limit).Find(&rows).Error
	return rows, total, err
}
