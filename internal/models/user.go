package models

import (
	"github.com/google/uuid"
)

type User struct {
	Base
	Phone       string `json:"phone" gorm:"size:32;uniqueIndex"`
	Email       string `json:"email,omitempty" gorm:"size:128"`
	DisplayName string `json:"displayName" gorm:"size:128"`
	PushToken   string `json:"-" gorm:"size:512"`
	Language    string `json:"language,omitempty" gorm:"size:16"`
	IsLocked    bool   `json:"isLocked"`
	PrankCount  int    `json:"prankCount"`
}

// UserGroup 家庭/群组，共享一个订阅
type UserGroup struct {
	Base
	UserID         uuid.UUID     `json:"userId" gorm:"type:varchar(36);index"` // 创建者
	Name           string        `json:"name" gorm:"size:128"`
	Lat            float64       `json:"lat"`
	Lon            float64       `json:"lon"`
	SubscriptionID *uuid.UUID    `json:"subscriptionId,omitempty" gorm:"type:varchar(36)"`
	Subscription   *Subscription `json:"subscription,omitempty"`
}

const (
	GroupRoleOwner  = "owner"
	GroupRoleMember = "member"
)

type GroupMembership struct {
	Base
	GroupID uuid.UUID `json:"groupId" gorm:"type:varchar(36);uniqueIndex:idx_group_user"`
	UserID  uuid.UUID `json:"userId" gorm:"type:varchar(36);uniqueIndex:idx_group_user"`
	User    *User     `json:"user,omitempty"`
	Role    string    `json:"role" gorm:"size:16"`
}

// GroupMobileNumber 旧版按号码登记的群组成员
type GroupMobileNumber struct {
	Base
	GroupID     uuid.UUID `json:"groupId" gorm:"type:varchar(36);index"`
	PhoneNumber string    `json:"phoneNumber" gorm:"size:32;index"`
}
