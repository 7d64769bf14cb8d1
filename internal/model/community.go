package model

import (
	"time"

	"gorm.io/gorm"
)

// SubscriptionStatus 社区订阅状态
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionInactive SubscriptionStatus = "inactive"
)

// IsActive reports whether the community may serve authenticated traffic.
func (s SubscriptionStatus) IsActive() bool {
	return s == SubscriptionActive || s == SubscriptionTrialing
}

// Community 代表一个租户 (独立的客户组织)
type Community struct {
	ID                 string             `gorm:"primaryKey;size:64" json:"id"`
	Name               string             `gorm:"size:255" json:"name"`
	ExternalGuildID    string             `gorm:"size:64;index" json:"external_guild_id"`
	SubscriptionStatus SubscriptionStatus `gorm:"size:32;default:active" json:"subscription_status"`
	SubscriptionTier   string             `gorm:"size:32;default:free" json:"subscription_tier"`
	RateQPS            float64            `json:"rate_qps"`   // 0 = 使用全局默认
	RateBurst          int                `json:"rate_burst"` // 0 = 使用全局默认
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
	DeletedAt          gorm.DeletedAt     `gorm:"index" json:"deleted_at,omitempty"`
}

func (Community) TableName() string { return "communities" }

// Role 社区内成员角色
type Role string

const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

func (r Role) IsAdmin() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Member 社区成员，所有查询必须带 community_id
type Member struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CommunityID string    `gorm:"size:64;not null;uniqueIndex:idx_member_community_user" json:"community_id"`
	UserID      string    `gorm:"size:64;not null;uniqueIndex:idx_member_community_user" json:"user_id"`
	Username    string    `gorm:"size:255" json:"username"`
	Role        Role      `gorm:"size:32;default:member" json:"role"`
	Permissions []string  `gorm:"serializer:json" json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Member) TableName() string { return "members" }

func (m *Member) GetCommunityID() string   { return m.CommunityID }
func (m *Member) SetCommunityID(id string) { m.CommunityID = id }

// HasPermission owners and admins implicitly hold every permission.
func (m *Member) HasPermission(name string) bool {
	if m.Role.IsAdmin() {
		return true
	}
	for _, p := range m.Permissions {
		if p == name {
			return true
		}
	}
	return false
}
