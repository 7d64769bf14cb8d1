package model

import (
	"time"
)

type Operation string

const (
	OperationCreate  Operation = "CREATE"
	OperationRead    Operation = "READ"
	OperationUpdate  Operation = "UPDATE"
	OperationDelete  Operation = "DELETE"
	OperationExecute Operation = "EXECUTE"
)

type AuditStatus string

const (
	AuditSuccess AuditStatus = "success"
	AuditFailure AuditStatus = "failure"
	AuditBlocked AuditStatus = "blocked"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// rank orders risk levels so callers can take the max of two.
func (r RiskLevel) rank() int {
	switch r {
	case RiskCritical:
		return 3
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// AtLeast returns the higher of r and floor.
func (r RiskLevel) AtLeast(floor RiskLevel) RiskLevel {
	if floor.rank() > r.rank() {
		return floor
	}
	return r
}

// AuditRecord 代表一次敏感操作的审计记录 (写入后不再修改)
type AuditRecord struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	RequestID    string    `gorm:"size:64;index" json:"request_id"`
	CommunityID  string    `gorm:"size:64;index:idx_audit_community_ts,priority:1" json:"community_id"`
	UserID       string    `gorm:"size:64;index" json:"user_id"`
	UserRole     string    `gorm:"size:32" json:"user_role"`
	Username     string    `gorm:"size:255" json:"username"`
	Action       string    `gorm:"size:128;index" json:"action" validate:"required,max=128"`
	ResourceType string    `gorm:"size:64" json:"resource_type" validate:"required,max=64"`
	ResourceID   string    `gorm:"size:128" json:"resource_id"`
	Operation    Operation `gorm:"size:16" json:"operation" validate:"required,oneof=CREATE READ UPDATE DELETE EXECUTE"`

	// 结果
	Status     AuditStatus `gorm:"size:16;index" json:"status" validate:"required,oneof=success failure blocked"`
	StatusCode int         `json:"status_code"`

	// 客户端
	IPAddress  string `gorm:"size:64" json:"ip_address"`
	UserAgent  string `gorm:"size:512" json:"user_agent"`
	Endpoint   string `gorm:"size:512" json:"endpoint"`
	HTTPMethod string `gorm:"size:16" json:"http_method"`

	// 变更快照 (脱敏后的 JSON)
	DataBefore string `gorm:"type:text" json:"data_before,omitempty"`
	DataAfter  string `gorm:"type:text" json:"data_after,omitempty"`

	RiskLevel      RiskLevel `gorm:"size:16;index" json:"risk_level" validate:"required,oneof=low medium high critical"`
	RequiresReview bool      `json:"requires_review"`
	DurationMs     int64     `json:"duration_ms"`
	Timestamp      time.Time `gorm:"index:idx_audit_community_ts,priority:2" json:"timestamp" validate:"required"`
	ExpiresAt      time.Time `gorm:"index" json:"expires_at"`
}

func (AuditRecord) TableName() string { return "audit_records" }

func (a *AuditRecord) GetCommunityID() string   { return a.CommunityID }
func (a *AuditRecord) SetCommunityID(id string) { a.CommunityID = id }
