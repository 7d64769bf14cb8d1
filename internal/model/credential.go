package model

import "time"

// Credential 社区持有的第三方集成凭证，仅存储哈希和掩码
type Credential struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	CommunityID string    `gorm:"size:64;not null;index" json:"community_id"`
	Name        string    `gorm:"size:255" json:"name"`
	Provider    string    `gorm:"size:64" json:"provider"`
	SecretHash  string    `gorm:"size:128" json:"-"`
	SecretHint  string    `gorm:"size:32" json:"secret_hint"`
	CreatedBy   string    `gorm:"size:64" json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Credential) TableName() string { return "credentials" }

func (c *Credential) GetCommunityID() string   { return c.CommunityID }
func (c *Credential) SetCommunityID(id string) { c.CommunityID = id }
