package model

import "time"

// SystemChainID is the chain for events that belong to no community.
const SystemChainID = "__system__"

// LedgerEntry is one link of a hash chain. Rows are append-only.
type LedgerEntry struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	ChainID      string    `gorm:"size:64;not null;uniqueIndex:idx_ledger_chain_seq,priority:1" json:"chain_id"`
	Sequence     int64     `gorm:"not null;uniqueIndex:idx_ledger_chain_seq,priority:2" json:"sequence"`
	Timestamp    time.Time `gorm:"not null;index" json:"timestamp"`
	ActorID      string    `gorm:"size:64;index" json:"actor_id"`
	Action       string    `gorm:"size:128;index" json:"action"`
	ResourceType string    `gorm:"size:64" json:"resource_type"`
	ResourceID   string    `gorm:"size:128" json:"resource_id"`
	IPAddress    string    `gorm:"size:64" json:"ip_address"`
	UserAgent    string    `gorm:"size:512" json:"user_agent"`
	Status       string    `gorm:"size:16;index" json:"status"`
	ErrorMessage string    `gorm:"type:text" json:"error_message"`
	Metadata     string    `gorm:"type:text" json:"metadata"`
	PreviousHash *string   `gorm:"size:64" json:"previous_hash"`
	CurrentHash  string    `gorm:"size:64;not null" json:"current_hash"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

// ChainHead tracks the tail of each chain; appends swap it by Version.
type ChainHead struct {
	ChainID   string    `gorm:"primaryKey;size:64"`
	LastHash  string    `gorm:"size:64;not null"`
	Sequence  int64     `gorm:"not null"`
	Version   int64     `gorm:"not null"`
	UpdatedAt time.Time
}

func (ChainHead) TableName() string { return "ledger_chain_heads" }
