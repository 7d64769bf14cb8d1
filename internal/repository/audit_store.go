package repository

import (
	"context"
	"time"

	"github.com/GoPolymarket/guildgate/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AuditStore persists audit records. Reads go through tenancy.Scope; this
// type only appends and expires.
type AuditStore struct {
	db *gorm.DB
}

func NewAuditStore(db *gorm.DB) *AuditStore {
	return &AuditStore{db: db}
}

func (r *AuditStore) InsertBatch(ctx context.Context, records []*model.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(records, 100).Error
}

// Cleanup deletes records whose retention window has passed.
func (r *AuditStore) Cleanup(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", now.UTC()).Delete(&model.AuditRecord{})
	return res.RowsAffected, res.Error
}
