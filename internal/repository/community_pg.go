package repository

import (
	"context"
	"errors"

	"github.com/GoPolymarket/guildgate/internal/model"
	"gorm.io/gorm"
)

var ErrCommunityNotFound = errors.New("community not found")

// CommunityRepo reads the community directory. communities is the one table
// that is not partitioned by community_id, so it is not behind a tenancy.Scope.
type CommunityRepo struct {
	db *gorm.DB
}

func NewCommunityRepo(db *gorm.DB) *CommunityRepo {
	return &CommunityRepo{db: db}
}

// GetByID includes soft-deleted rows so callers can tell "deleted" from
// "never existed".
func (r *CommunityRepo) GetByID(ctx context.Context, id string) (*model.Community, error) {
	var c model.Community
	err := r.db.WithContext(ctx).Unscoped().Where("id = ?", id).Take(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCommunityNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *CommunityRepo) Create(ctx context.Context, c *model.Community) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *CommunityRepo) List(ctx context.Context, limit, offset int) ([]*model.Community, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	var results []*model.Community
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Offset(offset).Find(&results).Error
	return results, err
}

// SoftDelete marks the community deleted; its data stays for audit.
func (r *CommunityRepo) SoftDelete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Community{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCommunityNotFound
	}
	return nil
}
