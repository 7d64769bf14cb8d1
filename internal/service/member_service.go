package service

import (
	"context"
	"errors"

	"github.com/GoPolymarket/guildgate/internal/model"
	"github.com/GoPolymarket/guildgate/internal/tenancy"
	"gorm.io/gorm"
)

var (
	ErrMemberNotFound = errors.New("member not found")
	ErrOwnerRoleFixed = errors.New("the owner role cannot be changed here")
)

// MemberService 社区成员管理，所有访问都经过 tenancy.Scope
type MemberService struct {
	db *gorm.DB
}

func NewMemberService(db *gorm.DB) *MemberService {
	return &MemberService{db: db}
}

func (s *MemberService) List(ctx context.Context, limit, offset int) ([]model.Member, error) {
	scope, err := tenancy.NewScope(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	members := make([]model.Member, 0)
	err = scope.Find(ctx, &members, tenancy.Filter{Order: "id ASC", Limit: limit, Offset: offset})
	return members, err
}

func (s *MemberService) Get(ctx context.Context, userID string) (*model.Member, error) {
	scope, err := tenancy.NewScope(ctx, s.db)
	if err != nil {
		return nil, err
	}
	var m model.Member
	err = scope.First(ctx, &m, tenancy.Filter{Where: map[string]any{"user_id": userID}})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateRole returns the member before and after the change.
func (s *MemberService) UpdateRole(ctx context.Context, userID string, role model.Role) (before, after *model.Member, err error) {
	scope, err := tenancy.NewScope(ctx, s.db)
	if err != nil {
		return nil, nil, err
	}
	err = scope.Transaction(ctx, func(tx *tenancy.Scope) error {
		var m model.Member
		err := tx.First(ctx, &m, tenancy.Filter{Where: map[string]any{"user_id": userID}})
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMemberNotFound
		}
		if err != nil {
			return err
		}
		if m.Role == model.RoleOwner || role == model.RoleOwner {
			return ErrOwnerRoleFixed
		}
		snapshot := m
		before = &snapshot

		if _, err := tx.Updates(ctx, &model.Member{}, tenancy.Filter{Where: map[string]any{"id": m.ID}},
			map[string]any{"role": role}); err != nil {
			return err
		}
		m.Role = role
		after = &m
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}
