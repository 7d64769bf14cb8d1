package tenancy

import (
	"context"
	"errors"

	"github.com/GoPolymarket/guildgate/internal/model"
	"gorm.io/gorm"
)

// Guard answers role and permission questions about the acting user. The
// member lookup always goes through a Scope, so it never leaves the caller's
// community.
type Guard struct {
	db *gorm.DB
}

func NewGuard(db *gorm.DB) *Guard {
	return &Guard{db: db}
}

// Member returns the caller's membership in the current community, or nil
// when the caller is not a member.
func (g *Guard) Member(ctx context.Context) (*model.Member, error) {
	tc, err := Current(ctx)
	if err != nil {
		return nil, violation(ReasonMissingContext, "", "", "members")
	}
	scope, err := NewScope(ctx, g.db)
	if err != nil {
		return nil, err
	}
	var m model.Member
	err = scope.First(ctx, &m, Filter{Where: map[string]any{"user_id": tc.UserID}})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (g *Guard) RequirePermission(ctx context.Context, name string) error {
	m, err := g.Member(ctx)
	if err != nil {
		return err
	}
	return CheckPermission(ctx, m, name)
}

func (g *Guard) RequireAdmin(ctx context.Context) error {
	m, err := g.Member(ctx)
	if err != nil {
		return err
	}
	return CheckAdmin(ctx, m)
}

func (g *Guard) RequireOwner(ctx context.Context) error {
	m, err := g.Member(ctx)
	if err != nil {
		return err
	}
	return CheckOwner(ctx, m)
}

// CheckPermission decides on a member already loaded by Member. A nil member
// holds no permissions.
func CheckPermission(ctx context.Context, m *model.Member, name string) error {
	if m == nil || !m.HasPermission(name) {
		tc, _ := Current(ctx)
		return violation(ReasonPermission, tc.CommunityID, "", name)
	}
	return nil
}

func CheckAdmin(ctx context.Context, m *model.Member) error {
	if m == nil || !m.Role.IsAdmin() {
		tc, _ := Current(ctx)
		return violation(ReasonAdminRequired, tc.CommunityID, "", "role")
	}
	return nil
}

func CheckOwner(ctx context.Context, m *model.Member) error {
	if m == nil || m.Role != model.RoleOwner {
		tc, _ := Current(ctx)
		return violation(ReasonOwnerRequired, tc.CommunityID, "", "role")
	}
	return nil
}
