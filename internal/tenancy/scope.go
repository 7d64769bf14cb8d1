package tenancy

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommunityColumn partitions every tenant-owned table.
const CommunityColumn = "community_id"

// Scoped is implemented by models stored in tenant-partitioned tables.
type Scoped interface {
	GetCommunityID() string
	SetCommunityID(id string)
}

// Cond is an extra predicate such as "timestamp >= ?". It may not mention
// community_id; use Filter.Where for that.
type Cond struct {
	Query string
	Args  []any
}

// Filter narrows a scoped operation. The community filter is always added.
type Filter struct {
	Where  map[string]any
	Conds  []Cond
	Order  string
	Limit  int
	Offset int
}

// Scope is the only path to tenant-partitioned tables. It can only be built
// from a context that carries a TenantContext, and every method re-checks the
// context it is called with.
type Scope struct {
	db          *gorm.DB
	communityID string
}

// NewScope binds db to the community active in ctx.
func NewScope(ctx context.Context, db *gorm.DB) (*Scope, error) {
	tc, err := Current(ctx)
	if err != nil {
		return nil, violation(ReasonMissingContext, "", "", "scope")
	}
	return &Scope{db: db, communityID: tc.CommunityID}, nil
}

func (s *Scope) CommunityID() string {
	return s.communityID
}

func (s *Scope) Find(ctx context.Context, dest any, f Filter) error {
	q, err := s.scoped(ctx, dest, f)
	if err != nil {
		return err
	}
	if f.Order != "" {
		q = q.Order(f.Order)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	return q.Find(dest).Error
}

// First returns gorm.ErrRecordNotFound when nothing in the community matches.
func (s *Scope) First(ctx context.Context, dest any, f Filter) error {
	q, err := s.scoped(ctx, dest, f)
	if err != nil {
		return err
	}
	if f.Order != "" {
		q = q.Order(f.Order)
	}
	return q.First(dest).Error
}

func (s *Scope) Count(ctx context.Context, model any, f Filter) (int64, error) {
	q, err := s.scoped(ctx, model, f)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := q.Model(model).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// Create stamps value with the scope's community. A value already carrying
// another community is rejected.
func (s *Scope) Create(ctx context.Context, value Scoped) error {
	if err := s.check(ctx, s.resource(value)); err != nil {
		return err
	}
	if got := value.GetCommunityID(); got != "" && got != s.communityID {
		return violation(ReasonCommunityMismatch, s.communityID, got, s.resource(value))
	}
	value.SetCommunityID(s.communityID)
	return s.db.WithContext(ctx).Create(value).Error
}

// Updates applies values to the matching rows of the community. Moving a row
// to another community is a violation.
func (s *Scope) Updates(ctx context.Context, model any, f Filter, values map[string]any) (int64, error) {
	if got, ok := values[CommunityColumn]; ok {
		if fmt.Sprint(got) != s.communityID {
			return 0, violation(ReasonCommunityMismatch, s.communityID, fmt.Sprint(got), s.resource(model))
		}
		// 复制一份，不修改调用方的 map
		stripped := make(map[string]any, len(values)-1)
		for k, v := range values {
			if k != CommunityColumn {
				stripped[k] = v
			}
		}
		values = stripped
	}
	q, err := s.scoped(ctx, model, f)
	if err != nil {
		return 0, err
	}
	res := q.Model(model).Updates(values)
	return res.RowsAffected, res.Error
}

func (s *Scope) Delete(ctx context.Context, model any, f Filter) (int64, error) {
	q, err := s.scoped(ctx, model, f)
	if err != nil {
		return 0, err
	}
	res := q.Delete(model)
	return res.RowsAffected, res.Error
}

// Transaction runs fn with a scope bound to the same community on one tx.
func (s *Scope) Transaction(ctx context.Context, fn func(tx *Scope) error) error {
	if err := s.check(ctx, "transaction"); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Scope{db: tx, communityID: s.communityID})
	})
}

func (s *Scope) scoped(ctx context.Context, model any, f Filter) (*gorm.DB, error) {
	resource := s.resource(model)
	if err := s.check(ctx, resource); err != nil {
		return nil, err
	}

	where := make(map[string]any, len(f.Where))
	for col, val := range f.Where {
		if strings.EqualFold(col, CommunityColumn) {
			if fmt.Sprint(val) != s.communityID {
				return nil, violation(ReasonCommunityMismatch, s.communityID, fmt.Sprint(val), resource)
			}
			continue
		}
		where[col] = val
	}

	q := s.db.WithContext(ctx).Where(clause.Eq{
		Column: clause.Column{Table: clause.CurrentTable, Name: CommunityColumn},
		Value:  s.communityID,
	})
	if len(where) > 0 {
		q = q.Where(where)
	}
	for _, c := range f.Conds {
		if strings.Contains(strings.ToLower(c.Query), CommunityColumn) {
			return nil, violation(ReasonCommunityMismatch, s.communityID, "expression", resource)
		}
		q = q.Where(c.Query, c.Args...)
	}
	return q, nil
}

// check re-reads the caller's context: it must exist and name the same
// community the scope was built for.
func (s *Scope) check(ctx context.Context, resource string) error {
	tc, err := Current(ctx)
	if err != nil {
		return violation(ReasonMissingContext, s.communityID, "", resource)
	}
	if tc.CommunityID != s.communityID {
		return violation(ReasonCommunityMismatch, s.communityID, tc.CommunityID, resource)
	}
	return nil
}

func (s *Scope) resource(model any) string {
	stmt := &gorm.Statement{DB: s.db}
	if err := stmt.Parse(model); err == nil && stmt.Schema != nil {
		return stmt.Schema.Table
	}
	return fmt.Sprintf("%T", model)
}
