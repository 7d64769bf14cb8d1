// Package testdb opens throwaway sqlite databases for package tests.
package testdb

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GoPolymarket/guildgate/internal/model"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var seq atomic.Int64

// Open returns an in-memory database with every table migrated. One
// connection only: sqlite in-memory databases are per connection unless
// shared, and a single writer keeps transactions serialised.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:guildgate_test_%d?mode=memory&cache=shared", seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormLogger.Default.LogMode(gormLogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.Community{},
		&model.Member{},
		&model.Credential{},
		&model.AuditRecord{},
		&model.LedgerEntry{},
		&model.ChainHead{},
	))
	return db
}

// SeedCommunity inserts an active community.
func SeedCommunity(t testing.TB, db *gorm.DB, id string) *model.Community {
	t.Helper()
	c := &model.Community{
		ID:                 id,
		Name:               "Community " + id,
		SubscriptionStatus: model.SubscriptionActive,
		SubscriptionTier:   "pro",
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

// SeedMember inserts a member directly, bypassing tenant scoping.
func SeedMember(t testing.TB, db *gorm.DB, communityID, userID string, role model.Role, perms ...string) *model.Member {
	t.Helper()
	m := &model.Member{
		CommunityID: communityID,
		UserID:      userID,
		Username:    userID,
		Role:        role,
		Permissions: perms,
	}
	require.NoError(t, db.Create(m).Error)
	return m
}
