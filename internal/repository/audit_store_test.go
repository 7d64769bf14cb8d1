package repository

import (
	"context"
	"testing"
	"time"

	"github.com/GoPolymarket/guildgate/internal/model"
	"github.com/GoPolymarket/guildgate/internal/pkg/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func auditRecord(id string, expires time.Time) *model.AuditRecord {
	return &model.AuditRecord{
		ID:           id,
		CommunityID:  "c1",
		Action:       "member.list",
		ResourceType: "Member",
		Operation:    model.OperationRead,
		Status:       model.AuditSuccess,
		RiskLevel:    model.RiskLow,
		Timestamp:    time.Now().UTC(),
		ExpiresAt:    expires,
	}
}

func TestAuditStoreInsertBatch(t *testing.T) {
	db := testdb.Open(t)
	store := NewAuditStore(db)
	ctx := context.Background()
	later := time.Now().Add(time.Hour)

	require.NoError(t, store.InsertBatch(ctx, nil))
	require.NoError(t, store.InsertBatch(ctx, []*model.AuditRecord{auditRecord("a1", later), auditRecord("a2", later)}))
	// a retried batch does not fail on ids already written
	require.NoError(t, store.InsertBatch(ctx, []*model.AuditRecord{auditRecord("a2", later), auditRecord("a3", later)}))

	var n int64
	require.NoError(t, db.Model(&model.AuditRecord{}).Count(&n).Error)
	assert.EqualValues(t, 3, n)
}

func TestAuditStoreCleanup(t *testing.T) {
	db := testdb.Open(t)
	store := NewAuditStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.InsertBatch(ctx, []*model.AuditRecord{
		auditRecord("old", now.Add(-time.Hour)),
		auditRecord("older", now.Add(-48*time.Hour)),
		auditRecord("fresh", now.Add(time.Hour)),
	}))

	removed, err := store.Cleanup(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	var ids []string
	require.NoError(t, db.Model(&model.AuditRecord{}).Pluck("id", &ids).Error)
	assert.Equal(t, []string{"fresh"}, ids)
}
