package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestVerifyIntactChain(t *testing.T) {
	l, _ := newTestLedger(t)
	writeN(t, l, "c1", 5)

	res, err := l.VerifyIntegrity(context.Background(), VerifyFilter{ChainID: "c1"})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Nil(t, res.BrokenAt)
	assert.Equal(t, 5, res.Checked)
	assert.NoError(t, res.Err())
}

func TestVerifyAllChains(t *testing.T) {
	l, _ := newTestLedger(t)
	writeN(t, l, "c1", 3)
	writeN(t, l, "c2", 2)

	res, err := l.VerifyIntegrity(context.Background(), VerifyFilter{})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 5, res.Checked)
}

func TestVerifyEmptyChain(t *testing.T) {
	l, _ := newTestLedger(t)
	res, err := l.VerifyIntegrity(context.Background(), VerifyFilter{ChainID: "nothing"})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Zero(t, res.Checked)
}

// tamper runs stmt on the raw connection with the append-only triggers
// dropped first, the way an operator holding DDL rights could. The gorm
// callbacks are not on this path either.
func tamper(t *testing.T, db *gorm.DB, stmt string, args ...any) {
	t.Helper()
	sqlDB, err := db.DB()
	require.NoError(t, err)
	for _, name := range []string{triggerNoUpdate, triggerNoDelete} {
		_, err := sqlDB.Exec("DROP TRIGGER IF EXISTS " + name)
		require.NoError(t, err)
	}
	_, err = sqlDB.Exec(stmt, args...)
	require.NoError(t, err)
}

func TestVerifyDetectsAlteredField(t *testing.T) {
	l, db := newTestLedger(t)
	entries := writeN(t, l, "c1", 5)

	tamper(t, db, `UPDATE ledger_entries SET action = 'forged' WHERE id = ?`, entries[2].ID)

	res, err := l.VerifyIntegrity(context.Background(), VerifyFilter{ChainID: "c1"})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.NotNil(t, res.BrokenAt)
	assert.Equal(t, 2, *res.BrokenAt)
	assert.Equal(t, ReasonHashMismatch, res.Reason)
	assert.Equal(t, entries[2].ID, res.EntryID)

	var ie *IntegrityError
	require.True(t, errors.As(res.Err(), &ie))
	assert.Equal(t, 2, ie.Index)
}

func TestVerifyDetectsAlteredStoredHash(t *testing.T) {
	l, db := newTestLedger(t)
	entries := writeN(t, l, "c1", 5)

	tamper(t, db, `UPDATE ledger_entries SET current_hash = ? WHERE id = ?`,
		"ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff", entries[2].ID)

	res, err := l.VerifyIntegrity(context.Background(), VerifyFilter{ChainID: "c1"})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.NotNil(t, res.BrokenAt)
	assert.Equal(t, 2, *res.BrokenAt)
	assert.Equal(t, ReasonHashMismatch, res.Reason)
}

func TestVerifyDetectsAlteredPreviousHash(t *testing.T) {
	l, db := newTestLedger(t)
	entries := writeN(t, l, "c1", 5)

	tamper(t, db, `UPDATE ledger_entries SET previous_hash = ? WHERE id = ?`,
		"0000000000000000000000000000000000000000000000000000000000000000", entries[2].ID)

	res, err := l.VerifyIntegrity(context.Background(), VerifyFilter{ChainID: "c1"})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.NotNil(t, res.BrokenAt)
	assert.Equal(t, 2, *res.BrokenAt)
	assert.Equal(t, ReasonChainBroken, res.Reason)
}

func TestVerifyDetectsRemovedEntry(t *testing.T) {
	l, db := newTestLedger(t)
	entries := writeN(t, l, "c1", 5)

	tamper(t, db, `DELETE FROM ledger_entries WHERE id = ?`, entries[2].ID)

	res, err := l.VerifyIntegrity(context.Background(), VerifyFilter{ChainID: "c1"})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.NotNil(t, res.BrokenAt)
	assert.Equal(t, 2, *res.BrokenAt)
	assert.Equal(t, ReasonChainBroken, res.Reason)
	assert.Equal(t, entries[3].ID, res.EntryID)
}

func TestVerifyDetectsRemovedGenesis(t *testing.T) {
	l, db := newTestLedger(t)
	entries := writeN(t, l, "c1", 3)

	tamper(t, db, `DELETE FROM ledger_entries WHERE id = ?`, entries[0].ID)

	res, err := l.VerifyIntegrity(context.Background(), VerifyFilter{ChainID: "c1"})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, 0, *res.BrokenAt)
	assert.Equal(t, ReasonChainBroken, res.Reason)
}

func TestVerifyDetectsTruncatedTail(t *testing.T) {
	l, db := newTestLedger(t)
	entries := writeN(t, l, "c1", 3)

	tamper(t, db, `DELETE FROM ledger_entries WHERE chain_id = ? AND sequence = 2`, "c1")

	res, err := l.VerifyIntegrity(context.Background(), VerifyFilter{ChainID: "c1"})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.NotNil(t, res.BrokenAt)
	assert.Equal(t, 2, *res.BrokenAt)
	assert.Equal(t, ReasonChainBroken, res.Reason)
	assert.Equal(t, entries[1].ID, res.EntryID)
	assert.Equal(t, 2, res.Checked)

	// a To bound cannot tell a truncated tail from a window
	to := time.Now().Add(time.Hour)
	res, err = l.VerifyIntegrity(context.Background(), VerifyFilter{ChainID: "c1", To: &to})
	require.NoError(t, err)
	assert.True(t, res.Valid, res.Message)
}

func TestVerifyDetectsEmptiedChain(t *testing.T) {
	l, db := newTestLedger(t)
	writeN(t, l, "c1", 2)
	writeN(t, l, "c2", 2)

	tamper(t, db, `DELETE FROM ledger_entries WHERE chain_id = ?`, "c2")

	res, err := l.VerifyIntegrity(context.Background(), VerifyFilter{})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "c2", res.ChainID)
	require.NotNil(t, res.BrokenAt)
	assert.Equal(t, 0, *res.BrokenAt)
	assert.Equal(t, ReasonChainBroken, res.Reason)
}

func TestVerifyWindowStartsMidChain(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := start
	l, _ := newTestLedger(t, WithClock(func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}))
	writeN(t, l, "c1", 6)

	from := start.Add(3 * time.Minute)
	res, err := l.VerifyIntegrity(context.Background(), VerifyFilter{ChainID: "c1", From: &from})
	require.NoError(t, err)
	assert.True(t, res.Valid, res.Message)
	assert.Equal(t, 4, res.Checked)
}
