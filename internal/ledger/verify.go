package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/GoPolymarket/guildgate/internal/model"
	"github.com/GoPolymarket/guildgate/internal/pkg/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	ReasonHashMismatch = "hash mismatch"
	ReasonChainBroken  = "chain broken"
)

const verifyBatchSize = 500

// VerifyFilter selects the chains and time window to verify. An empty ChainID
// verifies every chain.
type VerifyFilter struct {
	ChainID string
	From    *time.Time
	To      *time.Time
}

type VerifyResult struct {
	Valid    bool   `json:"valid"`
	BrokenAt *int   `json:"brokenAt"`
	ChainID  string `json:"chainId,omitempty"`
	EntryID  string `json:"entryId,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Message  string `json:"message"`
	Checked  int    `json:"checked"`
}

// IntegrityError describes the first altered or missing link found.
type IntegrityError struct {
	ChainID string
	EntryID string
	Index   int
	Reason  string
	Detail  string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("ledger integrity: %s at index %d of chain %s (entry %s): %s", e.Reason, e.Index, e.ChainID, e.EntryID, e.Detail)
}

// Err returns the integrity failure as an error, or nil for a valid result.
func (r *VerifyResult) Err() error {
	if r == nil || r.Valid || r.BrokenAt == nil {
		return nil
	}
	return &IntegrityError{ChainID: r.ChainID, EntryID: r.EntryID, Index: *r.BrokenAt, Reason: r.Reason, Detail: r.Message}
}

// VerifyIntegrity walks the selected chains in sequence order. At each entry
// it first checks the link to the previous entry ("chain broken"), then the
// entry's own hash ("hash mismatch"), and stops at the first failure. Without
// a To bound the last entry must also match the chain head, which catches a
// truncated tail. The returned error is reserved for storage failures.
func (l *Ledger) VerifyIntegrity(ctx context.Context, f VerifyFilter) (*VerifyResult, error) {
	ctx, span := l.tracer.Start(ctx, "Ledger.VerifyIntegrity", trace.WithAttributes(
		attribute.String("ledger.chain_id", f.ChainID),
	))
	defer span.End()

	chains := []string{f.ChainID}
	if f.ChainID == "" {
		var err error
		if chains, err = l.listChains(ctx); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	checked := 0
	for _, chainID := range chains {
		res, err := l.verifyChain(ctx, chainID, f, &checked)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if res != nil {
			res.Checked = checked
			metrics.LedgerVerifications.WithLabelValues("broken").Inc()
			span.SetAttributes(attribute.String("ledger.broken_reason", res.Reason))
			return res, nil
		}
	}

	metrics.LedgerVerifications.WithLabelValues("valid").Inc()
	return &VerifyResult{
		Valid:   true,
		ChainID: f.ChainID,
		Message: fmt.Sprintf("verified %d entries", checked),
		Checked: checked,
	}, nil
}

// listChains returns every chain id known to either the entries or the chain
// heads, so a chain whose entries were all removed is still verified.
func (l *Ledger) listChains(ctx context.Context) ([]string, error) {
	var fromEntries, fromHeads []string
	db := l.db.WithContext(ctx)
	if err := db.Model(&model.LedgerEntry{}).Distinct("chain_id").Pluck("chain_id", &fromEntries).Error; err != nil {
		return nil, fmt.Errorf("ledger: list chains: %w", err)
	}
	if err := db.Model(&model.ChainHead{}).Pluck("chain_id", &fromHeads).Error; err != nil {
		return nil, fmt.Errorf("ledger: list chain heads: %w", err)
	}
	seen := make(map[string]struct{}, len(fromEntries)+len(fromHeads))
	chains := make([]string, 0, len(fromEntries)+len(fromHeads))
	for _, id := range append(fromEntries, fromHeads...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		chains = append(chains, id)
	}
	sort.Strings(chains)
	return chains, nil
}

// verifyChain returns a non-nil result only on an integrity failure.
//
// The chain head is read before the walk and bounds it, so appends racing
// with verification are not mistaken for a truncated tail.
func (l *Ledger) verifyChain(ctx context.Context, chainID string, f VerifyFilter, checked *int) (*VerifyResult, error) {
	var (
		prev    *model.LedgerEntry
		index   int
		lastSeq int64 = -1
	)
	windowed := f.From != nil

	var head model.ChainHead
	hasHead := true
	if err := l.db.WithContext(ctx).Where("chain_id = ?", chainID).Take(&head).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("ledger: read chain head %s: %w", chainID, err)
		}
		hasHead = false
	}

	for {
		q := l.db.WithContext(ctx).Where("chain_id = ? AND sequence > ?", chainID, lastSeq)
		if hasHead {
			q = q.Where("sequence <= ?", head.Sequence)
		}
		if f.From != nil {
			q = q.Where(clause.Gte{Column: "timestamp", Value: *f.From})
		}
		if f.To != nil {
			q = q.Where(clause.Lte{Column: "timestamp", Value: *f.To})
		}
		var batch []model.LedgerEntry
		if err := q.Order("sequence ASC").Limit(verifyBatchSize).Find(&batch).Error; err != nil {
			return nil, fmt.Errorf("ledger: read chain %s: %w", chainID, err)
		}

		for i := range batch {
			e := &batch[i]
			if msg := checkLink(prev, e, windowed); msg != "" {
				return broken(chainID, e, index, ReasonChainBroken, msg), nil
			}
			if got := ComputeHash(e); got != e.CurrentHash {
				return broken(chainID, e, index, ReasonHashMismatch,
					fmt.Sprintf("stored hash %s does not match recomputed %s", e.CurrentHash, got)), nil
			}
			prev = e
			lastSeq = e.Sequence
			index++
			*checked++
		}

		if len(batch) < verifyBatchSize {
			break
		}
	}

	// 只有未设置 To 时才能确认链尾没有被截断
	if !hasHead || f.To != nil || (prev == nil && windowed) {
		return nil, nil
	}
	if msg := checkTail(prev, &head); msg != "" {
		at := index
		res := &VerifyResult{
			Valid:    false,
			BrokenAt: &at,
			ChainID:  chainID,
			Reason:   ReasonChainBroken,
			Message:  msg,
		}
		if prev != nil {
			res.EntryID = prev.ID
		}
		return res, nil
	}
	return nil, nil
}

// checkTail compares the last walked entry with the recorded chain head.
func checkTail(last *model.LedgerEntry, head *model.ChainHead) string {
	if last == nil {
		return fmt.Sprintf("chain head is at sequence %d but no entries were found", head.Sequence)
	}
	if last.Sequence != head.Sequence {
		return fmt.Sprintf("chain ends at sequence %d but the head records sequence %d, later entries are missing", last.Sequence, head.Sequence)
	}
	if last.CurrentHash != head.LastHash {
		return fmt.Sprintf("last entry hash %s does not match chain head hash %s", last.CurrentHash, head.LastHash)
	}
	return ""
}

// checkLink validates e against the entry walked before it. For the first
// entry of a time window there is no predecessor to compare with.
func checkLink(prev, e *model.LedgerEntry, windowed bool) string {
	if prev == nil {
		if e.Sequence == 0 {
			if e.PreviousHash != nil {
				return "genesis entry carries a previous hash"
			}
			return ""
		}
		if windowed {
			return ""
		}
		return fmt.Sprintf("chain starts at sequence %d, earlier entries are missing", e.Sequence)
	}
	if e.Sequence != prev.Sequence+1 {
		return fmt.Sprintf("sequence jumps from %d to %d", prev.Sequence, e.Sequence)
	}
	if e.PreviousHash == nil {
		return "previous hash missing"
	}
	if *e.PreviousHash != prev.CurrentHash {
		return fmt.Sprintf("previous hash %s does not match prior entry hash %s", *e.PreviousHash, prev.CurrentHash)
	}
	return ""
}

func broken(chainID string, e *model.LedgerEntry, index int, reason, msg string) *VerifyResult {
	at := index
	return &VerifyResult{
		Valid:    false,
		BrokenAt: &at,
		ChainID:  chainID,
		EntryID:  e.ID,
		Reason:   reason,
		Message:  msg,
	}
}
