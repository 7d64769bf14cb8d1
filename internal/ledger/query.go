package ledger

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/GoPolymarket/guildgate/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
	exportBatchSize   = 500
)

// Filter selects ledger entries for Query, Count and ExportCSV.
type Filter struct {
	ChainID string
	ActorID string
	Action  string
	Status  string
	From    *time.Time
	To      *time.Time
	Limit   int
	Offset  int
}

// CSVHeader is the first row of every export.
var CSVHeader = []string{
	"Timestamp", "User ID", "Action", "Resource Type", "Resource ID", "Status",
	"IP Address", "User Agent", "Error Message", "Metadata", "Previous Hash", "Current Hash",
}

func (l *Ledger) filtered(ctx context.Context, f Filter) *gorm.DB {
	q := l.db.WithContext(ctx).Model(&model.LedgerEntry{})
	if f.ChainID != "" {
		q = q.Where("chain_id = ?", f.ChainID)
	}
	if f.ActorID != "" {
		q = q.Where("actor_id = ?", f.ActorID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where(clause.Gte{Column: "timestamp", Value: *f.From})
	}
	if f.To != nil {
		q = q.Where(clause.Lte{Column: "timestamp", Value: *f.To})
	}
	return q
}

// queryLimit applies the default page size and clamps oversized pages.
func queryLimit(n int) int {
	switch {
	case n <= 0:
		return defaultQueryLimit
	case n > maxQueryLimit:
		return maxQueryLimit
	}
	return n
}

// Query returns matching entries oldest first.
func (l *Ledger) Query(ctx context.Context, f Filter) ([]model.LedgerEntry, error) {
	limit := queryLimit(f.Limit)
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	var entries []model.LedgerEntry
	err := l.filtered(ctx, f).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}}).
		Order("chain_id, sequence").
		Limit(limit).Offset(offset).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("ledger: query: %w", err)
	}
	return entries, nil
}

func (l *Ledger) Count(ctx context.Context, f Filter) (int64, error) {
	var n int64
	if err := l.filtered(ctx, f).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("ledger: count: %w", err)
	}
	return n, nil
}

// ExportCSV streams every matching entry (Limit and Offset are ignored) and
// returns the number of data rows written.
func (l *Ledger) ExportCSV(ctx context.Context, w io.Writer, f Filter) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return 0, err
	}

	rows := 0
	for offset := 0; ; offset += exportBatchSize {
		var batch []model.LedgerEntry
		err := l.filtered(ctx, f).
			Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}}).
			Order("chain_id, sequence").
			Limit(exportBatchSize).Offset(offset).
			Find(&batch).Error
		if err != nil {
			return rows, fmt.Errorf("ledger: export: %w", err)
		}
		for i := range batch {
			if err := cw.Write(csvRecord(&batch[i])); err != nil {
				return rows, err
			}
			rows++
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return rows, err
		}
		if len(batch) < exportBatchSize {
			return rows, nil
		}
	}
}

func csvRecord(e *model.LedgerEntry) []string {
	prev := ""
	if e.PreviousHash != nil {
		prev = *e.PreviousHash
	}
	return []string{
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.ActorID,
		e.Action,
		e.ResourceType,
		e.ResourceID,
		e.Status,
		e.IPAddress,
		e.UserAgent,
		e.ErrorMessage,
		e.Metadata,
		prev,
		e.CurrentHash,
	}
}
