// Package ledger is the append-only, hash-chained compliance log. One chain
// exists per community (chain id = community id); events without a community
// go to model.SystemChainID.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GoPolymarket/guildgate/internal/model"
	"github.com/GoPolymarket/guildgate/internal/pkg/logger"
	"github.com/GoPolymarket/guildgate/internal/pkg/metrics"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Event is the caller supplied part of a ledger entry.
type Event struct {
	ChainID      string `validate:"max=64"`
	ActorID      string `validate:"required,max=64"`
	Action       string `validate:"required,max=128"`
	ResourceType string `validate:"max=64"`
	ResourceID   string `validate:"max=128"`
	IPAddress    string `validate:"omitempty,ip"`
	UserAgent    string `validate:"max=512"`
	Status       string `validate:"required,oneof=success failure blocked"`
	ErrorMessage string
	Metadata     map[string]any
	// Timestamp defaults to now.
	Timestamp time.Time
}

var errHeadMoved = errors.New("ledger: chain head moved")

type Ledger struct {
	db         *gorm.DB
	maxRetries int
	locks      sync.Map // chain id -> *sync.Mutex
	validate   *validator.Validate
	tracer     trace.Tracer
	now        func() time.Time
}

type Option func(*Ledger)

func WithMaxRetries(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxRetries = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// AutoMigrate creates the ledger tables and the append-only triggers on
// ledger_entries. Run it before New: once the immutability callbacks are
// installed, table drops are refused.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.LedgerEntry{}, &model.ChainHead{}); err != nil {
		return err
	}
	return installGuards(db)
}

func New(db *gorm.DB, opts ...Option) (*Ledger, error) {
	if err := RegisterImmutability(db); err != nil {
		return nil, fmt.Errorf("ledger: register immutability callbacks: %w", err)
	}
	l := &Ledger{
		db:         db,
		maxRetries: 5,
		validate:   model.GetValidator(),
		tracer:     otel.Tracer("guildgate/internal/ledger"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Write appends ev to its chain. An invalid event is logged and yields
// (nil, nil); storage failures are returned.
func (l *Ledger) Write(ctx context.Context, ev Event) (*model.LedgerEntry, error) {
	if ev.ChainID == "" {
		ev.ChainID = model.SystemChainID
	}
	ctx, span := l.tracer.Start(ctx, "Ledger.Write", trace.WithAttributes(
		attribute.String("ledger.chain_id", ev.ChainID),
		attribute.String("ledger.action", ev.Action),
	))
	defer span.End()

	if err := l.validate.Struct(ev); err != nil {
		metrics.LedgerWrites.WithLabelValues("invalid").Inc()
		logger.Warn("Rejected invalid ledger event", "chain_id", ev.ChainID, "action", ev.Action, "reason", model.FormatValidationError(err))
		return nil, nil
	}
	metadata, err := canonicalMetadata(ev.Metadata)
	if err != nil {
		metrics.LedgerWrites.WithLabelValues("invalid").Inc()
		logger.Warn("Rejected ledger event with unencodable metadata", "chain_id", ev.ChainID, "action", ev.Action, "error", err.Error())
		return nil, nil
	}

	// 同一条链的写入在进程内串行，跨进程由 chain head 的 CAS 保证
	mu := l.chainLock(ev.ChainID)
	mu.Lock()
	defer mu.Unlock()

	for attempt := 0; ; attempt++ {
		entry, err := l.append(ctx, ev, metadata)
		if err == nil {
			metrics.LedgerWrites.WithLabelValues("ok").Inc()
			span.SetAttributes(attribute.Int64("ledger.sequence", entry.Sequence))
			return entry, nil
		}
		if !errors.Is(err, errHeadMoved) || attempt >= l.maxRetries {
			metrics.LedgerWrites.WithLabelValues("error").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "append failed")
			return nil, fmt.Errorf("ledger: append to chain %s: %w", ev.ChainID, err)
		}
		metrics.LedgerCASRetries.Inc()
		logger.Debug("Ledger chain head moved, retrying", "chain_id", ev.ChainID, "attempt", attempt+1)
	}
}

func (l *Ledger) append(ctx context.Context, ev Event, metadata string) (*model.LedgerEntry, error) {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}
	ts = ts.UTC().Truncate(time.Microsecond)

	var entry *model.LedgerEntry
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var head model.ChainHead
		found := true
		if err := tx.Where("chain_id = ?", ev.ChainID).Take(&head).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			found = false
		}

		e := &model.LedgerEntry{
			ID:           uuid.NewString(),
			ChainID:      ev.ChainID,
			Timestamp:    ts,
			ActorID:      ev.ActorID,
			Action:       ev.Action,
			ResourceType: ev.ResourceType,
			ResourceID:   ev.ResourceID,
			IPAddress:    ev.IPAddress,
			UserAgent:    ev.UserAgent,
			Status:       ev.Status,
			ErrorMessage: ev.ErrorMessage,
			Metadata:     metadata,
		}
		if found {
			prev := head.LastHash
			e.PreviousHash = &prev
			e.Sequence = head.Sequence + 1
		}
		e.CurrentHash = ComputeHash(e)

		if found {
			res := tx.Model(&model.ChainHead{}).
				Where("chain_id = ? AND version = ?", ev.ChainID, head.Version).
				Updates(map[string]any{
					"last_hash": e.CurrentHash,
					"sequence":  e.Sequence,
					"version":   head.Version + 1,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errHeadMoved
			}
		} else {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.ChainHead{
				ChainID:  ev.ChainID,
				LastHash: e.CurrentHash,
				Sequence: 0,
				Version:  1,
			})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errHeadMoved
			}
		}

		if err := tx.Create(e).Error; err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (l *Ledger) chainLock(chainID string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(chainID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
