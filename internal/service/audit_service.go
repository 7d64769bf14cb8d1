package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoPolymarket/guildgate/internal/config"
	"github.com/GoPolymarket/guildgate/internal/ledger"
	"github.com/GoPolymarket/guildgate/internal/model"
	"github.com/GoPolymarket/guildgate/internal/pkg/logger"
	"github.com/GoPolymarket/guildgate/internal/pkg/metrics"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const anonymousActor = "anonymous"

type AuditStore interface {
	InsertBatch(ctx context.Context, records []*model.AuditRecord) error
}

type AuditCleaner interface {
	Cleanup(ctx context.Context, now time.Time) (int64, error)
}

// LedgerWriter is the part of *ledger.Ledger the audit worker mirrors into.
type LedgerWriter interface {
	Write(ctx context.Context, ev ledger.Event) (*model.LedgerEntry, error)
}

type AuditStats struct {
	Queued  int64 `json:"queued"`
	Written int64 `json:"written"`
	Dropped int64 `json:"dropped"`
	Invalid int64 `json:"invalid"`
	Failed  int64 `json:"failed"`
}

// AuditService 异步写入审计记录：Record 永不阻塞调用方，
// 队列满时丢弃新记录 (drop-newest)
type AuditService struct {
	queue  chan *model.AuditRecord
	store  AuditStore
	ledger LedgerWriter

	batchSize     int
	flushInterval time.Duration
	writeTimeout  time.Duration

	denialTTL     time.Duration
	standardTTL   time.Duration
	complianceTTL time.Duration

	validate *validator.Validate
	now      func() time.Time

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	queued, written, dropped, invalid, failed atomic.Int64
}

func NewAuditService(cfg config.AuditConfig, store AuditStore, lw LedgerWriter) *AuditService {
	s := &AuditService{
		queue:         make(chan *model.AuditRecord, positive(cfg.QueueSize, 1024)),
		store:         store,
		ledger:        lw,
		batchSize:     positive(cfg.BatchSize, 50),
		flushInterval: time.Duration(positive(cfg.FlushIntervalMs, 500)) * time.Millisecond,
		writeTimeout:  time.Duration(positive(cfg.WriteTimeoutMs, 3000)) * time.Millisecond,
		denialTTL:     days(positive(cfg.DenialRetentionDays, 30)),
		standardTTL:   days(positive(cfg.StandardRetentionDays, 90)),
		complianceTTL: days(positive(cfg.ComplianceRetentionDays, 2555)),
		validate:      model.GetValidator(),
		now:           time.Now,
		done:          make(chan struct{}),
	}
	go s.run()
	return s
}

// Record completes rec (id, timestamp, risk, review flag, expiry) and hands
// it to the writer. It returns false when the record was rejected or dropped.
func (s *AuditService) Record(rec *model.AuditRecord) bool {
	if rec == nil {
		return false
	}
	s.complete(rec)
	if err := s.validate.Struct(rec); err != nil {
		s.invalid.Add(1)
		metrics.AuditRecords.WithLabelValues("invalid").Inc()
		logger.Warn("Rejected invalid audit record", "action", rec.Action, "reason", model.FormatValidationError(err))
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop(rec, "audit service closed")
		return false
	}
	select {
	case s.queue <- rec:
		s.queued.Add(1)
		metrics.AuditRecords.WithLabelValues("queued").Inc()
		metrics.AuditQueueDepth.Set(float64(len(s.queue)))
		return true
	default:
		s.drop(rec, "audit queue full")
		return false
	}
}

func (s *AuditService) drop(rec *model.AuditRecord, reason string) {
	s.dropped.Add(1)
	metrics.AuditRecords.WithLabelValues("dropped").Inc()
	logger.Warn("Dropping audit record", "reason", reason, "action", rec.Action, "community_id", rec.CommunityID, "request_id", rec.RequestID)
}

func (s *AuditService) complete(rec *model.AuditRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	rec.Timestamp = rec.Timestamp.UTC()
	if rec.RiskLevel == "" {
		rec.RiskLevel = ClassifyRisk(rec.Action, rec.Status)
	}
	rec.RequiresReview = rec.RequiresReview || RequiresReview(rec.Action, rec.RiskLevel)
	if rec.ExpiresAt.IsZero() {
		rec.ExpiresAt = rec.Timestamp.Add(s.retention(rec))
	}
}

func (s *AuditService) retention(rec *model.AuditRecord) time.Duration {
	switch {
	case rec.RequiresReview || rec.RiskLevel == model.RiskCritical:
		return s.complianceTTL
	case rec.Status == model.AuditBlocked || rec.Status == model.AuditFailure:
		return s.denialTTL
	default:
		return s.standardTTL
	}
}

func (s *AuditService) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	batch := make([]*model.AuditRecord, 0, s.batchSize)
	for {
		select {
		case rec, ok := <-s.queue:
			if !ok {
				s.flush(batch)
				return
			}
			batch = append(batch, rec)
			if len(batch) >= s.batchSize {
				s.flush(batch)
				batch = make([]*model.AuditRecord, 0, s.batchSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = make([]*model.AuditRecord, 0, s.batchSize)
			}
		}
	}
}

// flush runs detached from any request, bounded by writeTimeout.
func (s *AuditService) flush(batch []*model.AuditRecord) {
	metrics.AuditQueueDepth.Set(float64(len(s.queue)))
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	if s.store != nil {
		if err := s.store.InsertBatch(ctx, batch); err != nil {
			s.failed.Add(int64(len(batch)))
			metrics.AuditRecords.WithLabelValues("failed").Add(float64(len(batch)))
			logger.Error("Failed to persist audit records", "count", len(batch), "error", err.Error())
		} else {
			s.written.Add(int64(len(batch)))
			metrics.AuditRecords.WithLabelValues("written").Add(float64(len(batch)))
		}
	}

	if s.ledger == nil {
		return
	}
	for _, rec := range batch {
		if !mirrorToLedger(rec) {
			continue
		}
		if _, err := s.ledger.Write(ctx, ledgerEvent(rec)); err != nil {
			logger.Error("Failed to mirror audit record into ledger", "record_id", rec.ID, "action", rec.Action, "error", err.Error())
		}
	}
}

// mirrorToLedger 只有非成功或非只读的操作进入账本
func mirrorToLedger(rec *model.AuditRecord) bool {
	return rec.Status != model.AuditSuccess || rec.Operation != model.OperationRead
}

func ledgerEvent(rec *model.AuditRecord) ledger.Event {
	actor := rec.UserID
	if actor == "" {
		actor = anonymousActor
	}
	ev := ledger.Event{
		ChainID:      rec.CommunityID,
		ActorID:      actor,
		Action:       rec.Action,
		ResourceType: rec.ResourceType,
		ResourceID:   rec.ResourceID,
		IPAddress:    rec.IPAddress,
		UserAgent:    rec.UserAgent,
		Status:       string(rec.Status),
		Timestamp:    rec.Timestamp,
		Metadata: map[string]any{
			"auditId":        rec.ID,
			"requestId":      rec.RequestID,
			"operation":      string(rec.Operation),
			"riskLevel":      string(rec.RiskLevel),
			"requiresReview": rec.RequiresReview,
			"endpoint":       rec.Endpoint,
			"method":         rec.HTTPMethod,
			"statusCode":     rec.StatusCode,
		},
	}
	if rec.Status != model.AuditSuccess {
		ev.ErrorMessage = fmt.Sprintf("HTTP %d", rec.StatusCode)
	}
	return ev
}

// Close stops accepting records and waits up to timeout for the queue to
// drain. It reports whether the drain finished in time.
func (s *AuditService) Close(timeout time.Duration) bool {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return true
	case <-time.After(timeout):
		logger.Warn("Audit queue did not drain before shutdown", "pending", len(s.queue))
		return false
	}
}

func (s *AuditService) Stats() AuditStats {
	return AuditStats{
		Queued:  s.queued.Load(),
		Written: s.written.Load(),
		Dropped: s.dropped.Load(),
		Invalid: s.invalid.Load(),
		Failed:  s.failed.Load(),
	}
}

// StartCleanup deletes expired audit records every interval until ctx ends.
func StartCleanup(ctx context.Context, cleaner AuditCleaner, interval time.Duration) {
	if cleaner == nil || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := cleaner.Cleanup(ctx, time.Now())
				if err != nil {
					logger.Error("Audit retention cleanup failed", "error", err.Error())
					continue
				}
				if n > 0 {
					logger.Info("Expired audit records removed", "count", n)
				}
			}
		}
	}()
}

func positive(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
