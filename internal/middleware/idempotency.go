package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/GoPolymarket/guildgate/internal/model"
	"github.com/GoPolymarket/guildgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/guildgate/internal/pkg/logger"
	"github.com/gin-gonic/gin"
)

const HeaderIdempotencyKey = "X-Idempotency-Key"

type IdempotencyStore interface {
	// GetOrLock returns (record, true) if the key exists; (nil, false) if the
	// caller now holds the key.
	GetOrLock(ctx context.Context, key string) (*model.IdempotencyRecord, bool, error)
	Save(ctx context.Context, key string, status int, body []byte) error
	Unlock(ctx context.Context, key string) error
}

// InMemIdempotencyStore is used when redis is not configured.
type InMemIdempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	records map[string]*model.IdempotencyRecord // Key: CommunityID + ":" + IdempotencyKey
}

func NewInMemIdempotencyStore(ttl time.Duration) *InMemIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &InMemIdempotencyStore{
		ttl:     ttl,
		records: make(map[string]*model.IdempotencyRecord),
	}
}

func (s *InMemIdempotencyStore) GetOrLock(_ context.Context, key string) (*model.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok && time.Since(rec.CreatedAt) < s.ttl {
		return rec, true, nil
	}

	// 锁定该 Key
	s.records[key] = &model.IdempotencyRecord{
		Processing: true,
		CreatedAt:  time.Now(),
	}
	return nil, false, nil
}

func (s *InMemIdempotencyStore) Save(_ context.Context, key string, status int, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = &model.IdempotencyRecord{
		Status:    status,
		Body:      body,
		CreatedAt: time.Now(),
	}
	return nil
}

func (s *InMemIdempotencyStore) Unlock(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// Idempotency replays the stored response for a repeated X-Idempotency-Key.
// Keys are partitioned by community, so two communities never share one.
func Idempotency(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		idemKey := c.GetHeader(HeaderIdempotencyKey)
		if idemKey == "" {
			c.Next()
			return
		}
		tc, err := TenantFrom(c)
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}
		fullKey := tc.CommunityID + ":" + idemKey
		ctx := c.Request.Context()

		record, hit, err := store.GetOrLock(ctx, fullKey)
		if err != nil {
			logger.Warn("Idempotency store unavailable, processing request without replay protection", "error", err.Error())
			c.Next()
			return
		}
		if hit {
			if record.Processing {
				c.Error(apperrors.New(apperrors.ErrIdempotencyConflict, "request with this idempotency key is in progress", nil).
					WithDetail("idempotencyKey", idemKey))
				c.Abort()
				return
			}
			c.Header("Idempotent-Replay", "true")
			c.Data(record.Status, "application/json; charset=utf-8", record.Body)
			c.Abort()
			return
		}

		w := &responseBodyWriter{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		// 服务端错误允许重试，所以只解锁不保存
		if c.Writer.Written() && c.Writer.Status() < http.StatusInternalServerError {
			if err := store.Save(ctx, fullKey, c.Writer.Status(), w.body); err != nil {
				logger.Warn("Failed to save idempotent response", "error", err.Error())
			}
			return
		}
		if err := store.Unlock(ctx, fullKey); err != nil {
			logger.Warn("Failed to release idempotency key", "error", err.Error())
		}
	}
}

type responseBodyWriter struct {
	gin.ResponseWriter
	body []byte
}

func (w *responseBodyWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return w.ResponseWriter.Write(b)
}
