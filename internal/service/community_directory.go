package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/GoPolymarket/guildgate/internal/config"
	"github.com/GoPolymarket/guildgate/internal/model"
	"github.com/GoPolymarket/guildgate/internal/pkg/logger"
	"github.com/GoPolymarket/guildgate/internal/repository"
	"golang.org/x/time/rate"
)

var ErrCommunityNotFound = errors.New("community not found")

type CommunityRepo interface {
	GetByID(ctx context.Context, id string) (*model.Community, error)
}

// CommunityCache is a shared cache in front of CommunityRepo (redis).
type CommunityCache interface {
	Get(ctx context.Context, id string) (*model.Community, error)
	Set(ctx context.Context, c *model.Community) error
	Invalidate(ctx context.Context, id string) error
}

type cachedCommunity struct {
	community *model.Community
	loadedAt  time.Time
}

// CommunityDirectory 管理社区记录缓存以及每个社区的限流器
type CommunityDirectory struct {
	mu          sync.RWMutex
	communities map[string]cachedCommunity // Key: CommunityID
	limiters    map[string]*rate.Limiter   // Key: CommunityID
	repo        CommunityRepo
	cache       CommunityCache
	localTTL    time.Duration
	defaultRate config.RateLimitConfig
}

func NewCommunityDirectory(cfg *config.Config, repo CommunityRepo, cache CommunityCache) *CommunityDirectory {
	d := &CommunityDirectory{
		communities: make(map[string]cachedCommunity),
		limiters:    make(map[string]*rate.Limiter),
		repo:        repo,
		cache:       cache,
		localTTL:    10 * time.Second,
	}
	if cfg != nil {
		d.defaultRate = cfg.RateLimit
	}
	return d
}

// Register stores c in the local cache and (re)builds its limiter.
func (d *CommunityDirectory) Register(c *model.Community) {
	if c == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.communities[c.ID] = cachedCommunity{community: c, loadedAt: time.Now()}

	qps := c.RateQPS
	if qps == 0 {
		qps = d.defaultRate.QPS
	}
	burst := c.RateBurst
	if burst == 0 {
		burst = d.defaultRate.Burst
	}
	limit := rate.Limit(qps)
	if limit == 0 {
		limit = rate.Inf
	}
	if burst == 0 {
		burst = 1
	}
	if existing, ok := d.limiters[c.ID]; ok && existing.Limit() == limit && existing.Burst() == burst {
		return
	}
	d.limiters[c.ID] = rate.NewLimiter(limit, burst)
}

// Resolve looks the community up in the local map, then the shared cache,
// then the database. Soft-deleted communities are returned as found.
func (d *CommunityDirectory) Resolve(ctx context.Context, id string) (*model.Community, error) {
	if c, ok := d.local(id); ok {
		return c, nil
	}

	if d.cache != nil {
		c, err := d.cache.Get(ctx, id)
		if err != nil {
			logger.Warn("Community cache read failed", "community_id", id, "error", err.Error())
		} else if c != nil {
			d.Register(c)
			return c, nil
		}
	}

	if d.repo == nil {
		return nil, ErrCommunityNotFound
	}
	c, err := d.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrCommunityNotFound) {
			return nil, ErrCommunityNotFound
		}
		return nil, err
	}
	d.Register(c)
	if d.cache != nil {
		if err := d.cache.Set(ctx, c); err != nil {
			logger.Warn("Community cache write failed", "community_id", id, "error", err.Error())
		}
	}
	return c, nil
}

// Invalidate drops id from both cache levels, e.g. after a subscription change.
func (d *CommunityDirectory) Invalidate(ctx context.Context, id string) {
	d.mu.Lock()
	delete(d.communities, id)
	d.mu.Unlock()
	if d.cache != nil {
		if err := d.cache.Invalidate(ctx, id); err != nil {
			logger.Warn("Community cache invalidate failed", "community_id", id, "error", err.Error())
		}
	}
}

// GetLimiter 获取社区的限流器
func (d *CommunityDirectory) GetLimiter(communityID string) *rate.Limiter {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.limiters[communityID]
}

func (d *CommunityDirectory) local(id string) (*model.Community, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.communities[id]
	if !ok || time.Since(entry.loadedAt) > d.localTTL {
		return nil, false
	}
	return entry.community, true
}
