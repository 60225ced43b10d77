package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/deepresearch/internal/cache"
	"go.uber.org/zap"
)

const defaultCacheTTL = 6 * time.Hour

// Store 是缓存后端，*cache.Manager 实现了它。未命中时 GetJSON 返回 cache.ErrCacheMiss。
type Store interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// CacheObserver 接收缓存命中情况，*metrics.Collector 实现了它。
type CacheObserver interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

const cacheType = "search"

// CachedProvider 缓存搜索后端的原始结果。
// 缓存只是加速：读写失败都会降级为直接查询后端。
type CachedProvider struct {
	inner    Provider
	store    Store
	ttl      time.Duration
	prefix   string
	observer CacheObserver
	logger   *zap.Logger
}

// NewCachedProvider 创建带缓存的搜索后端。
func NewCachedProvider(inner Provider, store Store, ttl time.Duration, logger *zap.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProvider{
		inner:  inner,
		store:  store,
		ttl:    ttl,
		prefix: "deepresearch:search:" + inner.Name() + ":",
		logger: logger.With(zap.String("component", "search_cache")),
	}
}

// WithObserver 设置命中统计的接收者。
func (c *CachedProvider) WithObserver(o CacheObserver) *CachedProvider {
	c.observer = o
	return c
}

func (c *CachedProvider) Name() string { return c.inner.Name() }

func (c *CachedProvider) Search(ctx context.Context, query string, maxResults int, topic Topic) ([]Result, error) {
	key := c.Key(query, maxResults, topic)

	var cached []Result
	err := c.store.GetJSON(ctx, key, &cached)
	if err == nil {
		c.logger.Debug("search cache hit", zap.String("query", query))
		if c.observer != nil {
			c.observer.RecordCacheHit(cacheType)
		}
		return cached, nil
	}
	if c.observer != nil {
		c.observer.RecordCacheMiss(cacheType)
	}
	if !cache.IsCacheMiss(err) {
		c.logger.Warn("search cache read failed", zap.String("key", key), zap.Error(err))
	}

	results, err := c.inner.Search(ctx, query, maxResults, topic)
	if err != nil {
		return nil, err
	}
	if err := c.store.SetJSON(ctx, key, results, c.ttl); err != nil {
		c.logger.Warn("search cache write failed", zap.String("key", key), zap.Error(err))
	}
	return results, nil
}

// Key 返回查询对应的缓存键。查询做大小写与空白归一化。
func (c *CachedProvider) Key(query string, maxResults int, topic Topic) string {
	norm := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", norm, maxResults, topic)))
	return c.prefix + hex.EncodeToString(sum[:16])
}
