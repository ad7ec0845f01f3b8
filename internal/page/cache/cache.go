// Package cache holds page content documents for a fixed time. Entries only
// leave the cache by expiring; writes never invalidate them.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/siteadmin/content-services/internal/page"
	"github.com/siteadmin/content-services/pkg/logger"
)

// DefaultTTL is how long a resolved page stays cached.
const DefaultTTL = 300 * time.Second

// Cache stores resolved page documents keyed by pageId.
type Cache interface {
	Get(ctx context.Context, pageID string) (page.Content, bool)
	Set(ctx context.Context, pageID string, doc page.Content)
}

// Memory is a process-local expiring map.
type Memory struct {
	c *gocache.Cache
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{c: gocache.New(ttl, 2*ttl)}
}

func (m *Memory) Get(_ context.Context, pageID string) (page.Content, bool) {
	v, ok := m.c.Get(pageID)
	if !ok {
		return nil, false
	}
	doc, ok := v.(page.Content)
	if !ok {
		return nil, false
	}
	return doc.Clone(), true
}

func (m *Memory) Set(_ context.Context, pageID string, doc page.Content) {
	m.c.SetDefault(pageID, doc.Clone())
}

// SetWithTTL stores doc for ttl instead of the default lifetime.
func (m *Memory) SetWithTTL(_ context.Context, pageID string, doc page.Content, ttl time.Duration) {
	m.c.Set(pageID, doc.Clone(), ttl)
}

// Redis shares cached pages between instances. Values are JSON documents
// stored under prefix+pageId with the cache TTL.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis creates a Redis-backed cache. Prefix may be empty.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "page:"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, pageID string) (page.Content, bool) {
	b, err := r.client.Get(ctx, r.prefix+pageID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.With("cache.get", pageID).Warn().Err(err).Msg("redis cache lookup failed")
		}
		return nil, false
	}
	var doc page.Content
	if err := json.Unmarshal(b, &doc); err != nil || doc == nil {
		return nil, false
	}
	return doc, true
}

// GetWithTTL is Get plus the time the entry has left.
func (r *Redis) GetWithTTL(ctx context.Context, pageID string) (page.Content, time.Duration, bool) {
	key := r.prefix + pageID
	pipe := r.client.Pipeline()
	get := pipe.Get(ctx, key)
	pttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		logger.With("cache.get", pageID).Warn().Err(err).Msg("redis cache lookup failed")
		return nil, 0, false
	}
	b, err := get.Bytes()
	if err != nil {
		return nil, 0, false
	}
	var doc page.Content
	if err := json.Unmarshal(b, &doc); err != nil || doc == nil {
		return nil, 0, false
	}
	return doc, pttl.Val(), true
}

func (r *Redis) Set(ctx context.Context, pageID string, doc page.Content) {
	b, err := json.Marshal(doc)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, r.prefix+pageID, b, r.ttl).Err(); err != nil {
		logger.With("cache.set", pageID).Warn().Err(err).Msg("redis cache store failed")
	}
}

type expiringGetter interface {
	GetWithTTL(ctx context.Context, pageID string) (page.Content, time.Duration, bool)
}

type expiringSetter interface {
	SetWithTTL(ctx context.Context, pageID string, doc page.Content, ttl time.Duration)
}

// Tiered checks the local map first and the shared tier second, copying
// shared hits into the local map for no longer than the shared entry has left.
type Tiered struct {
	local  Cache
	shared Cache
}

func NewTiered(local, shared Cache) *Tiered {
	return &Tiered{local: local, shared: shared}
}

func (t *Tiered) Get(ctx context.Context, pageID string) (page.Content, bool) {
	if doc, ok := t.local.Get(ctx, pageID); ok {
		return doc, true
	}
	eg, egOK := t.shared.(expiringGetter)
	es, esOK := t.local.(expiringSetter)
	if !egOK || !esOK {
		doc, ok := t.shared.Get(ctx, pageID)
		if ok {
			t.local.Set(ctx, pageID, doc)
		}
		return doc, ok
	}
	doc, left, ok := eg.GetWithTTL(ctx, pageID)
	if !ok {
		return nil, false
	}
	// a non-positive ttl means no expiry is known; serve without copying
	if left > 0 {
		es.SetWithTTL(ctx, pageID, doc, left)
	}
	return doc, true
}

func (t *Tiered) Set(ctx context.Context, pageID string, doc page.Content) {
	t.local.Set(ctx, pageID, doc)
	t.shared.Set(ctx, pageID, doc)
}
