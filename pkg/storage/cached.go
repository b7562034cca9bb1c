package storage

import (
	"context"
	"strings"
	"time"

	"github.com/orneryd/ideagraph/pkg/cache"
	"github.com/orneryd/ideagraph/pkg/links"
)

// CachedEngine is a read-through cache in front of another Engine.
//
// Discovery search probes the same ideas from many branches; caching the
// payloads and one-hop link lists turns those repeated probes into map
// lookups. Writes made through the CachedEngine invalidate the affected
// entries. Writes made directly against the wrapped engine are only picked
// up after the TTL expires.
//
// Example:
//
//	base, _ := storage.NewBadgerEngine("./data")
//	engine := storage.NewCachedEngine(base, 10000, 5*time.Minute)
//	defer engine.Close()
type CachedEngine struct {
	Engine
	data  *cache.LRU[IdeaID, any]
	links *cache.LRU[string, []IdeaID]
}

// NewCachedEngine wraps inner with caches holding up to size entries each.
func NewCachedEngine(inner Engine, size int, ttl time.Duration) *CachedEngine {
	return &CachedEngine{
		Engine: inner,
		data:   cache.New[IdeaID, any](size, ttl),
		links:  cache.New[string, []IdeaID](size, ttl),
	}
}

func linksCacheKey(id IdeaID, link *links.Link) string {
	return string(id) + "\x00" + link.Name()
}

// GetData returns the payload from cache, loading it on a miss.
func (c *CachedEngine) GetData(ctx context.Context, id IdeaID) (any, error) {
	if v, ok := c.data.Get(id); ok {
		return copyData(v), nil
	}
	v, err := c.Engine.GetData(ctx, id)
	if err != nil {
		return nil, err
	}
	c.data.Put(id, copyData(v))
	return v, nil
}

// SetData writes through and drops the cached payload.
func (c *CachedEngine) SetData(ctx context.Context, id IdeaID, data any) error {
	c.data.Remove(id)
	return c.Engine.SetData(ctx, id, data)
}

// Links returns the one-hop neighbours from cache, loading them on a miss.
func (c *CachedEngine) Links(ctx context.Context, id IdeaID, link *links.Link) ([]IdeaID, error) {
	if !links.Known(link) {
		return nil, ErrInvalidLink
	}
	key := linksCacheKey(id, link)
	if v, ok := c.links.Get(key); ok {
		return append([]IdeaID(nil), v...), nil
	}
	v, err := c.Engine.Links(ctx, id, link)
	if err != nil {
		return nil, err
	}
	c.links.Put(key, append([]IdeaID(nil), v...))
	return v, nil
}

// AddLink writes through and drops cached link lists of both endpoints.
func (c *CachedEngine) AddLink(ctx context.Context, a IdeaID, link *links.Link, b IdeaID) error {
	c.invalidateLinks(a, b)
	return c.Engine.AddLink(ctx, a, link, b)
}

// RemoveLink writes through and drops cached link lists of both endpoints.
func (c *CachedEngine) RemoveLink(ctx context.Context, a IdeaID, link *links.Link, b IdeaID) error {
	c.invalidateLinks(a, b)
	return c.Engine.RemoveLink(ctx, a, link, b)
}

// DeleteIdea removes the idea and drops everything that could mention it.
func (c *CachedEngine) DeleteIdea(ctx context.Context, id IdeaID) error {
	c.data.Remove(id)
	c.links.Clear()
	return c.Engine.DeleteIdea(ctx, id)
}

// Stats returns payload and link cache statistics.
func (c *CachedEngine) Stats() (data, linkLists cache.Stats) {
	return c.data.Stats(), c.links.Stats()
}

func (c *CachedEngine) invalidateLinks(ids ...IdeaID) {
	c.links.RemoveFunc(func(key string) bool {
		for _, id := range ids {
			if strings.HasPrefix(key, string(id)+"\x00") {
				return true
			}
		}
		return false
	})
}

var _ Engine = (*CachedEngine)(nil)
