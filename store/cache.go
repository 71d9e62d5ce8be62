package store

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/liamcoop/vouchermacro/macro"
)

// fragmentsKey is the singleflight key for fragment loads. Template names are
// never empty, so it cannot collide.
const fragmentsKey = ""

type templateEntry struct {
	content  string
	cachedAt time.Time
}

type fragmentEntry struct {
	set      macro.FragmentSet
	cachedAt time.Time
}

// TemplateCache caches templates and the fragment library in front of a
// TemplateStore. Concurrent misses for the same key share one load, which is
// not cancelled when the caller that started it goes away.
// A TTL of 0 means entries live until invalidated.
type TemplateCache struct {
	store     TemplateStore
	ttl       time.Duration
	templates map[string]templateEntry
	fragments *fragmentEntry
	// generations counts invalidations per key. A load only fills the cache
	// if no invalidation happened while it was reading the store.
	generations map[string]uint64
	group       singleflight.Group
	mu          sync.RWMutex
}

// NewTemplateCache wraps store with a cache.
func NewTemplateCache(store TemplateStore, ttl time.Duration) *TemplateCache {
	return &TemplateCache{
		store:       store,
		ttl:         ttl,
		templates:   make(map[string]templateEntry),
		generations: make(map[string]uint64),
	}
}

func (c *TemplateCache) fresh(cachedAt time.Time) bool {
	return c.ttl <= 0 || time.Since(cachedAt) <= c.ttl
}

func (c *TemplateCache) generation(key string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generations[key]
}

// Template returns the named template, loading it on a miss or expiry.
func (c *TemplateCache) Template(ctx context.Context, name string) (string, error) {
	c.mu.RLock()
	e, ok := c.templates[name]
	c.mu.RUnlock()
	if ok && c.fresh(e.cachedAt) {
		return e.content, nil
	}
	return c.ReloadTemplate(ctx, name)
}

// ReloadTemplate reads the template from the store and refreshes the cache.
func (c *TemplateCache) ReloadTemplate(ctx context.Context, name string) (string, error) {
	v, err, _ := c.group.Do(name, func() (any, error) {
		gen := c.generation(name)
		content, err := c.store.GetTemplate(context.WithoutCancel(ctx), name)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.generations[name] == gen {
			c.templates[name] = templateEntry{content: content, cachedAt: time.Now()}
		}
		c.mu.Unlock()
		return content, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Fragments returns the fragment library, loading it on a miss or expiry.
// The returned set must not be modified.
func (c *TemplateCache) Fragments(ctx context.Context) (macro.FragmentSet, error) {
	c.mu.RLock()
	e := c.fragments
	c.mu.RUnlock()
	if e != nil && c.fresh(e.cachedAt) {
		return e.set, nil
	}
	return c.ReloadFragments(ctx)
}

// ReloadFragments reads the fragment library from the store and refreshes the cache.
func (c *TemplateCache) ReloadFragments(ctx context.Context) (macro.FragmentSet, error) {
	v, err, _ := c.group.Do(fragmentsKey, func() (any, error) {
		gen := c.generation(fragmentsKey)
		set, err := c.store.Fragments(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.generations[fragmentsKey] == gen {
			c.fragments = &fragmentEntry{set: set, cachedAt: time.Now()}
		}
		c.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(macro.FragmentSet), nil
}

// InvalidateTemplate drops the cached template name. A load already in
// flight will not repopulate it, and later callers start a fresh load.
func (c *TemplateCache) InvalidateTemplate(name string) {
	c.mu.Lock()
	c.generations[name]++
	delete(c.templates, name)
	c.mu.Unlock()
	c.group.Forget(name)
}

// InvalidateFragments drops the cached fragment library.
func (c *TemplateCache) InvalidateFragments() {
	c.mu.Lock()
	c.generations[fragmentsKey]++
	c.fragments = nil
	c.mu.Unlock()
	c.group.Forget(fragmentsKey)
}
