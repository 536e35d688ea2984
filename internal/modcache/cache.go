// Package modcache bounds the set of resident script modules used by the
// in-process execution strategies. Entries are evicted least-recently-used
// on overflow and swept by idle TTL; both paths run the module's teardown so
// interpreter workers never outlive their cache entry.
package modcache

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"bindkit/internal/shared/logging"
)

const (
	// DefaultMaxSize bounds the number of resident modules.
	DefaultMaxSize = 20
	// DefaultTTL is how long an untouched module stays resident.
	DefaultTTL = 1800 * time.Second
	// maxSweepInterval caps how often sweeps run even with long TTLs.
	maxSweepInterval = 300 * time.Second
)

// Module is a resident script module. Teardown must be idempotent: eviction,
// sweep, and Clear may race with an explicit Remove.
type Module interface {
	Name() string
	Teardown() error
}

type entry struct {
	module     Module
	lastAccess time.Time
}

// Cache is an LRU+TTL bounded store of resident modules.
type Cache struct {
	mu        sync.Mutex
	lru       *lru.Cache[string, *entry]
	ttl       time.Duration
	lastSweep time.Time
	logger    logging.Logger
	now       func() time.Time
}

// New creates a cache. maxSize and ttl fall back to the defaults when zero.
func New(maxSize int, ttl time.Duration, logger logging.Logger) (*Cache, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &Cache{
		ttl:    ttl,
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
	inner, err := lru.NewWithEvict(maxSize, func(name string, e *entry) {
		c.teardown(name, e)
	})
	if err != nil {
		return nil, fmt.Errorf("create module cache: %w", err)
	}
	c.lru = inner
	return c, nil
}

// Put stores a module, evicting the least-recently-used entry on overflow.
func (c *Cache) Put(name string, module Module) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(name, &entry{module: module, lastAccess: c.now()})
}

// Get returns the module for name and marks it most-recently-used.
func (c *Cache) Get(name string) (Module, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(name)
	if !ok {
		return nil, false
	}
	e.lastAccess = c.now()
	return e.module, true
}

// Remove drops and tears down a single entry.
func (c *Cache) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(name)
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Sweep removes entries idle past the TTL. Sweeps are rate-limited to one
// per min(300s, ttl); extra calls are no-ops.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	interval := c.ttl
	if interval > maxSweepInterval {
		interval = maxSweepInterval
	}
	now := c.now()
	if now.Sub(c.lastSweep) < interval {
		return
	}
	c.lastSweep = now

	for _, name := range c.lru.Keys() {
		e, ok := c.lru.Peek(name)
		if !ok {
			continue
		}
		if now.Sub(e.lastAccess) > c.ttl {
			c.lru.Remove(name)
		}
	}
}

// Clear tears down every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

func (c *Cache) teardown(name string, e *entry) {
	if e == nil || e.module == nil {
		return
	}
	if err := e.module.Teardown(); err != nil {
		c.logger.Warn("modcache: teardown of %q failed: %v", name, err)
	} else {
		c.logger.Debug("modcache: tore down %q", name)
	}
}
