package forward

import (
	"sync"
	"time"

	"nocturne-hq/parity/pkg/analysis"
)

// ResponseCache is a TTL and LRU bounded store of leg outcomes keyed by
// fingerprint and target. It only holds responses to idempotent requests
// and is consulted only by replays.
type ResponseCache struct {
	entries map[string]*cacheEntry

	// ttl is the default lifetime of an entry.
	ttl time.Duration

	// maxEntries bounds the cache size (0 = unlimited).
	maxEntries int

	mu sync.RWMutex

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	sweepInterval time.Duration
}

type cacheEntry struct {
	outcome        *analysis.ForwardOutcome
	expiresAt      time.Time
	lastAccessedAt time.Time
}

// NewResponseCache creates a cache and starts its sweeper. ttl must be positive.
// The sweeper runs every ttl/2, bounded to [1s, 1m].
func NewResponseCache(ttl time.Duration, maxEntries int) *ResponseCache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	if interval > time.Minute {
		interval = time.Minute
	}

	c := &ResponseCache{
		entries:       make(map[string]*cacheEntry),
		ttl:           ttl,
		maxEntries:    maxEntries,
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
		sweepInterval: interval,
	}
	go c.sweep()
	return c
}

func cacheKey(fp Fingerprint, target analysis.Target) string {
	return fp.Key() + "|" + string(target)
}

// Get returns a fresh outcome for the fingerprint and target. The returned
// outcome is a copy marked Cached.
func (c *ResponseCache) Get(fp Fingerprint, target analysis.Target) (*analysis.ForwardOutcome, bool) {
	if !IsIdempotent(fp.Method) {
		return nil, false
	}
	key := cacheKey(fp, target)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	now := time.Now()
	if now.After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	entry.lastAccessedAt = now

	out := copyOutcome(entry.outcome)
	out.Cached = true
	return out, true
}

// Put stores an outcome. ttl <= 0 uses the cache default. Non-idempotent
// methods and failed legs are ignored.
func (c *ResponseCache) Put(fp Fingerprint, target analysis.Target, outcome *analysis.ForwardOutcome, ttl time.Duration) {
	if !IsIdempotent(fp.Method) || !outcome.Succeeded() {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	key := cacheKey(fp, target)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		if _, exists := c.entries[key]; !exists {
			c.evictLRU()
		}
	}

	now := time.Now()
	c.entries[key] = &cacheEntry{
		outcome:        copyOutcome(outcome),
		expiresAt:      now.Add(ttl),
		lastAccessedAt: now,
	}
}

// Size returns the current number of entries.
func (c *ResponseCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear removes all entries.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

// Close stops the sweeper and waits for it to exit. It is safe to call twice.
func (c *ResponseCache) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.done
}

// evictLRU must be called with the write lock held.
func (c *ResponseCache) evictLRU() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.lastAccessedAt.Before(oldest) {
			oldestKey = key
			oldest = entry.lastAccessedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *ResponseCache) sweep() {
	defer close(c.done)

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

func (c *ResponseCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func copyOutcome(o *analysis.ForwardOutcome) *analysis.ForwardOutcome {
	c := *o
	if o.StatusCode != nil {
		code := *o.StatusCode
		c.StatusCode = &code
	}
	c.Headers = o.Headers.Clone()
	c.Body = append([]byte(nil), o.Body...)
	return &c
}
