// Package cache implements the toolkit's domain-keyed cache: an in-memory
// LRU tier in front of an optional persistent BackingStore, with
// stale-while-revalidate semantics. It generalizes the Redis-backed,
// URL-keyed response cache this package began as into a domain-keyed,
// tiered store over parsed Documents.
package cache

import (
	"container/list"
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/llmstxtkit/llmstxtkit/config"
	"github.com/llmstxtkit/llmstxtkit/document"
	"github.com/llmstxtkit/llmstxtkit/validator"
)

// FetchSummary is the reduced fetch-outcome metadata a CacheEntry carries
// alongside its Document, matching the persisted cache format's
// fetchResult fields.
type FetchSummary struct {
	Status         string
	HTTPStatusCode int
	Duration       time.Duration
	Domain         string
}

// CacheEntry is the materialized value stored per domain: the parsed
// Document plus enough fetch and validation metadata to judge freshness
// and round-trip through a backing store without re-fetching.
type CacheEntry struct {
	Domain           string
	Document         document.Document
	RawContent       string
	HTTPHeaders      http.Header
	FetchResult      FetchSummary
	ValidationReport *validator.Report
	FetchedAt        time.Time
	ExpiresAt        time.Time
	TTL              time.Duration
	LastAccessedAt   time.Time
}

// IsExpired reports whether the entry is past ExpiresAt.
func (e CacheEntry) IsExpired() bool {
	return !e.ExpiresAt.IsZero() && !time.Now().Before(e.ExpiresAt)
}

// GetResult is what Get returns on a hit: the entry and whether it was
// served stale (expired but present, per staleWhileRevalidate).
type GetResult struct {
	Entry CacheEntry
	Stale bool
}

type lruNode struct {
	domain string
	entry  CacheEntry
}

// Cache is the domain-keyed LRU cache described in the toolkit's cache
// contract: case-insensitive keys, bounded size, linearizable per-key
// access, and an optional write-through BackingStore.
type Cache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	lru     *list.List
	opts    config.CacheOptions
	backing BackingStore
}

// New builds a Cache with the given options and an optional backing store.
// A nil store disables the persistent tier entirely.
func New(opts config.CacheOptions, backing BackingStore) *Cache {
	return &Cache{
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		opts:    opts,
		backing: backing,
	}
}

func normalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}

// Get looks up domain. On an in-memory miss, and only if a backing store is
// configured, it consults the backing store and promotes a hit into memory.
// A result with Stale true means the entry is past its TTL but
// staleWhileRevalidate allowed it to be returned anyway; when
// staleWhileRevalidate is disabled, an expired entry is reported as a
// miss, matching the "absent" contract in that mode.
func (c *Cache) Get(ctx context.Context, domain string) (*GetResult, error) {
	key := normalizeDomain(domain)

	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		node := elem.Value.(*lruNode)
		result, keep := c.evaluateHit(node.entry)
		if !keep {
			c.lru.Remove(elem)
			delete(c.items, key)
			c.mu.Unlock()
			return nil, nil
		}
		node.entry.LastAccessedAt = time.Now()
		result.Entry = node.entry
		c.lru.MoveToFront(elem)
		c.mu.Unlock()
		return result, nil
	}
	c.mu.Unlock()

	if c.backing == nil {
		return nil, nil
	}

	stored, err := c.backing.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, nil
	}

	result, keep := c.evaluateHit(*stored)
	if !keep {
		return nil, nil
	}
	stored.LastAccessedAt = time.Now()
	c.promote(key, *stored)
	result.Entry = *stored
	return result, nil
}

// evaluateHit decides whether an entry found in either tier should be
// surfaced to the caller, and whether it counts as stale.
func (c *Cache) evaluateHit(entry CacheEntry) (*GetResult, bool) {
	if !entry.IsExpired() {
		return &GetResult{Entry: entry, Stale: false}, true
	}
	if !c.opts.IsStaleWhileRevalidateEnabled() {
		return nil, false
	}
	return &GetResult{Entry: entry, Stale: true}, true
}

// Set stores entry under domain, evicting the least-recently-used
// in-memory entry if the set would exceed maxEntries, and write-through
// persisting to the backing store when configured.
func (c *Cache) Set(ctx context.Context, domain string, entry CacheEntry) error {
	key := normalizeDomain(domain)
	entry.Domain = key
	if entry.FetchResult.Domain == "" {
		entry.FetchResult.Domain = key
	}
	if entry.FetchedAt.IsZero() {
		entry.FetchedAt = time.Now()
	}
	if entry.TTL == 0 {
		entry.TTL = c.opts.GetTTL()
	}
	entry.ExpiresAt = entry.FetchedAt.Add(entry.TTL)
	entry.LastAccessedAt = time.Now()

	c.promote(key, entry)

	if c.backing != nil {
		if err := c.backing.Save(ctx, key, entry); err != nil {
			return err
		}
	}
	return nil
}

// promote inserts or updates key in the in-memory tier, evicting the LRU
// victim first if the set is already full.
func (c *Cache) promote(key string, entry CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*lruNode).entry = entry
		c.lru.MoveToFront(elem)
		return
	}

	maxEntries := c.opts.GetMaxEntries()
	if maxEntries > 0 && c.lru.Len() >= maxEntries {
		oldest := c.lru.Back()
		if oldest != nil {
			victim := oldest.Value.(*lruNode)
			delete(c.items, victim.domain)
			c.lru.Remove(oldest)
		}
	}

	elem := c.lru.PushFront(&lruNode{domain: key, entry: entry})
	c.items[key] = elem
}

// Invalidate removes domain from both the in-memory tier and the backing
// store, if configured.
func (c *Cache) Invalidate(ctx context.Context, domain string) error {
	key := normalizeDomain(domain)

	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		c.lru.Remove(elem)
		delete(c.items, key)
	}
	c.mu.Unlock()

	if c.backing != nil {
		return c.backing.Remove(ctx, key)
	}
	return nil
}

// Clear empties both tiers.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.items = make(map[string]*list.Element)
	c.lru = list.New()
	c.mu.Unlock()

	if c.backing != nil {
		return c.backing.Clear(ctx)
	}
	return nil
}

// Len reports the current in-memory entry count, for diagnostics and tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
