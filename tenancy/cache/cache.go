// Copyright 2025 FluxERP
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"container/list"
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"fluxerp/platform/connectors/base"
)

// DefaultCapacity bounds the number of live tenant clients. Sized so
// pool connections across all cached clients stay within typical
// database server limits.
const DefaultCapacity = 50

// DefaultGrace is how long an evicted client may linger while requests
// still hold handles to it before it is force-closed.
const DefaultGrace = 30 * time.Second

// Builder constructs and connects a client for a tenant. Called at most
// once per tenant per cache residency, outside the cache lock.
type Builder func(ctx context.Context, tenantID string) (base.Client, error)

// Cache is an LRU of live tenant database clients keyed by tenant ID.
// Construction is deduplicated: concurrent lookups for an uncached
// tenant share a single Builder call.
type Cache struct {
	mu       sync.Mutex
	capacity int
	grace    time.Duration
	builder  Builder
	entries  map[string]*entry
	order    *list.List // front = most recently used
	inflight map[string]*buildCall
	closed   bool
	hits     uint64
	misses   uint64
	evicts   uint64
	logger   *log.Logger
}

type entry struct {
	tenantID string
	client   base.Client
	elem     *list.Element // nil when pinned
	refs     int
	doomed   bool
	closing  bool
	pinned   bool
}

type buildCall struct {
	done chan struct{}
	err  error

	// doomed is set by Invalidate while the build is still running. The
	// builder read the tenant record before the rotation, so the client
	// it returns must be discarded, not cached.
	doomed bool
}

// Options configures a Cache.
type Options struct {
	Capacity int
	Grace    time.Duration
	Logger   *log.Logger
}

// New creates a cache that constructs clients with the given builder.
func New(builder Builder, opts Options) *Cache {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	grace := opts.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[CLIENT_CACHE] ", log.LstdFlags)
	}

	return &Cache{
		capacity: capacity,
		grace:    grace,
		builder:  builder,
		entries:  make(map[string]*entry),
		order:    list.New(),
		inflight: make(map[string]*buildCall),
		logger:   logger,
	}
}

// Get returns a handle on the tenant's client, constructing it on a
// miss. The caller must Release the handle when the request finishes;
// until then the client cannot be closed out from under it by eviction
// or invalidation.
func (c *Cache) Get(ctx context.Context, tenantID string) (*Handle, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, fmt.Errorf("client cache is shut down")
		}

		if ent, ok := c.entries[tenantID]; ok {
			ent.refs++
			if ent.elem != nil {
				c.order.MoveToFront(ent.elem)
			}
			c.hits++
			cacheHits.Inc()
			c.mu.Unlock()
			return &Handle{cache: c, ent: ent}, nil
		}

		if call, ok := c.inflight[tenantID]; ok {
			c.mu.Unlock()
			select {
			case <-call.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if call.err != nil {
				return nil, call.err
			}
			// The winner's entry may already be gone again; loop and
			// re-check rather than assume it survived.
			continue
		}

		call := &buildCall{done: make(chan struct{})}
		c.inflight[tenantID] = call
		c.misses++
		cacheMisses.Inc()
		c.mu.Unlock()

		client, err := c.builder(ctx, tenantID)

		c.mu.Lock()
		delete(c.inflight, tenantID)
		if err != nil {
			// Failed constructions are not cached; the next lookup
			// retries from scratch.
			call.err = err
			close(call.done)
			c.mu.Unlock()
			return nil, err
		}

		if call.doomed {
			close(call.done)
			c.mu.Unlock()
			c.logger.Printf("Client for tenant %s was invalidated during construction; discarding and rebuilding", tenantID)
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if cerr := client.Close(closeCtx); cerr != nil {
				c.logger.Printf("Error closing discarded client for tenant %s: %v", tenantID, cerr)
			}
			cancel()
			continue
		}

		ent := &entry{tenantID: tenantID, client: client, refs: 1}
		ent.elem = c.order.PushFront(ent)
		c.entries[tenantID] = ent
		close(call.done)

		var victims []*entry
		for c.lruLen() > c.capacity {
			victim := c.evictOldest()
			if victim == nil {
				break
			}
			victims = append(victims, victim)
		}
		cacheSize.Set(float64(len(c.entries)))
		c.mu.Unlock()

		for _, v := range victims {
			c.finishEviction(v)
		}

		return &Handle{cache: c, ent: ent}, nil
	}
}

// lruLen counts evictable entries. Pinned entries sit outside the LRU
// list and do not consume capacity.
func (c *Cache) lruLen() int {
	return c.order.Len()
}

// evictOldest dooms the least recently used entry. Caller holds c.mu.
func (c *Cache) evictOldest() *entry {
	back := c.order.Back()
	if back == nil {
		return nil
	}
	ent := back.Value.(*entry)
	c.order.Remove(back)
	ent.elem = nil
	ent.doomed = true
	delete(c.entries, ent.tenantID)
	c.evicts++
	cacheEvictions.Inc()
	c.logger.Printf("Evicting client for tenant %s (refs=%d)", ent.tenantID, ent.refs)
	return ent
}

// finishEviction closes a doomed entry now if idle, or arms the grace
// timer so a leaked handle cannot hold a connection pool open forever.
func (c *Cache) finishEviction(ent *entry) {
	c.mu.Lock()
	if ent.refs == 0 {
		c.mu.Unlock()
		c.closeEntry(ent)
		return
	}
	c.mu.Unlock()

	time.AfterFunc(c.grace, func() {
		c.mu.Lock()
		if ent.closing {
			c.mu.Unlock()
			return
		}
		c.logger.Printf("Grace period expired for tenant %s with %d handle(s) outstanding; force-closing", ent.tenantID, ent.refs)
		c.mu.Unlock()
		c.closeEntry(ent)
	})
}

// closeEntry closes the underlying client exactly once.
func (c *Cache) closeEntry(ent *entry) {
	c.mu.Lock()
	if ent.closing {
		c.mu.Unlock()
		return
	}
	ent.closing = true
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ent.client.Close(ctx); err != nil {
		c.logger.Printf("Error closing client for tenant %s: %v", ent.tenantID, err)
	}
}

// release is called by Handle.Release.
func (c *Cache) release(ent *entry) {
	c.mu.Lock()
	if ent.refs > 0 {
		ent.refs--
	}
	shouldClose := ent.doomed && ent.refs == 0 && !ent.closing
	c.mu.Unlock()

	if shouldClose {
		c.closeEntry(ent)
	}
}

// Invalidate drops the tenant's cached client, if any, and dooms any
// construction currently in flight so a client built from the old URI
// never lands in the cache. Handles already issued keep working until
// released; the client is closed once the last one goes, or at the
// grace deadline. Pinned clients are never invalidated.
func (c *Cache) Invalidate(tenantID string) {
	c.mu.Lock()
	if call, ok := c.inflight[tenantID]; ok {
		call.doomed = true
	}
	ent, ok := c.entries[tenantID]
	if !ok {
		c.mu.Unlock()
		return
	}
	if ent.pinned {
		c.logger.Printf("Ignoring invalidation of pinned client %s", tenantID)
		c.mu.Unlock()
		return
	}
	if ent.elem != nil {
		c.order.Remove(ent.elem)
		ent.elem = nil
	}
	ent.doomed = true
	delete(c.entries, tenantID)
	cacheSize.Set(float64(len(c.entries)))
	c.logger.Printf("Invalidated client for tenant %s (refs=%d)", ent.tenantID, ent.refs)
	c.mu.Unlock()

	c.finishEviction(ent)
}

// Pin inserts an already connected client that is exempt from eviction
// and does not consume LRU capacity. Used for the enterprise store
// client, which must never be evicted by tenant traffic.
func (c *Cache) Pin(tenantID string, client base.Client) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("client cache is shut down")
	}
	if _, ok := c.entries[tenantID]; ok {
		return fmt.Errorf("client already cached for tenant %s", tenantID)
	}

	c.entries[tenantID] = &entry{tenantID: tenantID, client: client, pinned: true}
	cacheSize.Set(float64(len(c.entries)))
	c.logger.Printf("Pinned client %s", tenantID)
	return nil
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// Stats returns current cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      len(c.entries),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evicts,
	}
}

// Shutdown closes every cached client, pinned ones included. The cache
// rejects lookups afterwards.
func (c *Cache) Shutdown(ctx context.Context) {
	c.mu.Lock()
	c.closed = true
	all := make([]*entry, 0, len(c.entries))
	for _, ent := range c.entries {
		ent.doomed = true
		all = append(all, ent)
	}
	c.entries = make(map[string]*entry)
	c.order.Init()
	cacheSize.Set(0)
	c.mu.Unlock()

	c.logger.Printf("Shutting down, closing %d client(s)", len(all))
	for _, ent := range all {
		c.closeEntry(ent)
	}
}

// Handle is a borrowed reference to a cached client. Release must be
// called when the request is done; Release is idempotent.
type Handle struct {
	cache *Cache
	ent   *entry
	once  sync.Once
}

// Client returns the underlying client.
func (h *Handle) Client() base.Client {
	return h.ent.client
}

// TenantID returns the tenant this handle belongs to.
func (h *Handle) TenantID() string {
	return h.ent.tenantID
}

// Release returns the reference to the cache.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.cache.release(h.ent)
	})
}
