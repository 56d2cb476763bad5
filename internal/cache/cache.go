// Package cache keeps fetched API results keyed by endpoint and arguments.
//
// Entries live while at least one subscription holds them. Mutations call
// Invalidate with tags; matching entries keep serving their stale data while a
// single refetch runs.
package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"rentdesk.org/internal/obs"
	"rentdesk.org/internal/stream"
)

// FetchFunc loads the data for an entry and reports the tags it provides.
type FetchFunc func(ctx context.Context) (any, []Tag, error)

// Snapshot is a copy of an entry's state.
type Snapshot struct {
	Data      any
	Tags      []Tag
	Loading   bool
	Err       error
	Stale     bool
	FetchedAt time.Time
}

// EventKind names a cache lifecycle event.
type EventKind string

const (
	EventFetched     EventKind = "fetched"
	EventFailed      EventKind = "failed"
	EventInvalidated EventKind = "invalidated"
	EventEvicted     EventKind = "evicted"
)

// Event is published on every entry lifecycle change.
type Event struct {
	Kind EventKind
	Key  string
	Tags []Tag
	At   time.Time
}

// ErrClosed is returned by Query after Close.
var ErrClosed = errors.New("cache closed")

type entry struct {
	key   string
	fetch FetchFunc

	refs     int
	snap     Snapshot
	fetching bool
	pending  bool
	dead     atomic.Bool
	parked   atomic.Bool
	subs     map[*Subscription]struct{}
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	unused  *expirable.LRU[string, *entry]
	events  *stream.Stream[Event]

	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
}

// Option configures a Cache.
type Option func(*cacheOptions)

type cacheOptions struct {
	keepUnused time.Duration
	maxUnused  int
}

// WithKeepUnused keeps entries without subscribers for d before dropping them.
// Zero drops them as soon as the last subscriber leaves.
func WithKeepUnused(d time.Duration) Option {
	return func(o *cacheOptions) { o.keepUnused = d }
}

// WithMaxUnused bounds the number of parked entries; 0 means unbounded.
func WithMaxUnused(n int) Option {
	return func(o *cacheOptions) { o.maxUnused = n }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	var o cacheOptions
	for _, opt := range opts {
		opt(&o)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		entries: make(map[string]*entry),
		events:  stream.New[Event](64),
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
	}
	if o.keepUnused > 0 {
		c.unused = expirable.NewLRU[string, *entry](o.maxUnused, c.onUnusedEvict, o.keepUnused)
	}
	return c
}

// Events streams lifecycle events until ctx ends. Slow readers miss events.
func (c *Cache) Events(ctx context.Context) <-chan Event {
	return c.events.Subscribe(ctx)
}

// Close cancels in-flight fetches and drops every entry. Dropping the last
// subscription never cancels a fetch; only Close does.
func (c *Cache) Close() {
	c.cancel()
	c.mu.Lock()
	for key, e := range c.entries {
		e.dead.Store(true)
		delete(c.entries, key)
	}
	c.mu.Unlock()
	if c.unused != nil {
		c.unused.Purge()
	}
}

// Subscribe attaches to the entry for key, creating and fetching it when absent.
// fetch is only used when the entry is created.
func (c *Cache) Subscribe(key string, fetch FetchFunc) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		e = c.revive(key)
	}
	if e == nil {
		e = &entry{
			key:   key,
			fetch: fetch,
			subs:  make(map[*Subscription]struct{}),
		}
		c.entries[key] = e
		c.startFetch(e)
	}

	sub := &Subscription{c: c, e: e, ch: make(chan struct{}, 1)}
	e.refs++
	e.subs[sub] = struct{}{}
	return sub
}

// Query reads key once: it shares any in-flight fetch, waits until the entry
// settles and releases it again.
func (c *Cache) Query(ctx context.Context, key string, fetch FetchFunc) (Snapshot, error) {
	sub := c.Subscribe(key, fetch)
	defer sub.Unsubscribe()
	return sub.Wait(ctx)
}

// Invalidate marks every entry providing a matching tag stale. Subscribed
// entries refetch once; parked entries are dropped.
func (c *Cache) Invalidate(tags ...Tag) {
	if len(tags) == 0 {
		return
	}
	var hit []Event
	c.mu.Lock()
	for _, e := range c.entries {
		if !intersects(tags, e.snap.Tags) {
			continue
		}
		e.snap.Stale = true
		if e.fetching {
			e.pending = true
		} else {
			c.startFetch(e)
		}
		e.notify()
		hit = append(hit, Event{Kind: EventInvalidated, Key: e.key, Tags: tags, At: c.now()})
	}
	if c.unused != nil {
		for _, key := range c.unused.Keys() {
			if e, ok := c.unused.Peek(key); ok && intersects(tags, e.snap.Tags) {
				c.unused.Remove(key)
			}
		}
	}
	c.mu.Unlock()

	for _, evt := range hit {
		c.publish(evt)
	}
}

// Peek returns the current snapshot for key without subscribing.
func (c *Cache) Peek(key string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.snap.copy(), true
	}
	if c.unused != nil {
		if e, ok := c.unused.Peek(key); ok {
			return e.snap.copy(), true
		}
	}
	return Snapshot{}, false
}

// Len counts live and parked entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	if c.unused != nil {
		n += c.unused.Len()
	}
	return n
}

// revive moves a parked entry back to the live set. Caller holds c.mu.
func (c *Cache) revive(key string) *entry {
	if c.unused == nil {
		return nil
	}
	e, ok := c.unused.Peek(key)
	if !ok {
		return nil
	}
	e.parked.Store(false)
	c.unused.Remove(key)
	c.entries[key] = e
	return e
}

// release drops a subscription. Caller holds c.mu.
func (c *Cache) release(sub *Subscription) {
	e := sub.e
	if _, ok := e.subs[sub]; !ok {
		return
	}
	delete(e.subs, sub)
	e.refs--
	if e.refs > 0 || e.dead.Load() {
		return
	}
	delete(c.entries, e.key)
	if c.unused != nil && e.snap.Err == nil {
		e.parked.Store(true)
		c.unused.Add(e.key, e)
		return
	}
	c.destroy(e)
}

// destroy ends an entry for good. A fetch still in flight runs to completion
// and its result is discarded. Caller holds c.mu.
func (c *Cache) destroy(e *entry) {
	e.dead.Store(true)
	c.publish(Event{Kind: EventEvicted, Key: e.key, Tags: e.snap.Tags, At: c.now()})
}

// onUnusedEvict runs inside the LRU, possibly from its expiry goroutine, so it
// must not take c.mu.
func (c *Cache) onUnusedEvict(key string, e *entry) {
	if !e.parked.CompareAndSwap(true, false) {
		return
	}
	e.dead.Store(true)
	c.publish(Event{Kind: EventEvicted, Key: key, At: c.now()})
}

// startFetch launches a fetch for e. Caller holds c.mu.
func (c *Cache) startFetch(e *entry) {
	e.fetching = true
	e.snap.Loading = true
	go c.run(e)
}

func (c *Cache) run(e *entry) {
	data, tags, err := e.fetch(c.ctx)

	c.mu.Lock()
	if e.dead.Load() {
		c.mu.Unlock()
		return
	}
	e.fetching = false
	evt := Event{Key: e.key, At: c.now()}
	if err != nil {
		e.snap.Err = err
		evt.Kind = EventFailed
		evt.Tags = e.snap.Tags
	} else {
		e.snap.Data = data
		e.snap.Tags = append([]Tag(nil), tags...)
		e.snap.Err = nil
		e.snap.Stale = false
		e.snap.FetchedAt = c.now()
		evt.Kind = EventFetched
		evt.Tags = e.snap.Tags
	}
	if e.pending {
		e.pending = false
		e.snap.Stale = true
		c.startFetch(e)
	} else {
		e.snap.Loading = false
	}
	e.notify()
	c.publish(evt)
	c.mu.Unlock()
}

// publish never blocks, so it is safe under c.mu.
func (c *Cache) publish(evt Event) {
	obs.CacheEvent(string(evt.Kind))
	c.events.Publish(evt)
}

// notify wakes every subscriber. Caller holds c.mu.
func (e *entry) notify() {
	for sub := range e.subs {
		select {
		case sub.ch <- struct{}{}:
		default:
		}
	}
}

func (s Snapshot) copy() Snapshot {
	s.Tags = append([]Tag(nil), s.Tags...)
	return s
}

// Subscription is one holder of a cache entry.
type Subscription struct {
	c    *Cache
	e    *entry
	ch   chan struct{}
	once sync.Once
}

// Key returns the entry key.
func (s *Subscription) Key() string { return s.e.key }

// Snapshot returns the entry's current state.
func (s *Subscription) Snapshot() Snapshot {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.e.snap.copy()
}

// Changed receives a signal after each state change. Signals coalesce.
func (s *Subscription) Changed() <-chan struct{} { return s.ch }

// Wait blocks until the entry has no fetch in flight.
func (s *Subscription) Wait(ctx context.Context) (Snapshot, error) {
	for {
		snap := s.Snapshot()
		if !snap.Loading {
			return snap, snap.Err
		}
		select {
		case <-s.ch:
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-s.c.ctx.Done():
			return snap, ErrClosed
		}
	}
}

// Refetch forces a new fetch, or queues one when a fetch is already running.
func (s *Subscription) Refetch() {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	e := s.e
	if e.dead.Load() {
		return
	}
	if e.fetching {
		e.pending = true
		return
	}
	s.c.startFetch(e)
	e.notify()
}

// Unsubscribe releases the entry. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.c.mu.Lock()
		defer s.c.mu.Unlock()
		s.c.release(s)
	})
}
