// Package api describes the rental backend endpoints as data and runs them
// through the transport and the tag cache.
//
// Reads are Query values: they provide cache tags derived from their result.
// Writes are Mutation values: on success they invalidate tags, which makes
// every subscribed read providing a matching tag refetch once.
package api

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"rentdesk.org/internal/audit"
	"rentdesk.org/internal/auth"
	"rentdesk.org/internal/cache"
	"rentdesk.org/internal/domain"
	"rentdesk.org/internal/transport"
)

// SessionSink receives auth outcomes of the session endpoints.
type SessionSink interface {
	SetAuth(user *domain.User)
	SetAuthLoading(loading bool)
	Logout()
	CurrentUser() *domain.User
}

// Client binds the transport, the cache and the session state.
type Client struct {
	http    *transport.Client
	cache   *cache.Cache
	session SessionSink
}

// New wires a client. session may be nil when no state is tracked.
func New(tc *transport.Client, c *cache.Cache, session SessionSink) *Client {
	if c == nil {
		c = cache.New()
	}
	return &Client{http: tc, cache: c, session: session}
}

// Transport returns the underlying transport.
func (c *Client) Transport() *transport.Client { return c.http }

// Cache returns the tag cache backing reads.
func (c *Client) Cache() *cache.Cache { return c.cache }

// Query is a read endpoint taking A and returning T.
type Query[A, T any] struct {
	Name     string
	Request  func(A) transport.Request
	Provides func(A, T) []cache.Tag
}

// Mutation is a write endpoint taking A and returning T.
type Mutation[A, T any] struct {
	Name        string
	Request     func(A) transport.Request
	Invalidates func(A, T) []cache.Tag
}

// Key returns the cache key of q called with args.
func (q Query[A, T]) Key(args A) string {
	return cache.Key(q.Name, args)
}

func (q Query[A, T]) fetcher(c *Client, args A) cache.FetchFunc {
	return func(ctx context.Context) (any, []cache.Tag, error) {
		var out T
		if err := c.http.Do(ctx, q.Request(args), &out); err != nil {
			return nil, nil, err
		}
		var tags []cache.Tag
		if q.Provides != nil {
			tags = q.Provides(args, out)
		}
		return out, tags, nil
	}
}

// Fetch reads q once, sharing the cache entry with any live watcher.
func Fetch[A, T any](ctx context.Context, c *Client, q Query[A, T], args A) (T, error) {
	snap, err := c.cache.Query(ctx, q.Key(args), q.fetcher(c, args))
	data, _ := snap.Data.(T)
	if err != nil {
		return data, fmt.Errorf("%s: %w", q.Name, err)
	}
	return data, nil
}

// Watch subscribes to q. The caller must Close the watcher.
func Watch[A, T any](c *Client, q Query[A, T], args A) *Watcher[T] {
	return &Watcher[T]{sub: c.cache.Subscribe(q.Key(args), q.fetcher(c, args))}
}

// Run executes m and invalidates the tags it names on success. Every run is
// journalled.
func Run[A, T any](ctx context.Context, c *Client, m Mutation[A, T], args A) (T, error) {
	ctx = c.withIdentity(ctx)
	var out T
	err := c.http.Do(ctx, m.Request(args), &out)

	var tags []cache.Tag
	if err == nil && m.Invalidates != nil {
		tags = m.Invalidates(args, out)
	}
	labels := make([]string, len(tags))
	for i, t := range tags {
		labels[i] = t.String()
	}
	audit.Mutation(ctx, m.Name, err, labels)

	if err != nil {
		return out, fmt.Errorf("%s: %w", m.Name, err)
	}
	c.cache.Invalidate(tags...)
	return out, nil
}

func (c *Client) withIdentity(ctx context.Context) context.Context {
	if _, ok := auth.IdentityFromContext(ctx); ok || c.session == nil {
		return ctx
	}
	if u := c.session.CurrentUser(); u != nil {
		return auth.ContextWithUser(ctx, strconv.Itoa(u.ID), u.Email)
	}
	return ctx
}

// Result is a typed cache snapshot.
type Result[T any] struct {
	Data      T
	HasData   bool
	Loading   bool
	Stale     bool
	Err       error
	FetchedAt time.Time
}

// Watcher follows one cached read.
type Watcher[T any] struct {
	sub *cache.Subscription
}

// Current returns the latest state.
func (w *Watcher[T]) Current() Result[T] {
	return toResult[T](w.sub.Snapshot())
}

// Changed signals after each state change.
func (w *Watcher[T]) Changed() <-chan struct{} { return w.sub.Changed() }

// Wait blocks until no fetch is in flight.
func (w *Watcher[T]) Wait(ctx context.Context) (Result[T], error) {
	snap, err := w.sub.Wait(ctx)
	return toResult[T](snap), err
}

// Refetch asks for fresh data.
func (w *Watcher[T]) Refetch() { w.sub.Refetch() }

// Close releases the cache entry.
func (w *Watcher[T]) Close() { w.sub.Unsubscribe() }

func toResult[T any](s cache.Snapshot) Result[T] {
	r := Result[T]{Loading: s.Loading, Stale: s.Stale, Err: s.Err, FetchedAt: s.FetchedAt}
	if data, ok := s.Data.(T); ok {
		r.Data = data
		r.HasData = true
	}
	return r
}
