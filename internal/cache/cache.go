// Package cache keeps server-fetched collections in memory with a freshness window,
// de-duplicated in-flight fetches, retries and explicit invalidation.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultStaleAfter = 5 * time.Minute
	DefaultRetries    = 3
)

const (
	KeyCards                = "cards"
	KeyTransactions         = "transactions"
	KeySubscriptions        = "subscriptions"
	KeyNotificationSettings = "notification-settings"
)

// CardTransactionsKey scopes the transaction list of a single card under KeyTransactions so
// InvalidatePrefix(KeyTransactions) reaches it.
func CardTransactionsKey(cardID string) string {
	return KeyTransactions + ":" + cardID
}

var ErrNoFetcher = errors.New("no fetch function registered")

// FetchFunc loads the current server value of a resource.
type FetchFunc func(ctx context.Context) (any, error)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Entry is the observable state of one cached resource.
type Entry struct {
	Key         string    `json:"key"`
	Data        any       `json:"data,omitempty"`
	HasData     bool      `json:"hasData"`
	FetchedAt   time.Time `json:"fetchedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Invalidated bool      `json:"invalidated"`
	Fetching    bool      `json:"fetching"`
	Err         error     `json:"-"`
}

// Snapshot is the value of a resource captured before a local write.
type Snapshot struct {
	Key     string
	Data    any
	HasData bool
}

type Options struct {
	StaleAfter time.Duration
	// Retries is the number of extra attempts after a failed fetch.
	Retries    int
	NewBackOff func() backoff.BackOff
	Clock      Clock
}

type entry struct {
	Entry
	fetch FetchFunc
	// version counts local writes, generation counts invalidations. A fetch that started
	// before either changed must not be stored as fresh.
	version    uint64
	generation uint64
	inflight   int
}

type Cache struct {
	staleAfter time.Duration
	retries    int
	newBackOff func() backoff.BackOff
	clock      Clock
	group      singleflight.Group

	mu        sync.Mutex
	entries   map[string]*entry
	watchers  map[string]map[int]func(Entry)
	nextWatch int
}

func New(opts Options) *Cache {
	c := &Cache{
		staleAfter: opts.StaleAfter,
		retries:    opts.Retries,
		newBackOff: opts.NewBackOff,
		clock:      opts.Clock,
		entries:    make(map[string]*entry),
		watchers:   make(map[string]map[int]func(Entry)),
	}
	if c.staleAfter <= 0 {
		c.staleAfter = DefaultStaleAfter
	}
	if c.retries < 0 {
		c.retries = 0
	}
	if c.newBackOff == nil {
		c.newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			return b
		}
	}
	if c.clock == nil {
		c.clock = systemClock{}
	}
	return c
}

func (c *Cache) entryLocked(key string) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{Entry: Entry{Key: key}}
		c.entries[key] = e
	}
	return e
}

func (c *Cache) staleLocked(e *entry) bool {
	return !e.HasData || !c.clock.Now().Before(e.FetchedAt.Add(c.staleAfter))
}

// Fetch returns fresh cached data, or blocks on a network fetch when the entry is
// missing, stale or invalidated. A failed fetch leaves previous data in place.
func (c *Cache) Fetch(ctx context.Context, key string, fn FetchFunc) (any, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	if fn != nil {
		e.fetch = fn
	}
	if !e.Invalidated && !c.staleLocked(e) {
		data := e.Data
		c.mu.Unlock()
		return data, nil
	}
	c.mu.Unlock()
	return c.load(ctx, key, false)
}

// Read serves cached data immediately, revalidating in the background once it is stale.
// It blocks only when there is nothing to show or the entry was invalidated.
func (c *Cache) Read(ctx context.Context, key string, fn FetchFunc) (any, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	if fn != nil {
		e.fetch = fn
	}
	if e.HasData && !e.Invalidated {
		data := e.Data
		stale := c.staleLocked(e)
		c.mu.Unlock()
		if stale {
			c.revalidate(key)
		}
		return data, nil
	}
	c.mu.Unlock()
	return c.load(ctx, key, false)
}

// Refetch forces a network fetch for key using its registered fetch function.
func (c *Cache) Refetch(ctx context.Context, key string) (any, error) {
	return c.load(ctx, key, true)
}

// load joins or starts the single in-flight fetch for key. The fetch itself is not bound to
// ctx; a caller that gives up only stops waiting. Unless force is set, the fetch is skipped
// when another one made the entry fresh in the meantime.
func (c *Cache) load(ctx context.Context, key string, force bool) (any, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		return c.run(key, force)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) revalidate(key string) {
	go func() {
		if _, err := c.load(context.Background(), key, false); err != nil {
			log.Printf("cache: revalidate %s: %v", key, err)
		}
	}()
}

func (c *Cache) run(key string, force bool) (any, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	if !force && !e.Invalidated && !c.staleLocked(e) {
		data := e.Data
		c.mu.Unlock()
		return data, nil
	}
	fn := e.fetch
	version, generation := e.version, e.generation
	e.inflight++
	e.Fetching = true
	c.mu.Unlock()
	c.notify(key)

	var (
		data any
		err  error
	)
	if fn == nil {
		err = fmt.Errorf("fetch %s: %w", key, ErrNoFetcher)
	} else {
		data, err = backoff.Retry(context.Background(), func() (any, error) {
			return fn(context.Background())
		}, backoff.WithBackOff(c.newBackOff()), backoff.WithMaxTries(uint(c.retries+1)))
	}

	c.mu.Lock()
	current, ok := c.entries[key]
	if !ok || current != e {
		// Cleared while in flight.
		c.mu.Unlock()
		return data, err
	}
	e.inflight--
	e.Fetching = e.inflight > 0
	switch {
	case err != nil:
		e.Err = err
	case e.version != version:
		log.Printf("cache: discard fetch result for %s, written locally while in flight", key)
	case e.generation != generation:
		log.Printf("cache: discard fetch result for %s, invalidated while in flight", key)
	default:
		now := c.clock.Now()
		e.Data = data
		e.HasData = true
		e.FetchedAt = now
		e.UpdatedAt = now
		e.Invalidated = false
		e.Err = nil
	}
	c.mu.Unlock()
	c.notify(key)
	return data, err
}

// Peek returns the current entry for key without fetching.
func (c *Cache) Peek(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	return e.Entry, true
}

// SetData writes a local value for key. Fetches already in flight for key will not
// overwrite it.
func (c *Cache) SetData(key string, data any) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.Data = data
	e.HasData = true
	e.UpdatedAt = c.clock.Now()
	e.version++
	c.mu.Unlock()
	c.notify(key)
}

// Update replaces the data of key with fn(current) in one step and returns the value it
// replaced. Concurrent updates of the same key each see the previous update's result. When
// fn fails the entry is left untouched.
func (c *Cache) Update(key string, fn func(current any) (any, error)) (Snapshot, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	snap := Snapshot{Key: key, Data: e.Data, HasData: e.HasData}
	next, err := fn(e.Data)
	if err != nil {
		c.mu.Unlock()
		return snap, err
	}
	e.Data = next
	e.HasData = true
	e.UpdatedAt = c.clock.Now()
	e.version++
	c.mu.Unlock()
	c.notify(key)
	return snap, nil
}

func (c *Cache) Snapshot(key string) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{Key: key}
	if e, ok := c.entries[key]; ok {
		snap.Data = e.Data
		snap.HasData = e.HasData
	}
	return snap
}

// Restore puts a snapshot back as the entry's data.
func (c *Cache) Restore(snap Snapshot) {
	c.mu.Lock()
	e := c.entryLocked(snap.Key)
	e.Data = snap.Data
	e.HasData = snap.HasData
	e.UpdatedAt = c.clock.Now()
	e.version++
	c.mu.Unlock()
	c.notify(snap.Key)
}

// Invalidate marks keys as needing a refetch. Watched keys refetch in the background;
// the rest refetch on their next read.
func (c *Cache) Invalidate(keys ...string) {
	c.mu.Lock()
	var touched []string
	for _, key := range keys {
		e, ok := c.entries[key]
		if !ok {
			continue
		}
		e.Invalidated = true
		e.generation++
		// Later reads must not join a fetch that started before the invalidation.
		c.group.Forget(key)
		touched = append(touched, key)
	}
	watched := c.watchedLocked(touched)
	c.mu.Unlock()

	for _, key := range touched {
		c.notify(key)
	}
	for _, key := range watched {
		c.revalidate(key)
	}
}

// InvalidatePrefix invalidates prefix itself and every key scoped under it.
func (c *Cache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	var keys []string
	for key := range c.entries {
		if key == prefix || strings.HasPrefix(key, prefix+":") {
			keys = append(keys, key)
		}
	}
	c.mu.Unlock()
	sort.Strings(keys)
	c.Invalidate(keys...)
}

// RevalidateStale refetches, in the background, every stale or invalidated entry that has
// a fetch function. Call it when the app regains focus or the network comes back.
func (c *Cache) RevalidateStale() int {
	c.mu.Lock()
	var keys []string
	for key, e := range c.entries {
		if e.fetch == nil || e.Fetching {
			continue
		}
		if e.Invalidated || c.staleLocked(e) {
			keys = append(keys, key)
		}
	}
	c.mu.Unlock()

	sort.Strings(keys)
	for _, key := range keys {
		c.revalidate(key)
	}
	return len(keys)
}

func (c *Cache) watchedLocked(keys []string) []string {
	var out []string
	for _, key := range keys {
		if len(c.watchers[key]) > 0 && c.entries[key].fetch != nil {
			out = append(out, key)
		}
	}
	return out
}

// Watch calls fn with the entry for key after every change. The returned func stops it.
func (c *Cache) Watch(key string, fn func(Entry)) func() {
	c.mu.Lock()
	id := c.nextWatch
	c.nextWatch++
	if c.watchers[key] == nil {
		c.watchers[key] = make(map[int]func(Entry))
	}
	c.watchers[key][id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.watchers[key], id)
		if len(c.watchers[key]) == 0 {
			delete(c.watchers, key)
		}
		c.mu.Unlock()
	}
}

func (c *Cache) notify(key string) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	snapshot := e.Entry
	fns := make([]func(Entry), 0, len(c.watchers[key]))
	for _, fn := range c.watchers[key] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}

// Entries lists every cached entry ordered by key.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.Entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Clear drops every entry, e.g. on logout. Results of fetches still in flight are
// discarded.
func (c *Cache) Clear() {
	c.mu.Lock()
	for key := range c.entries {
		c.group.Forget(key)
	}
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
}

// As converts a cache result to T.
func As[T any](data any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if data == nil {
		return zero, nil
	}
	value, ok := data.(T)
	if !ok {
		return zero, fmt.Errorf("cache: unexpected %T, want %T", data, zero)
	}
	return value, nil
}
