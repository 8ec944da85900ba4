// Package mutation applies user-initiated changes to the cache before the backend confirms
// them, rolling back to the captured snapshot when the backend rejects the change.
package mutation

import (
	"context"
	"fmt"
	"log"

	"cvrd/client/internal/cache"
)

// Mutation describes one optimistic change to a cached resource.
type Mutation struct {
	Key string
	// Apply returns the optimistic value for the current cached value. It runs while the
	// cache entry is locked, so it must be quick and must not touch the cache. It must not
	// modify current in place; the snapshot shares it.
	Apply func(current any) (any, error)
	Send  func(ctx context.Context) error
	// Invalidate lists other keys the change affects.
	Invalidate []string
}

// Error reports a mutation the backend rejected after its optimistic value was rolled back.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("mutation %s rolled back: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Coordinator struct {
	cache   *cache.Cache
	onError func(key string, err error)
}

// New returns a coordinator writing to c. onError, if set, receives every rejected mutation
// so it can be shown to the user.
func New(c *cache.Cache, onError func(key string, err error)) *Coordinator {
	return &Coordinator{cache: c, onError: onError}
}

// Do runs m: snapshot, apply locally, send, then keep or roll back. Either way the affected
// keys are invalidated so the cache reconciles with the server.
//
// Overlapping mutations on one key apply on top of each other and each snapshot the value
// they found, so a failing later mutation rolls back to the earlier mutation's optimistic
// value, not the server's.
func (c *Coordinator) Do(ctx context.Context, m Mutation) error {
	snap, err := c.cache.Update(m.Key, m.Apply)
	if err != nil {
		return fmt.Errorf("apply %s: %w", m.Key, err)
	}

	sendErr := m.Send(ctx)
	if sendErr != nil {
		c.cache.Restore(snap)
		log.Printf("mutation: %s rolled back: %v", m.Key, sendErr)
	}

	c.cache.Invalidate(append([]string{m.Key}, m.Invalidate...)...)

	if sendErr != nil {
		if c.onError != nil {
			c.onError(m.Key, sendErr)
		}
		return &Error{Key: m.Key, Err: sendErr}
	}
	return nil
}

// Update adapts a typed update function to Mutation.Apply. A missing cached value is passed
// to fn as the zero T.
func Update[T any](fn func(current T) (T, error)) func(any) (any, error) {
	return func(current any) (any, error) {
		var value T
		if current != nil {
			typed, ok := current.(T)
			if !ok {
				return nil, fmt.Errorf("cached value is %T, want %T", current, value)
			}
			value = typed
		}
		return fn(value)
	}
}

// ReplaceItem returns a copy of items with every element matching match replaced by
// update(element). It reports whether anything matched.
func ReplaceItem[T any](items []T, match func(T) bool, update func(T) T) ([]T, bool) {
	out := make([]T, len(items))
	found := false
	for i, item := range items {
		if match(item) {
			out[i] = update(item)
			found = true
			continue
		}
		out[i] = item
	}
	return out, found
}
