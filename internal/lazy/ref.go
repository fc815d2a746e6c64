// Package lazy provides deferred-load wrappers for relationship fields.
//
// A reference starts unloaded, holding a loader bound by the mapper during
// row decode, and becomes loaded exactly once. Concurrent first callers
// serialize on the reference: one runs the loader, the rest wait and observe
// its result or until their own context ends. Copies of a reference share
// state.
package lazy

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
)

// ErrUnbound is returned when a reference was never populated by a query,
// for example because relationships were not requested.
var ErrUnbound = errors.New("lazy reference is not bound to a loader")

// Loader materializes the value behind a reference.
type Loader func(ctx context.Context) (any, error)

// Binder is implemented by Ref and List. The mapper uses it to recognise
// lazy fields and to populate them without knowing their type parameter.
type Binder interface {
	// ElemType returns the related entity type.
	ElemType() reflect.Type

	// Many reports whether the reference holds a collection.
	Many() bool

	// Bind returns a new unloaded reference of the same type.
	Bind(load Loader) any

	// Resolved returns a new reference of the same type, already loaded
	// with v (which may be nil).
	Resolved(v any) any

	// Peek returns the loaded value, if any, without loading.
	Peek() (any, bool)
}

type cell[V any] struct {
	mu      sync.Mutex
	loaded  atomic.Bool
	value   V
	load    Loader
	loading chan struct{}
	loads   atomic.Int32
}

// get runs the loader at most once at a time. Waiters block on the running
// load's channel, not on mu, so they can leave when their own ctx ends. A
// failed load leaves the cell unloaded and the next caller retries.
func (c *cell[V]) get(ctx context.Context) (V, error) {
	var zero V
	for {
		if c.loaded.Load() {
			return c.value, nil
		}

		c.mu.Lock()
		if c.loaded.Load() {
			c.mu.Unlock()
			return c.value, nil
		}
		if c.load == nil {
			c.mu.Unlock()
			return zero, ErrUnbound
		}
		if wait := c.loading; wait != nil {
			c.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
		done := make(chan struct{})
		c.loading = done
		load := c.load
		c.mu.Unlock()

		return c.run(ctx, load, done)
	}
}

func (c *cell[V]) run(ctx context.Context, load Loader, done chan struct{}) (V, error) {
	// Waiters are released even if the loader panics.
	defer func() {
		c.mu.Lock()
		c.loading = nil
		c.mu.Unlock()
		close(done)
	}()

	c.loads.Add(1)
	v, err := call[V](ctx, load)
	if err != nil {
		return v, err
	}
	c.mu.Lock()
	c.value = v
	c.load = nil
	c.loaded.Store(true)
	c.mu.Unlock()
	return v, nil
}

func call[V any](ctx context.Context, load Loader) (V, error) {
	var zero V
	raw, err := load(ctx)
	if err != nil || raw == nil {
		return zero, err
	}
	v, ok := raw.(V)
	if !ok {
		return zero, errors.New("lazy loader returned a value of the wrong type")
	}
	return v, nil
}

func (c *cell[V]) peek() (V, bool) {
	if c.loaded.Load() {
		return c.value, true
	}
	var zero V
	return zero, false
}

func resolvedCell[V any](v any) *cell[V] {
	c := &cell[V]{}
	if v != nil {
		c.value = v.(V)
	}
	c.loaded.Store(true)
	return c
}

// Ref defers loading of a to-one relationship.
type Ref[T any] struct {
	c *cell[*T]
}

// Loaded returns a reference that is already resolved to v.
func Loaded[T any](v *T) Ref[T] {
	return Ref[T]{c: resolvedCell[*T](v)}
}

// Get returns the related entity, loading it on first access. A nil entity
// with a nil error means the relationship is empty.
func (r Ref[T]) Get(ctx context.Context) (*T, error) {
	if r.c == nil {
		return nil, ErrUnbound
	}
	return r.c.get(ctx)
}

// ForceLoad loads the relationship now if it is not loaded yet.
func (r Ref[T]) ForceLoad(ctx context.Context) error {
	_, err := r.Get(ctx)
	return err
}

// IsLoaded reports whether the value has been materialized.
func (r Ref[T]) IsLoaded() bool {
	return r.c != nil && r.c.loaded.Load()
}

// Loads returns how many times the loader ran. It never exceeds one after
// a successful load.
func (r Ref[T]) Loads() int {
	if r.c == nil {
		return 0
	}
	return int(r.c.loads.Load())
}

func (r Ref[T]) ElemType() reflect.Type { return reflect.TypeFor[T]() }
func (r Ref[T]) Many() bool             { return false }

func (r Ref[T]) Bind(load Loader) any {
	return Ref[T]{c: &cell[*T]{load: load}}
}

func (r Ref[T]) Resolved(v any) any {
	return Ref[T]{c: resolvedCell[*T](v)}
}

func (r Ref[T]) Peek() (any, bool) {
	if r.c == nil {
		return nil, false
	}
	v, ok := r.c.peek()
	if !ok || v == nil {
		return nil, ok
	}
	return v, true
}

// List defers loading of a to-many relationship.
type List[T any] struct {
	c *cell[[]T]
}

// LoadedList returns a list that is already resolved to v.
func LoadedList[T any](v []T) List[T] {
	return List[T]{c: resolvedCell[[]T](v)}
}

// Get returns the related entities, loading them on first access. An empty
// relationship yields an empty slice.
func (l List[T]) Get(ctx context.Context) ([]T, error) {
	if l.c == nil {
		return nil, ErrUnbound
	}
	v, err := l.c.get(ctx)
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = []T{}
	}
	return v, nil
}

// ForceLoad loads the relationship now if it is not loaded yet.
func (l List[T]) ForceLoad(ctx context.Context) error {
	_, err := l.Get(ctx)
	return err
}

// IsLoaded reports whether the value has been materialized.
func (l List[T]) IsLoaded() bool {
	return l.c != nil && l.c.loaded.Load()
}

func (l List[T]) ElemType() reflect.Type { return reflect.TypeFor[T]() }
func (l List[T]) Many() bool             { return true }

func (l List[T]) Bind(load Loader) any {
	return List[T]{c: &cell[[]T]{load: load}}
}

func (l List[T]) Resolved(v any) any {
	return List[T]{c: resolvedCell[[]T](v)}
}

func (l List[T]) Peek() (any, bool) {
	if l.c == nil {
		return nil, false
	}
	v, ok := l.c.peek()
	if !ok {
		return nil, false
	}
	return v, true
}
