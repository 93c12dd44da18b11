package resource_cache

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/Carmen-Shannon/oxy-instancer/engine/logger"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/descriptor_key"
	"github.com/charmbracelet/log"
)

var (
	// ErrNilResource is returned when a factory reports success but hands back a zero value.
	ErrNilResource = errors.New("resource_cache: factory returned a nil resource")

	// ErrNoFactory is returned by Get when the cache was built without WithFactory.
	ErrNoFactory = errors.New("resource_cache: no factory configured")

	// ErrTornDown is returned by every acquisition after Teardown.
	ErrTornDown = errors.New("resource_cache: cache has been torn down")
)

// Stats is a snapshot of cache activity.
type Stats struct {
	// Len is the number of live entries.
	Len int
	// Hits counts acquisitions served from a live entry.
	Hits uint64
	// Misses counts acquisitions that ran a factory.
	Misses uint64
	// Waits counts acquisitions that waited on another caller's in-flight creation.
	Waits uint64
	// Creations counts factories that succeeded.
	Creations uint64
	// Releases counts entries handed to the releaser.
	Releases uint64
}

type entry[T any] struct {
	value T
	err   error
	ready chan struct{}
	done  bool
	refs  int
	seq   uint64
}

type resourceCache[T any] struct {
	mu       *sync.Mutex
	label    string
	entries  map[descriptor_key.Key]*entry[T]
	seq      uint64
	stats    Stats
	tornDown bool

	factory  func(descriptor any) (T, error)
	releaser func(T)
	logger   *log.Logger
}

// ResourceCache memoizes GPU objects by descriptor key. For a given cache at most one
// object is ever created per key: the first caller for an unseen key installs an in-flight
// marker and runs the factory, and every concurrent caller for that key waits for the
// same result.
//
// Every successful acquisition counts as one reference. Entries are dropped when their
// reference count reaches zero, on Evict, or at Teardown, and dropped values are passed
// to the releaser.
type ResourceCache[T any] interface {
	// Label returns the cache name used in logs.
	//
	// Returns:
	//   - string: the label
	Label() string

	// Get canonicalizes the descriptor and acquires the object for its key, creating it
	// with the configured factory on first use.
	//
	// Parameters:
	//   - descriptor: pure value data describing the object
	//
	// Returns:
	//   - T: the shared object
	//   - error: a canonicalization error, ErrNoFactory, ErrTornDown or the factory's error
	Get(descriptor any) (T, error)

	// Acquire is Get that also returns the key the object was stored under, so the caller
	// can Release it later.
	//
	// Parameters:
	//   - descriptor: pure value data describing the object
	//
	// Returns:
	//   - T: the shared object
	//   - descriptor_key.Key: the canonical key
	//   - error: same as Get
	Acquire(descriptor any) (T, descriptor_key.Key, error)

	// GetOrCreate acquires the object stored under key, calling factory if there is none.
	// A failed factory leaves no entry behind, so a later call retries.
	//
	// Parameters:
	//   - key: the canonical key
	//   - factory: creates the object; it runs outside the cache lock
	//
	// Returns:
	//   - T: the shared object
	//   - error: ErrTornDown, ErrNilResource or the factory's error
	GetOrCreate(key descriptor_key.Key, factory func() (T, error)) (T, error)

	// Lookup returns a live object without acquiring a reference.
	//
	// Parameters:
	//   - key: the canonical key
	//
	// Returns:
	//   - T: the object, or the zero value
	//   - bool: true if a live entry exists
	Lookup(key descriptor_key.Key) (T, bool)

	// RefCount returns the number of outstanding acquisitions of key, 0 if absent.
	//
	// Parameters:
	//   - key: the canonical key
	//
	// Returns:
	//   - int: the reference count
	RefCount(key descriptor_key.Key) int

	// Release drops one reference. When the count reaches zero the entry is removed and
	// its object released.
	//
	// Parameters:
	//   - key: the canonical key
	//
	// Returns:
	//   - bool: true if this call removed the entry
	Release(key descriptor_key.Key) bool

	// Evict removes the entry regardless of its reference count and releases its object.
	//
	// Parameters:
	//   - key: the canonical key
	//
	// Returns:
	//   - bool: true if an entry was removed
	Evict(key descriptor_key.Key) bool

	// Keys returns the keys of live entries in creation order.
	//
	// Returns:
	//   - []descriptor_key.Key: the keys
	Keys() []descriptor_key.Key

	// Len returns the number of live entries.
	//
	// Returns:
	//   - int: the entry count
	Len() int

	// Stats returns a snapshot of cache activity.
	//
	// Returns:
	//   - Stats: the counters
	Stats() Stats

	// Teardown releases every live entry in reverse creation order. The cache is unusable
	// afterwards; objects still being created are released by their creator when it finishes.
	Teardown()
}

var _ ResourceCache[int] = &resourceCache[int]{}

// NewResourceCache creates an empty cache.
//
// Parameters:
//   - label: the cache name used in logs
//   - options: functional options such as WithFactory and WithReleaser
//
// Returns:
//   - ResourceCache[T]: the new cache
func NewResourceCache[T any](label string, options ...ResourceCacheBuilderOption[T]) ResourceCache[T] {
	c := &resourceCache[T]{
		mu:      &sync.Mutex{},
		label:   label,
		entries: make(map[descriptor_key.Key]*entry[T]),
		logger:  logger.For("cache"),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *resourceCache[T]) Label() string {
	return c.label
}

func (c *resourceCache[T]) Get(descriptor any) (T, error) {
	v, _, err := c.Acquire(descriptor)
	return v, err
}

func (c *resourceCache[T]) Acquire(descriptor any) (T, descriptor_key.Key, error) {
	var zero T
	if c.factory == nil {
		return zero, "", ErrNoFactory
	}
	key, err := descriptor_key.Canonicalize(descriptor)
	if err != nil {
		return zero, "", fmt.Errorf("%s: %w", c.label, err)
	}
	v, err := c.GetOrCreate(key, func() (T, error) {
		return c.factory(descriptor)
	})
	if err != nil {
		return zero, "", err
	}
	return v, key, nil
}

func (c *resourceCache[T]) GetOrCreate(key descriptor_key.Key, factory func() (T, error)) (T, error) {
	var zero T

	c.mu.Lock()
	for {
		if c.tornDown {
			c.mu.Unlock()
			return zero, ErrTornDown
		}
		e, ok := c.entries[key]
		if !ok {
			break
		}
		if e.done {
			e.refs++
			c.stats.Hits++
			c.mu.Unlock()
			return e.value, nil
		}

		// another caller is creating this key
		c.stats.Waits++
		c.mu.Unlock()
		<-e.ready
		c.mu.Lock()
		if e.err != nil {
			c.mu.Unlock()
			return zero, e.err
		}
		// re-check: the entry may have been released or evicted while this caller was waking
	}

	e := &entry[T]{ready: make(chan struct{})}
	c.entries[key] = e
	c.stats.Misses++
	c.mu.Unlock()

	v, err := factory()
	if err == nil && isZero(v) {
		err = ErrNilResource
	}
	if err != nil {
		err = fmt.Errorf("%s: create %s: %w", c.label, key.Short(), err)
	}

	c.mu.Lock()
	orphaned := err == nil && c.tornDown
	if orphaned {
		err = ErrTornDown
	}
	if err != nil {
		if c.entries[key] == e {
			delete(c.entries, key)
		}
		e.err = err
		close(e.ready)
		c.mu.Unlock()
		if orphaned {
			c.release(v)
		}
		return zero, err
	}

	c.seq++
	e.value = v
	e.done = true
	e.refs = 1
	e.seq = c.seq
	c.stats.Creations++
	close(e.ready)
	c.mu.Unlock()

	c.logger.Debug("created", "cache", c.label, "key", key.Short())
	return v, nil
}

func (c *resourceCache[T]) Lookup(key descriptor_key.Key) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && e.done {
		return e.value, true
	}
	var zero T
	return zero, false
}

func (c *resourceCache[T]) RefCount(key descriptor_key.Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && e.done {
		return e.refs
	}
	return 0
}

func (c *resourceCache[T]) Release(key descriptor_key.Key) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || !e.done {
		c.mu.Unlock()
		return false
	}
	e.refs--
	if e.refs > 0 {
		c.mu.Unlock()
		return false
	}
	delete(c.entries, key)
	c.mu.Unlock()

	c.release(e.value)
	return true
}

func (c *resourceCache[T]) Evict(key descriptor_key.Key) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || !e.done {
		c.mu.Unlock()
		return false
	}
	delete(c.entries, key)
	c.mu.Unlock()

	c.logger.Debug("evicted", "cache", c.label, "key", key.Short(), "refs", e.refs)
	c.release(e.value)
	return true
}

func (c *resourceCache[T]) Keys() []descriptor_key.Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sortedKeys(false)
}

func (c *resourceCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, e := range c.entries {
		if e.done {
			n++
		}
	}
	return n
}

func (c *resourceCache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	for _, e := range c.entries {
		if e.done {
			s.Len++
		}
	}
	return s
}

func (c *resourceCache[T]) Teardown() {
	c.mu.Lock()
	if c.tornDown {
		c.mu.Unlock()
		return
	}
	c.tornDown = true
	keys := c.sortedKeys(true)
	values := make([]T, 0, len(keys))
	for _, k := range keys {
		values = append(values, c.entries[k].value)
	}
	// in-flight entries stay until their creator observes tornDown
	for _, k := range keys {
		delete(c.entries, k)
	}
	c.mu.Unlock()

	for _, v := range values {
		c.release(v)
	}
	c.logger.Debug("torn down", "cache", c.label, "released", len(values))
}

// sortedKeys returns live keys by creation order. Caller must hold c.mu.
func (c *resourceCache[T]) sortedKeys(reverse bool) []descriptor_key.Key {
	keys := make([]descriptor_key.Key, 0, len(c.entries))
	for k, e := range c.entries {
		if e.done {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if reverse {
			return c.entries[keys[i]].seq > c.entries[keys[j]].seq
		}
		return c.entries[keys[i]].seq < c.entries[keys[j]].seq
	})
	return keys
}

func (c *resourceCache[T]) release(v T) {
	c.mu.Lock()
	c.stats.Releases++
	c.mu.Unlock()

	if c.releaser != nil {
		c.releaser(v)
	}
}

func isZero[T any](v T) bool {
	rv := reflect.ValueOf(&v).Elem()
	return rv.IsZero()
}
