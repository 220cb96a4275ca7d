package weave

import (
	"reflect"
	"strings"
	"sync"
)

// CacheKeyer is implemented by values that name their own cache entry.
type CacheKeyer interface {
	CacheKey() string
}

var cacheKeyerType = reflect.TypeFor[CacheKeyer]()

// Cache is an in-process store of values written by key.
// It is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]any
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]any)}
}

var sharedCache = NewCache()

// SharedCache returns the process-wide cache used by CacheCodecs built
// without one.
func SharedCache() *Cache {
	return sharedCache
}

// Put stores v under key. An existing entry is replaced.
func (c *Cache) Put(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = v
}

// Get returns the value stored under key.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Reset removes every entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]any)
}

// CacheCodec is an opaque codec that writes values of its types as cache
// keys. The value itself is stored in the cache; readers in the same process
// get it back by key. Keys come from CacheKey when the type implements
// CacheKeyer, else from a digest of the value.
type CacheCodec struct {
	cache  *Cache
	digest Digester
	types  map[reflect.Type]struct{}
}

// NewCacheCodec builds a codec for the given types. A nil cache uses
// SharedCache; a nil digester uses BLAKE2b.
func NewCacheCodec(cache *Cache, digest Digester, types ...reflect.Type) *CacheCodec {
	if cache == nil {
		cache = sharedCache
	}
	if digest == nil {
		digest = BLAKE2bDigester()
	}
	c := &CacheCodec{cache: cache, digest: digest, types: make(map[reflect.Type]struct{}, len(types))}
	for _, t := range types {
		c.types[t] = struct{}{}
		registerTypeOf(t)
	}
	return c
}

// Accepts implements Opaque.
func (c *CacheCodec) Accepts(t reflect.Type) bool {
	_, ok := c.types[t]
	return ok
}

// Key returns the cache key of v.
func (c *CacheCodec) Key(v reflect.Value) (string, error) {
	if v.Type().Implements(cacheKeyerType) {
		return v.Interface().(CacheKeyer).CacheKey(), nil
	}
	key, err := DigestValue(c.digest, v.Interface())
	if err != nil {
		return "", wrapSerializationError(ErrUnsupportedType, "", err)
	}
	return key, nil
}

// Encode implements Opaque.
func (c *CacheCodec) Encode(_ Writer, n *Node, v reflect.Value) error {
	key, err := c.Key(v)
	if err != nil {
		return err
	}
	if key == "" {
		return newSerializationError(ErrMalformed, "", "empty cache key for %s", v.Type())
	}
	c.cache.Put(key, v.Interface())
	n.Text = key
	return nil
}

// Decode implements Opaque.
func (c *CacheCodec) Decode(_ Reader, n *Node, t reflect.Type) (reflect.Value, error) {
	key := strings.TrimSpace(n.Text)
	v, ok := c.cache.Get(key)
	if !ok {
		return reflect.Value{}, newSerializationError(ErrUnresolvedRef, "", "no cache entry %q", key)
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Type() != t {
		return reflect.Value{}, newSerializationError(ErrUnsupportedType, "", "cache entry %q is %T, want %s", key, v, t)
	}
	return rv, nil
}
