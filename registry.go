package weave

import (
	"reflect"
	"sync"
)

// typeRegistry is the process-wide canonical name cache.
// It only grows: names are never evicted or rebound.
type typeRegistry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]string
	byName map[string]reflect.Type
	byFull map[string]reflect.Type // canonical name without module qualifier
}

var types = &typeRegistry{
	byType: make(map[reflect.Type]string),
	byName: make(map[string]reflect.Type),
	byFull: make(map[string]reflect.Type),
}

// name returns the cached canonical name of t, rendering it on first use.
func (r *typeRegistry) name(t reflect.Type) string {
	// Fast path: read-lock cache check
	r.mu.RLock()
	if n, ok := r.byType[t]; ok {
		r.mu.RUnlock()
		return n
	}
	r.mu.RUnlock()

	// Rendering recurses into element and argument types, so it runs unlocked.
	n, full := renderTypeName(t)

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check pattern
	if cached, ok := r.byType[t]; ok {
		return cached
	}
	r.byType[t] = n
	if _, taken := r.byName[n]; !taken {
		r.byName[n] = t
	}
	if full != "" {
		if _, taken := r.byFull[full]; !taken {
			r.byFull[full] = t
		}
	}
	return n
}

// lookup finds a type by exact canonical name, then by its unqualified full name.
func (r *typeRegistry) lookup(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.byName[name]; ok {
		return t, true
	}
	if t, ok := r.byFull[name]; ok {
		return t, true
	}
	if base, _, ok := splitQualifier(name); ok {
		if t, ok := r.byFull[base]; ok {
			return t, true
		}
	}
	return nil, false
}

// RegisterType makes T, and every named type reachable from T, resolvable by
// canonical name. Go cannot load a type from its name, so a document may only
// name types this process has registered or already written.
//
// It is safe to call RegisterType from init functions and from multiple goroutines.
func RegisterType[T any]() {
	registerTypeOf(reflect.TypeFor[T]())
}

// RegisterTypeOf is RegisterType for a reflect.Type.
func RegisterTypeOf(t reflect.Type) {
	if t != nil {
		registerTypeOf(t)
	}
}

func registerTypeOf(t reflect.Type) {
	addReachableTypes(make(map[reflect.Type]struct{}), t)
}

func addReachableTypes(seen map[reflect.Type]struct{}, t reflect.Type) {
	if _, ok := seen[t]; ok {
		return
	}
	seen[t] = struct{}{}
	types.name(t)

	switch t.Kind() {
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			addReachableTypes(seen, t.Field(i).Type)
		}
	case reflect.Func:
		for i := 0; i < t.NumIn(); i++ {
			addReachableTypes(seen, t.In(i))
		}
		for i := 0; i < t.NumOut(); i++ {
			addReachableTypes(seen, t.Out(i))
		}
	case reflect.Map:
		addReachableTypes(seen, t.Key())
		addReachableTypes(seen, t.Elem())
	case reflect.Slice, reflect.Array, reflect.Pointer:
		addReachableTypes(seen, t.Elem())
	}

	// Pointer receivers are the usual shape for graph nodes.
	if t.Kind() != reflect.Pointer && t.Name() != "" {
		addReachableTypes(seen, reflect.PointerTo(t))
	}
}
