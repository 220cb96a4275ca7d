package weave

import (
	"reflect"
	"strconv"
)

// identity distinguishes reference values. Slices are keyed by their first
// element and length, so a reslice of the same backing array is distinct.
type identity struct {
	kind reflect.Kind
	ptr  uintptr
	len  int
	typ  reflect.Type
}

// identityOf returns the identity of a non-nil pointer, map or non-empty slice.
// Pointers to zero-size values are not tracked; they may share one address.
func identityOf(v reflect.Value) (identity, bool) {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() || v.Type().Elem().Size() == 0 {
			return identity{}, false
		}
		return identity{kind: reflect.Pointer, ptr: v.Pointer(), typ: v.Type()}, true
	case reflect.Map:
		if v.IsNil() {
			return identity{}, false
		}
		return identity{kind: reflect.Map, ptr: v.Pointer(), typ: v.Type()}, true
	case reflect.Slice:
		if v.Len() == 0 {
			return identity{}, false
		}
		return identity{kind: reflect.Slice, ptr: v.Pointer(), len: v.Len(), typ: v.Type()}, true
	}
	return identity{}, false
}

// refTracker holds id bookkeeping for one operation.
type refTracker struct {
	// write side
	counts  map[identity]int
	order   []identity
	ids     map[identity]string
	emitted map[identity]bool
	// pinned keeps wrapper stand-ins alive until the write ends, so their
	// addresses are not reused by later stand-ins.
	pinned []reflect.Value

	// read side
	objects map[string]reflect.Value
}

func newWriteTracker() *refTracker {
	return &refTracker{
		counts:  make(map[identity]int),
		ids:     make(map[identity]string),
		emitted: make(map[identity]bool),
	}
}

func newReadTracker() *refTracker {
	return &refTracker{objects: make(map[string]reflect.Value)}
}

// visit counts a hit and reports whether it was the first.
func (t *refTracker) visit(id identity) bool {
	t.counts[id]++
	if t.counts[id] > 1 {
		return false
	}
	t.order = append(t.order, id)
	return true
}

// assign gives every object visited more than once a sequential id,
// in first-discovery order.
func (t *refTracker) assign() {
	next := 1
	for _, id := range t.order {
		if t.counts[id] > 1 {
			t.ids[id] = strconv.Itoa(next)
			next++
		}
	}
}

// claim returns the id of v and whether v was already emitted. The first
// claim of an id marks it emitted.
func (t *refTracker) claim(v reflect.Value) (string, bool) {
	key, ok := identityOf(v)
	if !ok {
		return "", false
	}
	id, ok := t.ids[key]
	if !ok {
		return "", false
	}
	if t.emitted[key] {
		return id, true
	}
	t.emitted[key] = true
	return id, false
}

// shared returns how many objects received an id.
func (t *refTracker) shared() int {
	return len(t.ids)
}

func (t *refTracker) resolve(id string) (reflect.Value, bool) {
	v, ok := t.objects[id]
	return v, ok
}

// scanValue is the first write pass. It mirrors writeInto without
// producing output, counting every reference value it reaches.
func (e *encoder) scanValue(declared reflect.Type, v reflect.Value) error {
	e.depth++
	defer func() { e.depth-- }()
	if e.maxDepth > 0 && e.depth > e.maxDepth {
		return newSerializationError(ErrMaxDepth, e.path.String(), "limit %d", e.maxDepth)
	}

	if v.IsValid() && v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() || isNil(v) {
		return nil
	}
	if w := e.opaques.wrapperFor(v.Type()); w != nil {
		wrapped, err := w.Wrap(e, v)
		if err != nil {
			return wrapSerializationError(ErrUnsupportedType, e.path.String(), err)
		}
		e.refs.pinned = append(e.refs.pinned, wrapped)
		v = wrapped
	}
	if v.Type() == declared && v.IsZero() {
		return nil
	}
	if key, ok := identityOf(v); ok && !e.refs.visit(key) {
		return nil
	}
	return e.scanContent(v.Type(), v)
}

func (e *encoder) scanContent(t reflect.Type, v reflect.Value) error {
	if e.opaques.codecFor(t) != nil || isScalarKind(t.Kind()) || (isTextual(t) && t.Kind() != reflect.Struct) {
		return nil
	}
	if shape := e.collections.list(t); shape != nil {
		for i, n := 0, shape.len(v); i < n; i++ {
			if err := e.scanValue(shape.elem, shape.at(v, i)); err != nil {
				return err
			}
		}
		return nil
	}
	if shape := e.collections.dict(t); shape != nil {
		var err error
		shape.each(v, func(k, val reflect.Value) bool {
			if err = e.scanValue(shape.key, k); err != nil {
				return false
			}
			err = e.scanValue(shape.elem, val)
			return err == nil
		})
		return err
	}

	switch t.Kind() {
	case reflect.Pointer:
		switch t.Elem().Kind() {
		case reflect.Pointer, reflect.Interface:
			return e.scanValue(t.Elem(), v.Elem())
		}
		return e.scanContent(t.Elem(), v.Elem())

	case reflect.Array, reflect.Slice:
		if isBytes(t) {
			return nil
		}
		elem, dims := arrayShape(t, v)
		c := newCursor(dims)
		for ok := c.valid(); ok; ok = c.next() {
			if err := e.scanValue(elem, c.at(v)); err != nil {
				return err
			}
		}
		return nil

	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if err := e.scanValue(t.Key(), iter.Key()); err != nil {
				return err
			}
			if err := e.scanValue(t.Elem(), iter.Value()); err != nil {
				return err
			}
		}
		return nil

	case reflect.Struct:
		s, err := e.schemas.get(t)
		if err != nil {
			return err
		}
		for _, f := range s.fields {
			if err := e.scanValue(f.typ, v.FieldByIndex(f.index)); err != nil {
				return err
			}
		}
	}
	return nil
}
