package weave

import (
	"reflect"
	"sync"
)

// constructors holds every registered constructor by produced type.
var constructors = struct {
	sync.RWMutex
	byType map[reflect.Type][]reflect.Value
}{byType: make(map[reflect.Type][]reflect.Value)}

// chosen caches the constructor picked for a type. Entries are inserted
// with LoadOrStore from any goroutine; a type without a usable constructor
// caches an empty entry.
var chosen sync.Map // reflect.Type -> *constructor

type constructor struct {
	fn       reflect.Value
	fallible bool
}

// RegisterConstructor registers fn as a constructor for its first result type.
// fn must return T or (T, error). Readers call the constructor with the fewest
// parameters when an element has no content: a constructor without parameters
// is preferred, then one whose only parameter is variadic, called with no
// arguments. Constructors needing arguments are never called.
func RegisterConstructor(fn any) error {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return newSerializationError(ErrUnsupportedType, "", "constructor must be a func, got %T", fn)
	}
	ft := v.Type()
	switch {
	case ft.NumOut() == 1:
	case ft.NumOut() == 2 && ft.Out(1) == errorType:
	default:
		return newSerializationError(ErrUnsupportedType, "", "constructor %s must return T or (T, error)", ft)
	}

	t := ft.Out(0)
	constructors.Lock()
	constructors.byType[t] = append(constructors.byType[t], v)
	constructors.Unlock()

	// A later registration may beat a cached choice.
	chosen.Delete(t)
	chosen.Delete(reflect.PointerTo(t))
	registerTypeOf(t)
	return nil
}

// arity returns how many arguments a call needs, or -1 when the
// constructor cannot be called without arguments.
func arity(ft reflect.Type) int {
	switch {
	case ft.NumIn() == 0:
		return 0
	case ft.NumIn() == 1 && ft.IsVariadic():
		return 1
	}
	return -1
}

func constructorFor(t reflect.Type) *constructor {
	if c, ok := chosen.Load(t); ok {
		return c.(*constructor)
	}
	c, _ := chosen.LoadOrStore(t, chooseConstructor(t))
	return c.(*constructor)
}

// chooseConstructor picks the least-arity constructor producing t, or
// producing the pointee when t is a pointer.
func chooseConstructor(t reflect.Type) *constructor {
	constructors.RLock()
	defer constructors.RUnlock()

	candidates := constructors.byType[t]
	if t.Kind() == reflect.Pointer {
		candidates = append(append([]reflect.Value{}, candidates...), constructors.byType[t.Elem()]...)
	}

	best, bestArity := reflect.Value{}, -1
	for _, fn := range candidates {
		a := arity(fn.Type())
		if a < 0 {
			continue
		}
		if !best.IsValid() || a < bestArity {
			best, bestArity = fn, a
		}
	}
	if !best.IsValid() {
		return &constructor{}
	}
	return &constructor{fn: best, fallible: best.Type().NumOut() == 2}
}

func (c *constructor) call(t reflect.Type) (reflect.Value, error) {
	out := c.fn.Call(nil)
	if c.fallible && !out[1].IsNil() {
		return reflect.Value{}, out[1].Interface().(error)
	}
	v := out[0]
	if v.Type() != t {
		p := reflect.New(t.Elem())
		p.Elem().Set(v)
		return p, nil
	}
	if t.Kind() == reflect.Pointer && v.IsNil() {
		return reflect.New(t.Elem()), nil
	}
	return v, nil
}

// construct returns a fresh instance of t: a registered constructor's
// result, else a zero instance. Pointers point at a new zero pointee and
// maps are empty rather than nil.
func construct(t reflect.Type) (reflect.Value, error) {
	if c := constructorFor(t); c.fn.IsValid() {
		return c.call(t)
	}
	switch t.Kind() {
	case reflect.Pointer:
		return reflect.New(t.Elem()), nil
	case reflect.Map:
		return reflect.MakeMap(t), nil
	case reflect.Slice:
		return reflect.MakeSlice(t, 0, 0), nil
	}
	return reflect.New(t).Elem(), nil
}
