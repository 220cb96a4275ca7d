package weave

import (
	"reflect"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"unsafe"
)

// CallableDescriptor is the stand-in written for func values: the func's
// own type, the method it runs and the receiver it is bound to.
type CallableDescriptor struct {
	Signature string
	Method    MethodDescriptor
	Target    any
}

// MethodDescriptor identifies a method or a package-level function.
// For functions Declaring is the import path and Static is set.
type MethodDescriptor struct {
	Declaring string
	Name      string
	Static    bool
	Params    []string
}

var callableDescriptorType = reflect.TypeFor[CallableDescriptor]()

// closureName matches compiler generated closure bodies and method values,
// which have no stable name to resolve.
var closureName = regexp.MustCompile(`\.func\d+(\.\d+)*$|-fm$`)

// binding is a func built by Bind. It does not hold the func, so the
// entry lives only as long as the func does.
type binding struct {
	target reflect.Value
	method string
	code   uintptr
}

// funcRegistry is the process-wide table of decomposable funcs.
type funcRegistry struct {
	mu     sync.RWMutex
	byName map[string]reflect.Value
	byPC   map[uintptr]string
	bound  map[uintptr]*binding
}

var funcs = &funcRegistry{
	byName: make(map[string]reflect.Value),
	byPC:   make(map[uintptr]string),
	bound:  make(map[uintptr]*binding),
}

func (r *funcRegistry) nameOf(pc uintptr) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byPC[pc]
	return name, ok
}

func (r *funcRegistry) lookup(name string) (reflect.Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.byName[name]
	return fn, ok
}

// binding finds the binding of fn. The code pointer must match too, since
// an entry can outlive its func until the cleanup runs.
func (r *funcRegistry) binding(fn reflect.Value) (*binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bound[funcAddr(fn)]
	if !ok || b.code != fn.Pointer() {
		return nil, false
	}
	return b, true
}

// bind records b for fn and drops the entry once fn is collected. The
// cleanup only removes its own entry: the address may already belong to a
// newer func by the time it runs.
func (r *funcRegistry) bind(fn reflect.Value, b *binding) {
	p := funcPointer(fn)
	addr := uintptr(p)

	r.mu.Lock()
	r.bound[addr] = b
	r.mu.Unlock()

	runtime.AddCleanup((*byte)(p), r.unbind, boundEntry{addr: addr, b: b})
}

type boundEntry struct {
	addr uintptr
	b    *binding
}

func (r *funcRegistry) unbind(e boundEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bound[e.addr] == e.b {
		delete(r.bound, e.addr)
	}
}

func (r *funcRegistry) boundCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bound)
}

// funcPointer returns the closure record behind a func value. Func values
// are pointer shaped, so the interface data word holds it.
func funcPointer(v reflect.Value) unsafe.Pointer {
	fn := v.Interface()
	return (*[2]unsafe.Pointer)(unsafe.Pointer(&fn))[1]
}

func funcAddr(v reflect.Value) uintptr {
	return uintptr(funcPointer(v))
}

// RegisterFunc makes a package-level function writable by name.
// Closures, method values and generic functions are rejected; use Bind or
// the MakeFunc and MakeAction constructors for those.
func RegisterFunc(fn any) error {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return newSerializationError(ErrUnsupportedCallable, "", "%T is not a func", fn)
	}
	if v.Type().IsVariadic() {
		return newSerializationError(ErrUnsupportedCallable, "", "variadic %s", v.Type())
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return newSerializationError(ErrUnsupportedCallable, "", "no symbol for %s", v.Type())
	}
	name := f.Name()
	if closureName.MatchString(name) || strings.Contains(name, "[") || strings.HasPrefix(name, "reflect.") {
		return newSerializationError(ErrUnsupportedCallable, "", "%s has no stable name", name)
	}

	funcs.mu.Lock()
	funcs.byName[name] = v
	funcs.byPC[v.Pointer()] = name
	funcs.mu.Unlock()

	registerTypeOf(v.Type())
	return nil
}

// Bind returns a func of type F that calls the named method of receiver.
// Unlike a Go method value, the result can be written: the receiver is
// written as the callable's target.
func Bind[F any](receiver any, method string) (F, error) {
	var zero F
	fn, err := bindValue(reflect.TypeFor[F](), reflect.ValueOf(receiver), method)
	if err != nil {
		return zero, err
	}
	return fn.Interface().(F), nil
}

func bindValue(ft reflect.Type, recv reflect.Value, method string) (reflect.Value, error) {
	if ft.Kind() != reflect.Func {
		return reflect.Value{}, newSerializationError(ErrUnsupportedCallable, "", "%s is not a func type", ft)
	}
	if ft.IsVariadic() {
		return reflect.Value{}, newSerializationError(ErrUnsupportedCallable, "", "variadic %s", ft)
	}
	if !recv.IsValid() || isNil(recv) {
		return reflect.Value{}, newSerializationError(ErrUnsupportedCallable, "", "nil receiver for %s", method)
	}
	m := recv.MethodByName(method)
	if !m.IsValid() {
		return reflect.Value{}, newSerializationError(ErrUnsupportedCallable, "", "%s has no method %s", recv.Type(), method)
	}
	if !sameSignature(m.Type(), ft) {
		return reflect.Value{}, newSerializationError(ErrUnsupportedCallable, "", "%s.%s has type %s, want %s", recv.Type(), method, m.Type(), ft)
	}

	fn := reflect.MakeFunc(ft, func(args []reflect.Value) []reflect.Value {
		return m.Call(args)
	})
	funcs.bind(fn, &binding{target: recv, method: method, code: fn.Pointer()})
	registerTypeOf(recv.Type())
	registerTypeOf(ft)
	return fn, nil
}

func sameSignature(a, b reflect.Type) bool {
	if a.NumIn() != b.NumIn() || a.NumOut() != b.NumOut() || a.IsVariadic() != b.IsVariadic() {
		return false
	}
	for i := 0; i < a.NumIn(); i++ {
		if a.In(i) != b.In(i) {
			return false
		}
	}
	for i := 0; i < a.NumOut(); i++ {
		if a.Out(i) != b.Out(i) {
			return false
		}
	}
	return true
}

// decomposable reports whether fn can be written.
func decomposable(v reflect.Value) bool {
	if _, ok := funcs.binding(v); ok {
		return true
	}
	_, ok := funcs.nameOf(v.Pointer())
	return ok
}

// MakeSerializable returns fn unchanged when it can be written. A plain
// package-level function is registered on the way. Closures and method
// values carry state the codec cannot see and are rejected; rebuild them
// with Bind or a MakeFunc/MakeAction constructor.
func MakeSerializable[F any](fn F) (F, error) {
	var zero F
	v := reflect.ValueOf(&fn).Elem()
	if v.Kind() != reflect.Func {
		return zero, newSerializationError(ErrUnsupportedCallable, "", "%s is not a func type", v.Type())
	}
	if v.IsNil() || decomposable(v) {
		return fn, nil
	}
	name := "func"
	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		name = f.Name()
	}
	if closureName.MatchString(name) || strings.HasPrefix(name, "reflect.") {
		return zero, newSerializationError(ErrUnsupportedCallable, "", "%s captures state the codec cannot see", name)
	}
	if err := RegisterFunc(v.Interface()); err != nil {
		return zero, err
	}
	return fn, nil
}

// Unwrap returns the body of a func built by a MakeFunc or MakeAction
// constructor. Any other value is returned as is.
func Unwrap(fn any) any {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return fn
	}
	if b, ok := funcs.binding(v); ok {
		if t, ok := b.target.Interface().(trampoline); ok {
			return t.body()
		}
	}
	return fn
}

// describe decomposes a func into its descriptor.
func describe(w Writer, v reflect.Value) (CallableDescriptor, error) {
	ft := v.Type()
	if ft.IsVariadic() {
		return CallableDescriptor{}, newSerializationError(ErrUnsupportedCallable, "", "variadic %s", ft)
	}
	d := CallableDescriptor{Signature: w.TypeName(ft)}

	if b, ok := funcs.binding(v); ok {
		m, _ := b.target.Type().MethodByName(b.method)
		d.Method = MethodDescriptor{
			Declaring: w.TypeName(b.target.Type()),
			Name:      b.method,
			Params:    paramNames(w, m.Type, 1),
		}
		d.Target = b.target.Interface()
		return d, nil
	}

	if name, ok := funcs.nameOf(v.Pointer()); ok {
		fn, _ := funcs.lookup(name)
		pkg, short := splitFuncName(name)
		d.Method = MethodDescriptor{
			Declaring: pkg,
			Name:      short,
			Static:    true,
			Params:    paramNames(w, fn.Type(), 0),
		}
		return d, nil
	}

	name := ft.String()
	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		name = f.Name()
	}
	return CallableDescriptor{}, newSerializationError(ErrUnsupportedCallable, "",
		"%s is neither registered nor bound; use RegisterFunc, Bind or MakeFunc", name)
}

func paramNames(w Writer, ft reflect.Type, from int) []string {
	names := make([]string, 0, ft.NumIn()-from)
	for i := from; i < ft.NumIn(); i++ {
		names = append(names, w.TypeName(ft.In(i)))
	}
	return names
}

// splitFuncName splits "example.com/p.F" or "example.com/p.(*T).M" into
// the import path and the rest.
func splitFuncName(name string) (string, string) {
	slash := strings.LastIndexByte(name, '/')
	dot := strings.IndexByte(name[slash+1:], '.')
	if dot < 0 {
		return "", name
	}
	dot += slash + 1
	return name[:dot], name[dot+1:]
}

// rebuild resolves a descriptor back into a func of its signature type.
func rebuild(r Reader, d CallableDescriptor) (reflect.Value, error) {
	sig, err := r.ResolveType(d.Signature)
	if err != nil {
		return reflect.Value{}, err
	}
	if sig.Kind() != reflect.Func {
		return reflect.Value{}, newSerializationError(ErrUnsupportedCallable, "", "%s is not a func type", sig)
	}

	if d.Method.Static {
		name := d.Method.Declaring + "." + d.Method.Name
		fn, ok := funcs.lookup(name)
		if !ok {
			return reflect.Value{}, newSerializationError(ErrUnsupportedCallable, "", "function %s is not registered", name)
		}
		if err := matchParams(r, d.Method, fn.Type(), 0); err != nil {
			return reflect.Value{}, err
		}
		if fn.Type() != sig {
			if !fn.Type().ConvertibleTo(sig) {
				return reflect.Value{}, newSerializationError(ErrUnsupportedCallable, "", "%s is not a %s", name, sig)
			}
			fn = fn.Convert(sig)
		}
		return fn, nil
	}

	declaring, err := r.ResolveType(d.Method.Declaring)
	if err != nil {
		return reflect.Value{}, err
	}
	target := reflect.ValueOf(d.Target)
	if !target.IsValid() {
		return reflect.Value{}, newSerializationError(ErrUnsupportedCallable, "", "%s.%s has no target", declaring, d.Method.Name)
	}
	if target.Type() != declaring {
		return reflect.Value{}, newSerializationError(ErrUnsupportedCallable, "", "target is %s, want %s", target.Type(), declaring)
	}
	m, ok := declaring.MethodByName(d.Method.Name)
	if !ok {
		return reflect.Value{}, newSerializationError(ErrUnsupportedCallable, "", "%s has no method %s", declaring, d.Method.Name)
	}
	if err := matchParams(r, d.Method, m.Type, 1); err != nil {
		return reflect.Value{}, err
	}
	return bindValue(sig, target, d.Method.Name)
}

// matchParams checks the described parameter list against ft.
func matchParams(r Reader, m MethodDescriptor, ft reflect.Type, from int) error {
	if ft.NumIn()-from != len(m.Params) {
		return newSerializationError(ErrUnsupportedCallable, "", "%s takes %d parameters, document lists %d", m.Name, ft.NumIn()-from, len(m.Params))
	}
	for i, p := range m.Params {
		t, err := r.ResolveType(p)
		if err != nil {
			return err
		}
		if t != ft.In(i+from) {
			return newSerializationError(ErrUnsupportedCallable, "", "%s parameter %d is %s, document has %s", m.Name, i, ft.In(i+from), t)
		}
	}
	return nil
}

// callableWrapper writes func values as CallableDescriptors.
type callableWrapper struct{}

func (callableWrapper) Accepts(t reflect.Type) bool { return t.Kind() == reflect.Func }

func (callableWrapper) WrapperType() reflect.Type { return callableDescriptorType }

func (callableWrapper) Wrap(w Writer, v reflect.Value) (reflect.Value, error) {
	d, err := describe(w, v)
	if err != nil {
		return reflect.Value{}, err
	}
	return reflect.ValueOf(d), nil
}

func (callableWrapper) Unwrap(r Reader, wrapped reflect.Value) (reflect.Value, error) {
	return rebuild(r, wrapped.Interface().(CallableDescriptor))
}
