package weave

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
)

// List is the list capability. Any type with these methods is written as a
// sequence of items and rebuilt by appending to a freshly constructed value.
type List[E any] interface {
	Len() int
	At(i int) E
	Append(v E)
}

// Map is the map capability. Any type with these methods is written as a
// set of entries and rebuilt by putting each entry into a freshly
// constructed value.
type Map[K comparable, V any] interface {
	Len() int
	Range(fn func(K, V) bool)
	Put(k K, v V)
}

// Vector is the default List. A field declared as List[E] holding a
// *Vector[E] is written without a type attribute.
type Vector[E any] struct {
	items []E
}

// NewVector returns a Vector holding items and registers its type.
func NewVector[E any](items ...E) *Vector[E] {
	RegisterType[*Vector[E]]()
	return &Vector[E]{items: append([]E(nil), items...)}
}

func (v *Vector[E]) Len() int { return len(v.items) }
func (v *Vector[E]) At(i int) E { return v.items[i] }
func (v *Vector[E]) Append(e E) { v.items = append(v.items, e) }
func (v *Vector[E]) Items() []E { return slices.Clone(v.items) }
func (v *Vector[E]) String() string { return fmt.Sprint(v.items) }

// HashMap is the default Map. A field declared as Map[K, V] holding a
// *HashMap[K, V] is written without a type attribute.
type HashMap[K comparable, V any] struct {
	m map[K]V
}

// NewHashMap returns an empty HashMap and registers its type.
func NewHashMap[K comparable, V any]() *HashMap[K, V] {
	RegisterType[*HashMap[K, V]]()
	return &HashMap[K, V]{m: make(map[K]V)}
}

func (h *HashMap[K, V]) Len() int { return len(h.m) }

// Range calls fn for each entry in unspecified order until fn returns false.
func (h *HashMap[K, V]) Range(fn func(K, V) bool) {
	for k, v := range h.m {
		if !fn(k, v) {
			return
		}
	}
}

func (h *HashMap[K, V]) Put(k K, v V) {
	if h.m == nil {
		h.m = make(map[K]V)
	}
	h.m[k] = v
}

func (h *HashMap[K, V]) Get(k K) (V, bool) {
	v, ok := h.m[k]
	return v, ok
}

// listShape holds the operations of one list instantiation.
type listShape struct {
	elem reflect.Type
	len  func(v reflect.Value) int
	at   func(v reflect.Value, i int) reflect.Value
	add  func(v, item reflect.Value)
}

// mapShape holds the operations of one map instantiation.
type mapShape struct {
	key  reflect.Type
	elem reflect.Type
	len  func(v reflect.Value) int
	each func(v reflect.Value, fn func(k, val reflect.Value) bool)
	put  func(v, k, val reflect.Value)
}

// Shapes are built once per instantiation and shared process-wide.
// A type with no shape is stored as a nil pointer.
var (
	listShapes sync.Map // reflect.Type -> *listShape
	mapShapes  sync.Map // reflect.Type -> *mapShape
)

var intType = reflect.TypeFor[int]()

func listShapeOf(t reflect.Type) *listShape {
	if s, ok := listShapes.Load(t); ok {
		return s.(*listShape)
	}
	s, _ := listShapes.LoadOrStore(t, buildListShape(t))
	return s.(*listShape)
}

func mapShapeOf(t reflect.Type) *mapShape {
	if s, ok := mapShapes.Load(t); ok {
		return s.(*mapShape)
	}
	s, _ := mapShapes.LoadOrStore(t, buildMapShape(t))
	return s.(*mapShape)
}

// methodSig returns the parameter and result types of a method,
// without the receiver.
func methodSig(t reflect.Type, name string) (int, []reflect.Type, []reflect.Type, bool) {
	m, ok := t.MethodByName(name)
	if !ok {
		return 0, nil, nil, false
	}
	off := 1
	if t.Kind() == reflect.Interface {
		off = 0
	}
	var in, out []reflect.Type
	for i := off; i < m.Type.NumIn(); i++ {
		in = append(in, m.Type.In(i))
	}
	for i := 0; i < m.Type.NumOut(); i++ {
		out = append(out, m.Type.Out(i))
	}
	return m.Index, in, out, !m.Type.IsVariadic()
}

func buildListShape(t reflect.Type) *listShape {
	if t.Kind() == reflect.Slice || t.Kind() == reflect.Array || t.Kind() == reflect.Map {
		return nil
	}
	lenIdx, lenIn, lenOut, ok1 := methodSig(t, "Len")
	atIdx, atIn, atOut, ok2 := methodSig(t, "At")
	addIdx, addIn, addOut, ok3 := methodSig(t, "Append")
	if !ok1 || !ok2 || !ok3 {
		return nil
	}
	if len(lenIn) != 0 || len(lenOut) != 1 || lenOut[0] != intType {
		return nil
	}
	if len(atIn) != 1 || atIn[0] != intType || len(atOut) != 1 {
		return nil
	}
	elem := atOut[0]
	if len(addIn) != 1 || addIn[0] != elem || len(addOut) != 0 {
		return nil
	}
	return &listShape{
		elem: elem,
		len: func(v reflect.Value) int {
			return int(v.Method(lenIdx).Call(nil)[0].Int())
		},
		at: func(v reflect.Value, i int) reflect.Value {
			return v.Method(atIdx).Call([]reflect.Value{reflect.ValueOf(i)})[0]
		},
		add: func(v, item reflect.Value) {
			v.Method(addIdx).Call([]reflect.Value{item})
		},
	}
}

func buildMapShape(t reflect.Type) *mapShape {
	if t.Kind() == reflect.Map {
		return nil
	}
	lenIdx, lenIn, lenOut, ok1 := methodSig(t, "Len")
	rangeIdx, rangeIn, rangeOut, ok2 := methodSig(t, "Range")
	putIdx, putIn, putOut, ok3 := methodSig(t, "Put")
	if !ok1 || !ok2 || !ok3 {
		return nil
	}
	if len(lenIn) != 0 || len(lenOut) != 1 || lenOut[0] != intType {
		return nil
	}
	if len(rangeIn) != 1 || len(rangeOut) != 0 {
		return nil
	}
	fn := rangeIn[0]
	if fn.Kind() != reflect.Func || fn.NumIn() != 2 || fn.NumOut() != 1 || fn.Out(0).Kind() != reflect.Bool {
		return nil
	}
	key, elem := fn.In(0), fn.In(1)
	if len(putIn) != 2 || putIn[0] != key || putIn[1] != elem || len(putOut) != 0 {
		return nil
	}
	return &mapShape{
		key:  key,
		elem: elem,
		len: func(v reflect.Value) int {
			return int(v.Method(lenIdx).Call(nil)[0].Int())
		},
		each: func(v reflect.Value, visit func(k, val reflect.Value) bool) {
			cb := reflect.MakeFunc(fn, func(args []reflect.Value) []reflect.Value {
				return []reflect.Value{reflect.ValueOf(visit(args[0], args[1])).Convert(fn.Out(0))}
			})
			v.Method(rangeIdx).Call([]reflect.Value{cb})
		},
		put: func(v, k, val reflect.Value) {
			v.Method(putIdx).Call([]reflect.Value{k, val})
		},
	}
}

// collectionRegistry resolves interface types to the concrete type a reader
// constructs when no type attribute is present.
type collectionRegistry struct {
	substitutions map[reflect.Type]reflect.Type
}

func newCollectionRegistry() *collectionRegistry {
	return &collectionRegistry{substitutions: make(map[reflect.Type]reflect.Type)}
}

func (r *collectionRegistry) substitute(iface, concrete reflect.Type) error {
	if iface == nil || concrete == nil || iface.Kind() != reflect.Interface {
		return newSerializationError(ErrUnsupportedType, "", "substitution needs an interface type")
	}
	if !concrete.Implements(iface) {
		return newSerializationError(ErrUnsupportedType, "", "%s does not implement %s", concrete, iface)
	}
	if prev, ok := r.substitutions[iface]; ok && prev != concrete {
		return newSerializationError(ErrNameCollision, "", "%s already substituted by %s", iface, prev)
	}
	r.substitutions[iface] = concrete
	registerTypeOf(concrete)
	return nil
}

// concreteOf returns the configured substitution for iface, else the
// default shape of List and Map instantiations.
func (r *collectionRegistry) concreteOf(iface reflect.Type) (reflect.Type, bool) {
	if c, ok := r.substitutions[iface]; ok {
		return c, true
	}
	return defaultShape(iface)
}

func (r *collectionRegistry) list(t reflect.Type) *listShape { return listShapeOf(t) }
func (r *collectionRegistry) dict(t reflect.Type) *mapShape { return mapShapeOf(t) }

var defaultShapes = []struct{ iface, impl string }{
	{iface: "List", impl: "Vector"},
	{iface: "Map", impl: "HashMap"},
}

// defaultShape maps List[E] to *Vector[E] and Map[K, V] to *HashMap[K, V].
// The default type must have been registered or named in this process.
func defaultShape(iface reflect.Type) (reflect.Type, bool) {
	base, _, _ := splitQualifier(TypeName(iface))
	for _, d := range defaultShapes {
		prefix := modulePath + "." + d.iface + "["
		if !strings.HasPrefix(base, prefix) {
			continue
		}
		name := "*[" + modulePath + "." + d.impl + "[" + base[len(prefix):] + ", " + moduleShort + "]"
		if c, ok := ResolveTypeName(name); ok && c.Implements(iface) {
			return c, true
		}
	}
	return nil, false
}

// writeList writes one item element per entry.
func (e *encoder) writeList(n *Node, shape *listShape, v reflect.Value) error {
	for i, count := 0, shape.len(v); i < count; i++ {
		if err := e.WriteValue(n, itemElement, shape.elem, shape.at(v, i)); err != nil {
			return err
		}
	}
	return nil
}

// writeEntries writes map entries sorted by key. Entries of string-keyed
// maps carry the key as an attribute; others nest key and value elements.
func (e *encoder) writeEntries(n *Node, key, elem reflect.Type, keys, vals []reflect.Value) error {
	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int { return compareKeys(keys[a], keys[b]) })

	compact := key == stringType
	for _, i := range order {
		entry := n.Child(entryElement)
		if !compact {
			e.path.push(entryElement)
			err := e.WriteValue(entry, keyElement, key, keys[i])
			if err == nil {
				err = e.WriteValue(entry, valueElement, elem, vals[i])
			}
			e.path.pop()
			if err != nil {
				return err
			}
			continue
		}
		entry.SetAttr(attrKey, keys[i].String())
		e.path.push(entryElement)
		err := e.writeInto(entry, elem, vals[i])
		e.path.pop()
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) writeMap(n *Node, t reflect.Type, v reflect.Value) error {
	keys := make([]reflect.Value, 0, v.Len())
	vals := make([]reflect.Value, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		keys = append(keys, iter.Key())
		vals = append(vals, iter.Value())
	}
	return e.writeEntries(n, t.Key(), t.Elem(), keys, vals)
}

func (e *encoder) writeMapShape(n *Node, shape *mapShape, v reflect.Value) error {
	var keys, vals []reflect.Value
	shape.each(v, func(k, val reflect.Value) bool {
		keys = append(keys, k)
		vals = append(vals, val)
		return true
	})
	return e.writeEntries(n, shape.key, shape.elem, keys, vals)
}

var stringType = reflect.TypeFor[string]()

// compareKeys orders map keys: by kind, then by value for ordered kinds,
// then by their printed form.
func compareKeys(a, b reflect.Value) int {
	if a.Kind() == reflect.Interface {
		a = a.Elem()
	}
	if b.Kind() == reflect.Interface {
		b = b.Elem()
	}
	if !a.IsValid() || !b.IsValid() {
		return cmp.Compare(boolInt(a.IsValid()), boolInt(b.IsValid()))
	}
	if a.Kind() != b.Kind() {
		return cmp.Compare(a.Kind(), b.Kind())
	}
	switch a.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cmp.Compare(a.Int(), b.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return cmp.Compare(a.Uint(), b.Uint())
	case reflect.Float32, reflect.Float64:
		return cmp.Compare(a.Float(), b.Float())
	case reflect.String:
		return cmp.Compare(a.String(), b.String())
	case reflect.Bool:
		return cmp.Compare(boolInt(a.Bool()), boolInt(b.Bool()))
	}
	return cmp.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// readList constructs the list, registers it under id, then appends each item.
func (d *decoder) readList(n *Node, t reflect.Type, shape *listShape, id string) (reflect.Value, error) {
	v, err := construct(t)
	if err != nil {
		return reflect.Value{}, wrapSerializationError(ErrUnsupportedType, d.path.String(), err)
	}
	if err := d.bind(id, v); err != nil {
		return reflect.Value{}, err
	}
	for _, c := range n.Children {
		if c.Name != itemElement {
			return reflect.Value{}, newSerializationError(ErrUnknownField, d.path.String(), "unexpected <%s> in list", c.Name)
		}
		item, err := d.ReadValue(c, shape.elem)
		if err != nil {
			return reflect.Value{}, err
		}
		shape.add(v, item)
	}
	return v, nil
}

func (d *decoder) readMap(n *Node, t reflect.Type, id string) (reflect.Value, error) {
	m := reflect.MakeMapWithSize(t, len(n.Children))
	if err := d.bind(id, m); err != nil {
		return reflect.Value{}, err
	}
	err := d.readEntries(n, t.Key(), t.Elem(), func(k, val reflect.Value) {
		m.SetMapIndex(k, val)
	})
	return m, err
}

func (d *decoder) readMapShape(n *Node, t reflect.Type, shape *mapShape, id string) (reflect.Value, error) {
	v, err := construct(t)
	if err != nil {
		return reflect.Value{}, wrapSerializationError(ErrUnsupportedType, d.path.String(), err)
	}
	if err := d.bind(id, v); err != nil {
		return reflect.Value{}, err
	}
	err = d.readEntries(n, shape.key, shape.elem, func(k, val reflect.Value) {
		shape.put(v, k, val)
	})
	return v, err
}

func (d *decoder) readEntries(n *Node, key, elem reflect.Type, put func(k, val reflect.Value)) error {
	compact := key == stringType
	for _, c := range n.Children {
		if c.Name != entryElement {
			return newSerializationError(ErrUnknownField, d.path.String(), "unexpected <%s> in map", c.Name)
		}
		d.path.push(entryElement)
		k, val, err := d.readEntry(c, key, elem, compact)
		d.path.pop()
		if err != nil {
			return err
		}
		put(k, val)
	}
	return nil
}

func (d *decoder) readEntry(c *Node, key, elem reflect.Type, compact bool) (reflect.Value, reflect.Value, error) {
	if compact {
		k, ok := c.Attr(attrKey)
		if !ok {
			return reflect.Value{}, reflect.Value{}, newSerializationError(ErrMalformed, d.path.String(), "entry without key")
		}
		val, err := d.readValue(c, elem)
		return reflect.ValueOf(k), val, err
	}

	var keyNode, valNode *Node
	for _, part := range c.Children {
		switch {
		case part.Name == keyElement && keyNode == nil:
			keyNode = part
		case part.Name == valueElement && valNode == nil:
			valNode = part
		default:
			return reflect.Value{}, reflect.Value{}, newSerializationError(ErrUnknownField, d.path.String(), "unexpected <%s> in entry", part.Name)
		}
	}
	if keyNode == nil || valNode == nil {
		return reflect.Value{}, reflect.Value{}, newSerializationError(ErrMalformed, d.path.String(), "entry needs key and value")
	}
	k, err := d.ReadValue(keyNode, key)
	if err != nil {
		return reflect.Value{}, reflect.Value{}, err
	}
	val, err := d.ReadValue(valNode, elem)
	return k, val, err
}
