package weave

import (
	"errors"
	"reflect"
)

// decoder rebuilds values from the document tree of one read operation.
type decoder struct {
	*engine
	refs  *refTracker
	path  pathStack
	depth int
	count int
}

func newDecoder(e *engine) *decoder {
	return &decoder{engine: e}
}

func (d *decoder) decode(root *Node, declared reflect.Type) (reflect.Value, error) {
	d.path.push(root.Name)
	defer d.path.pop()
	return d.readValue(root, declared)
}

// ReadValue implements Reader.
func (d *decoder) ReadValue(n *Node, declared reflect.Type) (reflect.Value, error) {
	d.path.push(n.Name)
	defer d.path.pop()
	return d.readValue(n, declared)
}

// ResolveType implements Reader.
func (d *decoder) ResolveType(name string) (reflect.Type, error) {
	t, ok := d.known.resolve(name)
	if !ok {
		return nil, newSerializationError(ErrUnknownType, d.path.String(), "%q", name)
	}
	return t, nil
}

// located fills in the current path of a SerializationError built without one.
func (d *decoder) located(err error) error {
	var se *SerializationError
	if errors.As(err, &se) && se.Path == "" {
		se.Path = d.path.String()
	}
	return err
}

// bind registers v under id. An id defined twice is malformed.
func (d *decoder) bind(id string, v reflect.Value) error {
	if id == "" {
		return nil
	}
	if _, ok := d.refs.objects[id]; ok {
		return newSerializationError(ErrMalformed, d.path.String(), "id %q defined twice", id)
	}
	d.refs.objects[id] = v
	return nil
}

// readValue decodes n as a value of the declared type. Back-references and
// ids are handled before anything else; instances are registered before
// their content is read so that cycles resolve.
func (d *decoder) readValue(n *Node, declared reflect.Type) (reflect.Value, error) {
	d.depth++
	defer func() { d.depth-- }()
	if d.maxDepth > 0 && d.depth > d.maxDepth {
		return reflect.Value{}, newSerializationError(ErrMaxDepth, d.path.String(), "limit %d", d.maxDepth)
	}
	d.count++

	if ref, ok := n.Attr(attrRef); ok {
		if !n.Empty() {
			return reflect.Value{}, newSerializationError(ErrMalformed, d.path.String(), "reference %q has content", ref)
		}
		var v reflect.Value
		if d.refs != nil {
			v, ok = d.refs.resolve(ref)
		}
		if !ok {
			return reflect.Value{}, newSerializationError(ErrUnresolvedRef, d.path.String(), "id %q", ref)
		}
		return d.assign(v, declared)
	}

	id, hasID := n.Attr(attrID)
	null, _ := n.Attr(attrNull)
	if null == "true" && id != "" {
		return reflect.Value{}, newSerializationError(ErrNullWithID, d.path.String(), "id %q", id)
	}

	actual := declared
	if name, ok := n.Attr(attrType); ok {
		t, err := d.ResolveType(name)
		if err != nil {
			return reflect.Value{}, err
		}
		actual = t
	}
	if null == "true" {
		return d.assign(reflect.Zero(actual), declared)
	}

	if actual.Kind() == reflect.Interface {
		concrete, ok := d.collections.concreteOf(actual)
		switch {
		case ok:
			actual = concrete
		case n.Empty() && !hasID:
			return reflect.Zero(declared), nil
		default:
			return reflect.Value{}, newSerializationError(ErrAbstractType, d.path.String(), "%s", actual)
		}
	}

	if hasID && d.refs == nil {
		d.refs = newReadTracker()
	}

	var (
		v   reflect.Value
		err error
	)
	if n.Empty() && !hasExtents(n, actual) {
		v, err = d.emptyValue(actual, id)
	} else {
		v, err = d.readContent(n, actual, id)
	}
	if err != nil {
		return reflect.Value{}, err
	}
	if id != "" {
		if _, ok := d.refs.objects[id]; !ok {
			d.refs.objects[id] = v
		}
	}

	if actual != declared {
		if w := d.opaques.unwrapperOf(actual); w != nil {
			if v, err = w.Unwrap(d, v); err != nil {
				return reflect.Value{}, wrapSerializationError(ErrUnsupportedType, d.path.String(), err)
			}
		}
	}
	return d.assign(v, declared)
}

// assign converts v to the declared type.
func (d *decoder) assign(v reflect.Value, declared reflect.Type) (reflect.Value, error) {
	if !v.IsValid() {
		return reflect.Zero(declared), nil
	}
	if v.Type() == declared {
		return v, nil
	}
	if v.Type().AssignableTo(declared) {
		out := reflect.New(declared).Elem()
		out.Set(v)
		return out, nil
	}
	if v.Kind() == reflect.Func && v.Type().ConvertibleTo(declared) {
		return v.Convert(declared), nil
	}
	return reflect.Value{}, newSerializationError(ErrUnsupportedType, d.path.String(), "%s is not assignable to %s", v.Type(), declared)
}

// hasExtents reports whether n is an array element whose extents say
// more than its empty content, such as a slice of default elements.
func hasExtents(n *Node, t reflect.Type) bool {
	if t.Kind() != reflect.Slice && t.Kind() != reflect.Array {
		return false
	}
	_, ok := n.Attr(attrDim)
	return ok
}

// emptyValue constructs the value of an element with no content. Value
// kinds read as their zero value; constructors only run for pointers and
// maps, which an empty element allocates.
func (d *decoder) emptyValue(t reflect.Type, id string) (reflect.Value, error) {
	var (
		v   reflect.Value
		err error
	)
	if c := d.opaques.codecFor(t); c != nil {
		if ed, ok := c.(EmptyDecoder); ok {
			v, err = ed.DecodeEmpty(t)
		}
	}
	if !v.IsValid() && err == nil {
		switch t.Kind() {
		case reflect.Slice:
			v = reflect.MakeSlice(t, 0, 0)
		case reflect.Pointer, reflect.Map:
			v, err = construct(t)
		default:
			v = reflect.New(t).Elem()
		}
	}
	if err != nil {
		return reflect.Value{}, wrapSerializationError(ErrUnsupportedType, d.path.String(), err)
	}
	if err := d.bind(id, v); err != nil {
		return reflect.Value{}, err
	}
	return v, nil
}

// readContent dispatches on the shape of t, mirroring writeContent.
func (d *decoder) readContent(n *Node, t reflect.Type, id string) (reflect.Value, error) {
	if c := d.opaques.codecFor(t); c != nil {
		v, err := c.Decode(d, n, t)
		if err != nil {
			return reflect.Value{}, wrapSerializationError(ErrUnsupportedType, d.path.String(), err)
		}
		return v, d.bind(id, v)
	}
	if t.Kind() != reflect.Struct && isTextual(t) {
		v := reflect.New(t).Elem()
		return v, d.readText(n, v)
	}
	if isScalarKind(t.Kind()) {
		if len(n.Children) > 0 {
			return reflect.Value{}, newSerializationError(ErrMalformed, d.path.String(), "%s with child elements", t)
		}
		v, err := parseScalar(n.Text, t)
		if err != nil {
			return reflect.Value{}, wrapSerializationError(ErrMalformed, d.path.String(), err)
		}
		return v, nil
	}
	if shape := d.collections.list(t); shape != nil {
		return d.readList(n, t, shape, id)
	}
	if shape := d.collections.dict(t); shape != nil {
		return d.readMapShape(n, t, shape, id)
	}

	switch t.Kind() {
	case reflect.Pointer:
		return d.readPointer(n, t, id)
	case reflect.Array, reflect.Slice:
		return d.readArray(n, t, id)
	case reflect.Map:
		if n.Text != "" {
			return reflect.Value{}, newSerializationError(ErrMalformed, d.path.String(), "text in map element")
		}
		return d.readMap(n, t, id)
	case reflect.Struct:
		v := reflect.New(t).Elem()
		return v, d.readStruct(n, t, v)
	}
	return reflect.Value{}, newSerializationError(ErrUnsupportedType, d.path.String(), "cannot read %s", t)
}

// readPointer allocates the pointee and registers it before reading its
// content in place.
func (d *decoder) readPointer(n *Node, t reflect.Type, id string) (reflect.Value, error) {
	p, err := construct(t)
	if err != nil {
		return reflect.Value{}, wrapSerializationError(ErrUnsupportedType, d.path.String(), err)
	}
	if err := d.bind(id, p); err != nil {
		return reflect.Value{}, err
	}

	elem := t.Elem()
	switch elem.Kind() {
	case reflect.Pointer, reflect.Interface:
		if len(n.Children) != 1 || n.Children[0].Name != valueElement {
			return reflect.Value{}, newSerializationError(ErrMalformed, d.path.String(), "%s needs one <%s> element", t, valueElement)
		}
		v, err := d.ReadValue(n.Children[0], elem)
		if err != nil {
			return reflect.Value{}, err
		}
		p.Elem().Set(v)
		return p, nil

	case reflect.Struct:
		if d.opaques.codecFor(elem) == nil {
			return p, d.readStruct(n, elem, p.Elem())
		}
	}

	v, err := d.readContent(n, elem, "")
	if err != nil {
		return reflect.Value{}, err
	}
	p.Elem().Set(v)
	return p, nil
}

func (d *decoder) readText(n *Node, dst reflect.Value) error {
	if len(n.Children) > 0 {
		return newSerializationError(ErrMalformed, d.path.String(), "%s with child elements", dst.Type())
	}
	if err := unmarshalText(dst, n.Text); err != nil {
		return wrapSerializationError(ErrMalformed, d.path.String(), err)
	}
	return nil
}

// readStruct populates the addressable struct dst between the deserialize
// hooks. Every child must name a field of the schema.
func (d *decoder) readStruct(n *Node, t reflect.Type, dst reflect.Value) error {
	s, err := d.schemas.get(t)
	if err != nil {
		return err
	}
	if len(s.fields) == 0 && isTextual(t) {
		return d.readText(n, dst)
	}
	if n.Text != "" {
		return newSerializationError(ErrMalformed, d.path.String(), "text in %s element", t)
	}

	if err := s.run(hookDeserializing, dst); err != nil {
		return wrapSerializationError(ErrHookFailed, d.path.String(), err)
	}
	for _, c := range n.Children {
		f, ok := s.byTag[c.Name]
		if !ok {
			return newSerializationError(ErrUnknownField, d.path.String(), "%s has no field %q", t, c.Name)
		}
		v, err := d.ReadValue(c, f.typ)
		if err != nil {
			return err
		}
		dst.FieldByIndex(f.index).Set(v)
	}
	if err := s.run(hookDeserialized, dst); err != nil {
		return wrapSerializationError(ErrHookFailed, d.path.String(), err)
	}
	return nil
}
