package weave

import (
	"reflect"
)

// encoder builds the document tree of one write operation.
type encoder struct {
	*engine
	refs  *refTracker
	path  pathStack
	depth int
	count int
}

func newEncoder(e *engine) *encoder {
	return &encoder{engine: e}
}

// encode runs the identity pre-pass when tracking is enabled, then writes v
// into a root element.
func (e *encoder) encode(rootName string, declared reflect.Type, v reflect.Value) (*Node, error) {
	e.path.push(rootName)
	defer e.path.pop()

	if e.track {
		e.refs = newWriteTracker()
		if err := e.scanValue(declared, v); err != nil {
			return nil, err
		}
		e.refs.assign()
	}

	root := NewNode(rootName)
	if err := e.writeInto(root, declared, v); err != nil {
		return nil, err
	}
	return root, nil
}

// WriteValue implements Writer.
func (e *encoder) WriteValue(parent *Node, name string, declared reflect.Type, v reflect.Value) error {
	e.path.push(name)
	defer e.path.pop()
	return e.writeInto(parent.Child(name), declared, v)
}

// TypeName implements Writer.
func (e *encoder) TypeName(t reflect.Type) string {
	return e.known.nameOf(t)
}

// writeInto writes v, declared as declared, into the element n.
func (e *encoder) writeInto(n *Node, declared reflect.Type, v reflect.Value) error {
	e.depth++
	defer func() { e.depth-- }()
	if e.maxDepth > 0 && e.depth > e.maxDepth {
		return newSerializationError(ErrMaxDepth, e.path.String(), "limit %d", e.maxDepth)
	}
	e.count++

	if v.IsValid() && v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() {
		n.SetAttr(attrNull, "true")
		return nil
	}

	if w := e.opaques.wrapperFor(v.Type()); w != nil {
		if v.IsZero() {
			if v.Type() != declared {
				n.SetAttr(attrType, e.TypeName(v.Type()))
			}
			if nullable(v.Type()) {
				n.SetAttr(attrNull, "true")
			}
			return nil
		}
		wrapped, err := w.Wrap(e, v)
		if err != nil {
			return wrapSerializationError(ErrUnsupportedType, e.path.String(), err)
		}
		v = wrapped
	}

	actual := v.Type()
	if actual == declared && v.IsZero() {
		if nullable(actual) {
			n.SetAttr(attrNull, "true")
		}
		return nil
	}

	if e.refs != nil {
		id, emitted := e.refs.claim(v)
		if emitted {
			n.SetAttr(attrRef, id)
			return nil
		}
		if id != "" {
			n.SetAttr(attrID, id)
		}
	}

	if !e.inferable(declared, actual) {
		n.SetAttr(attrType, e.TypeName(actual))
	}
	if isNil(v) {
		n.SetAttr(attrNull, "true")
		return nil
	}
	return e.writeContent(n, actual, v)
}

// writeContent dispatches on the shape of t.
func (e *encoder) writeContent(n *Node, t reflect.Type, v reflect.Value) error {
	if c := e.opaques.codecFor(t); c != nil {
		if err := c.Encode(e, n, v); err != nil {
			return wrapSerializationError(ErrUnsupportedType, e.path.String(), err)
		}
		return nil
	}
	if t.Kind() != reflect.Struct && isTextual(t) {
		return e.writeText(n, v)
	}
	if isScalarKind(t.Kind()) {
		n.Text = formatScalar(v)
		return nil
	}
	if shape := e.collections.list(t); shape != nil {
		return e.writeList(n, shape, v)
	}
	if shape := e.collections.dict(t); shape != nil {
		return e.writeMapShape(n, shape, v)
	}

	switch t.Kind() {
	case reflect.Pointer:
		elem := t.Elem()
		switch elem.Kind() {
		case reflect.Pointer, reflect.Interface:
			return e.WriteValue(n, valueElement, elem, v.Elem())
		}
		return e.writeContent(n, elem, v.Elem())
	case reflect.Array, reflect.Slice:
		return e.writeArray(n, t, v)
	case reflect.Map:
		return e.writeMap(n, t, v)
	case reflect.Struct:
		return e.writeStruct(n, t, v)
	}
	return newSerializationError(ErrUnsupportedType, e.path.String(), "cannot write %s", t)
}

func (e *encoder) writeText(n *Node, v reflect.Value) error {
	text, err := marshalText(v)
	if err != nil {
		return wrapSerializationError(ErrMalformed, e.path.String(), err)
	}
	n.Text = string(text)
	return nil
}

// writeStruct walks the schema of t between the serialize hooks. A struct
// with no serializable fields that marshals itself to text is written as text.
func (e *encoder) writeStruct(n *Node, t reflect.Type, v reflect.Value) error {
	s, err := e.schemas.get(t)
	if err != nil {
		return err
	}
	if len(s.fields) == 0 && isTextual(t) {
		return e.writeText(n, v)
	}

	if !v.CanAddr() {
		c := reflect.New(t).Elem()
		c.Set(v)
		v = c
	}
	if err := s.run(hookSerializing, v); err != nil {
		return wrapSerializationError(ErrHookFailed, e.path.String(), err)
	}
	for _, f := range s.fields {
		if err := e.WriteValue(n, f.tag, f.typ, v.FieldByIndex(f.index)); err != nil {
			return err
		}
	}
	if err := s.run(hookSerialized, v); err != nil {
		return wrapSerializationError(ErrHookFailed, e.path.String(), err)
	}
	return nil
}
