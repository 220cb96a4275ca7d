package weave

import (
	"reflect"
)

// Writer is the engine surface available to opaque codecs while writing.
type Writer interface {
	// WriteValue appends a child element named name to parent holding v,
	// written as a value of the declared type.
	WriteValue(parent *Node, name string, declared reflect.Type, v reflect.Value) error

	// TypeName returns the name documents use for t.
	TypeName(t reflect.Type) string
}

// Reader is the engine surface available to opaque codecs while reading.
type Reader interface {
	// ReadValue decodes element n as a value of the declared type.
	ReadValue(n *Node, declared reflect.Type) (reflect.Value, error)

	// ResolveType returns the type a document name refers to.
	ResolveType(name string) (reflect.Type, error)
}

// Opaque owns the wire representation of the types it accepts, bypassing
// the field walk. Encode fills n with content; the engine has already
// written any reserved attributes.
type Opaque interface {
	Accepts(t reflect.Type) bool
	Encode(w Writer, n *Node, v reflect.Value) error
	Decode(r Reader, n *Node, t reflect.Type) (reflect.Value, error)
}

// EmptyDecoder is implemented by opaque codecs that construct their own
// value from an element with no content.
type EmptyDecoder interface {
	DecodeEmpty(t reflect.Type) (reflect.Value, error)
}

// Wrapper substitutes a serializable stand-in for values the engine cannot
// walk. The stand-in is written in place of the value, with a type attribute,
// and converted back once read.
type Wrapper interface {
	Accepts(t reflect.Type) bool

	// WrapperType is the type of the values Wrap returns.
	WrapperType() reflect.Type

	Wrap(w Writer, v reflect.Value) (reflect.Value, error)
	Unwrap(r Reader, wrapped reflect.Value) (reflect.Value, error)
}

// opaqueEntry holds either an Opaque or a Wrapper.
type opaqueEntry struct {
	codec   Opaque
	wrapper Wrapper
}

func (e opaqueEntry) accepts(t reflect.Type) bool {
	if e.codec != nil {
		return e.codec.Accepts(t)
	}
	return e.wrapper.Accepts(t)
}

// opaqueRegistry is the ordered list of opaque codecs of one serializer.
// The first entry accepting a type owns it.
type opaqueRegistry struct {
	entries []opaqueEntry
	owners  map[reflect.Type]opaqueEntry
}

func newOpaqueRegistry() *opaqueRegistry {
	return &opaqueRegistry{owners: make(map[reflect.Type]opaqueEntry)}
}

func (r *opaqueRegistry) addCodec(c Opaque) {
	r.entries = append(r.entries, opaqueEntry{codec: c})
}

func (r *opaqueRegistry) addWrapper(w Wrapper) {
	r.entries = append(r.entries, opaqueEntry{wrapper: w})
}

// owner returns the entry accepting t. Results are cached, including misses.
func (r *opaqueRegistry) owner(t reflect.Type) (opaqueEntry, bool) {
	if e, ok := r.owners[t]; ok {
		return e, e.codec != nil || e.wrapper != nil
	}
	var found opaqueEntry
	for _, e := range r.entries {
		if e.accepts(t) {
			found = e
			break
		}
	}
	r.owners[t] = found
	return found, found.codec != nil || found.wrapper != nil
}

func (r *opaqueRegistry) codecFor(t reflect.Type) Opaque {
	e, _ := r.owner(t)
	return e.codec
}

func (r *opaqueRegistry) wrapperFor(t reflect.Type) Wrapper {
	e, _ := r.owner(t)
	return e.wrapper
}

// unwrapperOf returns the wrapper whose stand-in type is t.
func (r *opaqueRegistry) unwrapperOf(t reflect.Type) Wrapper {
	for _, e := range r.entries {
		if e.wrapper != nil && e.wrapper.WrapperType() == t {
			return e.wrapper
		}
	}
	return nil
}

// TypeDescriptor is the stand-in written for reflect.Type values.
type TypeDescriptor struct {
	Name string
}

var (
	rtypeType          = reflect.TypeOf(reflect.TypeOf(0))
	typeDescriptorType = reflect.TypeFor[TypeDescriptor]()
)

// typeWrapper writes reflect.Type values by canonical name.
type typeWrapper struct{}

func (typeWrapper) Accepts(t reflect.Type) bool { return t == rtypeType }

func (typeWrapper) WrapperType() reflect.Type { return typeDescriptorType }

func (typeWrapper) Wrap(w Writer, v reflect.Value) (reflect.Value, error) {
	t := v.Interface().(reflect.Type)
	return reflect.ValueOf(TypeDescriptor{Name: w.TypeName(t)}), nil
}

func (typeWrapper) Unwrap(r Reader, wrapped reflect.Value) (reflect.Value, error) {
	d := wrapped.Interface().(TypeDescriptor)
	t, err := r.ResolveType(d.Name)
	if err != nil {
		return reflect.Value{}, err
	}
	return reflect.ValueOf(t), nil
}
