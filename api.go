// Package weave writes arbitrary Go object graphs to XML documents and
// reads them back, preserving shared references, runtime types and funcs.
//
// # Basic Usage
//
//	type Trade struct {
//	    Symbol string
//	    Qty    int
//	}
//
//	type Portfolio struct {
//	    Owner  *Account
//	    Trades []*Trade
//	}
//
//	s, _ := weave.New[*Portfolio](weave.WithRefTracking(true))
//
//	data, _ := s.Marshal(ctx, p)
//	p2, _ := s.Unmarshal(ctx, data)
//
// # Document Format
//
// Every value is an element. Struct fields are child elements named by the
// field's weave tag, its xml tag or its Go name. A default value is written
// as an empty element and read back as that default.
// The reserved attributes are:
//
//	id       identity of a shared object, on its first occurrence
//	ref      back-reference to an earlier id
//	type     runtime type, when it cannot be inferred from the declaration
//	null     "true" for a nil reference
//	dim      array extents, comma separated
//	skipped  run of default array elements before this item
//	key      string map key
//
// Array and list members are item elements; map members are entry elements,
// with a key attribute for string keys and key/value children otherwise.
//
// # Type Names
//
// Type attributes carry canonical names: the package-qualified Go name,
// followed by the owning module for types outside the standard library.
// Go cannot load a type from its name, so readers only resolve types that
// were registered with RegisterType, bound with WithKnownType, or reached
// by a write in the same process.
//
// # Funcs
//
// Func values are written as a CallableDescriptor naming the method and its
// receiver. Package-level functions must be registered with RegisterFunc;
// methods are bound with Bind; state for a body is carried explicitly by the
// MakeFunc and MakeAction constructors.
//
// # Lifecycle Hooks
//
// Structs may declare any of:
//
//	OnSerializing() error
//	OnSerialized() error
//	OnDeserializing() error
//	OnDeserialized() error
//
// Hooks may also return nothing. A hook declared by the struct, or promoted
// from a single embedded struct, is the one called; otherwise the hooks of
// each embedded struct run in declaration order.
//
// # Codec Providers
//
// ContractCodec embeds values encoded by another Codec. The following codec
// implementations are available as subpackages:
//
//   - json - JSON encoding (application/json)
//   - xml - XML encoding (application/xml)
//   - yaml - YAML encoding (application/yaml)
//   - msgpack - MessagePack encoding (application/msgpack)
//   - bson - BSON encoding (application/bson)
//   - cbor - CBOR encoding (application/cbor)
package weave

import (
	"bytes"
	"context"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/zoobzio/sentinel"
)

// ContentType is the MIME type of documents written by a Serializer.
const ContentType = "application/xml"

// Serializer writes and reads documents whose root is a T.
// A Serializer is not safe for concurrent use.
type Serializer[T any] struct {
	engine   *engine
	rootType reflect.Type
	rootName string
	typeName string
	indent   string
}

// New creates a Serializer for T. Without options it nests at most
// DefaultMaxDepth elements, which also bounds the length of linked lists
// written without ref tracking; see WithMaxDepth.
func New[T any](opts ...Option) (*Serializer[T], error) {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.errs) > 0 {
		return nil, cfg.errs[0]
	}
	if cfg.maxDepth < 0 {
		return nil, newSerializationError(ErrMaxDepth, "", "negative limit %d", cfg.maxDepth)
	}
	if cfg.maxLength < 0 {
		return nil, newSerializationError(ErrArrayOverflow, "", "negative limit %d", cfg.maxLength)
	}

	root := reflect.TypeFor[T]()
	rootName := cfg.rootName
	if rootName == "" {
		rootName = defaultRootName(root)
	}

	known := newKnownTypes()
	if err := known.register(DelegateAlias, callableDescriptorType); err != nil {
		return nil, err
	}
	if err := known.register("", root); err != nil {
		return nil, err
	}
	for _, k := range cfg.knownTypes {
		if err := known.register(k.name, k.typ); err != nil {
			return nil, err
		}
	}

	names := make(fieldNames)
	for _, f := range cfg.fieldNames {
		if err := names.set(f.typ, f.field, f.name); err != nil {
			return nil, err
		}
	}

	collections := newCollectionRegistry()
	for _, sub := range cfg.substitutions {
		if err := collections.substitute(sub.iface, sub.concrete); err != nil {
			return nil, err
		}
	}

	opaques := newOpaqueRegistry()
	for _, c := range cfg.codecs {
		opaques.addCodec(c)
	}
	for _, w := range cfg.wrappers {
		opaques.addWrapper(w)
	}
	opaques.addWrapper(callableWrapper{})
	opaques.addWrapper(typeWrapper{})

	registerTypeOf(root)

	s := &Serializer[T]{
		engine: &engine{
			known:       known,
			schemas:     newSchemaCache(names),
			opaques:     opaques,
			collections: collections,
			track:       cfg.refTracking,
			maxDepth:    cfg.maxDepth,
			maxLength:   cfg.maxLength,
		},
		rootType: root,
		rootName: rootName,
		typeName: TypeName(root),
		indent:   cfg.indent,
	}

	emitSerializerCreated(context.Background(), s.typeName, s.rootName)
	return s, nil
}

// defaultRootName is the Go name of t without pointers or type arguments.
func defaultRootName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "value"
	}
	return name
}

// ContentType returns the MIME type of written documents.
func (s *Serializer[T]) ContentType() string {
	return ContentType
}

// RootName returns the name of the document root element.
func (s *Serializer[T]) RootName() string {
	return s.rootName
}

// Schema returns the field metadata the serializer uses for struct type t.
func (s *Serializer[T]) Schema(t reflect.Type) (sentinel.Metadata, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return sentinel.Metadata{}, newSerializationError(ErrUnsupportedType, "", "%v is not a struct", t)
	}
	sc, err := s.engine.schemas.get(t)
	if err != nil {
		return sentinel.Metadata{}, err
	}
	return sc.meta, nil
}

// Marshal writes v to a new document.
func (s *Serializer[T]) Marshal(ctx context.Context, v T) ([]byte, error) {
	start := time.Now()
	emitWriteStart(ctx, s.typeName, s.rootName)

	data, enc, err := s.encode(v)
	emitWriteComplete(ctx, s.typeName, s.rootName, len(data), time.Since(start), enc.count, enc.shared(), err)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Write writes v to w. The document is built completely before any byte
// is written, so a failed write leaves w untouched.
func (s *Serializer[T]) Write(ctx context.Context, w io.Writer, v T) error {
	start := time.Now()
	emitWriteStart(ctx, s.typeName, s.rootName)

	data, enc, err := s.encode(v)
	if err == nil {
		_, err = w.Write(data)
	}
	emitWriteComplete(ctx, s.typeName, s.rootName, len(data), time.Since(start), enc.count, enc.shared(), err)
	return err
}

func (s *Serializer[T]) encode(v T) ([]byte, *encoder, error) {
	enc := newEncoder(s.engine)
	root, err := enc.encode(s.rootName, s.rootType, reflect.ValueOf(&v).Elem())
	if err != nil {
		return nil, enc, err
	}
	var buf bytes.Buffer
	if err := encodeDocument(&buf, root, s.indent); err != nil {
		return nil, enc, wrapSerializationError(ErrMalformed, s.rootName, err)
	}
	return buf.Bytes(), enc, nil
}

// shared reports the number of objects written with an id.
func (e *encoder) shared() int {
	if e.refs == nil {
		return 0
	}
	return e.refs.shared()
}

// Unmarshal reads a document whose root element carries the serializer's
// root name.
func (s *Serializer[T]) Unmarshal(ctx context.Context, data []byte) (T, error) {
	start := time.Now()
	emitReadStart(ctx, s.typeName, s.rootName)

	v, objects, err := s.read(bytes.NewReader(data), true)
	emitReadComplete(ctx, s.typeName, s.rootName, len(data), time.Since(start), objects, err)
	return v, err
}

// Read reads a document from r. The root element name is not checked.
func (s *Serializer[T]) Read(ctx context.Context, r io.Reader) (T, error) {
	start := time.Now()
	emitReadStart(ctx, s.typeName, s.rootName)

	cr := &countingReader{r: r}
	v, objects, err := s.read(cr, false)
	emitReadComplete(ctx, s.typeName, s.rootName, cr.n, time.Since(start), objects, err)
	return v, err
}

func (s *Serializer[T]) read(r io.Reader, checkRoot bool) (T, int, error) {
	var zero T
	root, err := decodeDocument(r)
	if err != nil {
		return zero, 0, err
	}
	if checkRoot && root.Name != s.rootName {
		return zero, 0, newSerializationError(ErrRootName, root.Name, "want <%s>", s.rootName)
	}

	dec := newDecoder(s.engine)
	v, err := dec.decode(root, s.rootType)
	if err != nil {
		return zero, dec.count, err
	}
	var out T
	reflect.ValueOf(&out).Elem().Set(v)
	return out, dec.count, nil
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}
