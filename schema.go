package weave

import (
	"reflect"
	"strings"

	"github.com/zoobzio/sentinel"
)

func init() {
	// Register the field tag with sentinel
	sentinel.Tag(tagName)
}

const (
	// tagName is the struct tag carrying external field names.
	tagName = "weave"

	// basePrefix re-keys a field hidden by a more derived field of the same name.
	basePrefix = "Base."
)

// hook identifies a lifecycle callback.
type hook int

const (
	hookSerializing hook = iota
	hookSerialized
	hookDeserializing
	hookDeserialized
	hookCount
)

var hookMethods = [hookCount]string{
	hookSerializing:   "OnSerializing",
	hookSerialized:    "OnSerialized",
	hookDeserializing: "OnDeserializing",
	hookDeserialized:  "OnDeserialized",
}

var errorType = reflect.TypeFor[error]()

// hookFunc runs a lifecycle callback on an addressable struct value.
type hookFunc func(v reflect.Value) error

func noHook(reflect.Value) error { return nil }

// schemaField is one serializable field of a struct.
type schemaField struct {
	tag   string
	index []int
	typ   reflect.Type
	level int
}

// schema is the cached field layout of a struct type.
type schema struct {
	typ    reflect.Type
	fields []*schemaField
	byTag  map[string]*schemaField
	hooks  [hookCount]hookFunc
	meta   sentinel.Metadata
}

// run invokes a hook on v, copying v first when it is not addressable.
func (s *schema) run(h hook, v reflect.Value) error {
	if !v.CanAddr() {
		c := reflect.New(v.Type()).Elem()
		c.Set(v)
		v = c
	}
	return s.hooks[h](v)
}

// schemaCache holds schemas for one serializer. It is not safe for concurrent use.
type schemaCache struct {
	names   fieldNames
	schemas map[reflect.Type]*schema
}

func newSchemaCache(names fieldNames) *schemaCache {
	return &schemaCache{
		names:   names,
		schemas: make(map[reflect.Type]*schema),
	}
}

// get returns the schema of struct type t, building it on first use.
func (c *schemaCache) get(t reflect.Type) (*schema, error) {
	if s, ok := c.schemas[t]; ok {
		return s, nil
	}
	s, err := c.build(t)
	if err != nil {
		return nil, err
	}
	c.schemas[t] = s
	return s, nil
}

type schemaLevel struct {
	typ   reflect.Type
	index []int
}

// build walks t breadth first: the struct's own fields are level 0, fields of
// embedded structs are one level deeper per embedding.
func (c *schemaCache) build(t reflect.Type) (*schema, error) {
	s := &schema{
		typ:   t,
		byTag: make(map[string]*schemaField),
		meta: sentinel.Metadata{
			TypeName:    t.Name(),
			PackageName: t.PkgPath(),
		},
	}

	queue := []schemaLevel{{typ: t}}
	for level := 0; len(queue) > 0; level++ {
		var next []schemaLevel
		for _, lv := range queue {
			for i := 0; i < lv.typ.NumField(); i++ {
				sf := lv.typ.Field(i)
				index := append(append([]int{}, lv.index...), i)

				if sf.Anonymous && sf.Type.Kind() == reflect.Struct {
					if transient(sf.Tag) {
						continue
					}
					next = append(next, schemaLevel{typ: sf.Type, index: index})
					continue
				}
				if !sf.IsExported() || transient(sf.Tag) {
					continue
				}

				if err := s.add(c.fieldName(lv.typ, sf), sf, index, level); err != nil {
					return nil, err
				}
			}
		}
		queue = next
	}

	for h := hook(0); h < hookCount; h++ {
		fn, err := buildHook(t, hookMethods[h])
		if err != nil {
			return nil, err
		}
		if fn == nil {
			fn = noHook
		}
		s.hooks[h] = fn
	}
	return s, nil
}

// add inserts a field, prefixing its tag once per level it is hidden by.
func (s *schema) add(tag string, sf reflect.StructField, index []int, level int) error {
	for {
		prev, taken := s.byTag[tag]
		if !taken {
			break
		}
		if prev.level == level {
			return newSerializationError(ErrNameCollision, s.typ.String(),
				"fields %s and %s both map to %q", fieldPath(s.typ, prev.index), fieldPath(s.typ, index), tag)
		}
		tag = basePrefix + tag
	}

	f := &schemaField{tag: tag, index: index, typ: sf.Type, level: level}
	s.fields = append(s.fields, f)
	s.byTag[tag] = f
	fm := sentinel.FieldMetadata{
		Name:        sf.Name,
		Type:        sf.Type.String(),
		ReflectType: sf.Type,
		Index:       index,
		Tags:        map[string]string{tagName: tag},
	}
	setFieldKind(&fm, sf.Type)
	s.meta.Fields = append(s.meta.Fields, fm)
	return nil
}

// fieldName resolves the external name: configured override, weave tag,
// xml tag, then the Go field name.
func (c *schemaCache) fieldName(owner reflect.Type, sf reflect.StructField) string {
	if name, ok := c.names.lookup(owner, sf.Name); ok {
		return name
	}
	for _, key := range []string{tagName, "xml"} {
		if name := tagValue(sf.Tag, key); name != "" {
			return name
		}
	}
	return sf.Name
}

func tagValue(tag reflect.StructTag, key string) string {
	v, ok := tag.Lookup(key)
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(v, ",")
	if name == "-" || strings.ContainsAny(name, "> ") {
		return ""
	}
	return name
}

func transient(tag reflect.StructTag) bool {
	for _, key := range []string{tagName, "xml"} {
		if v, ok := tag.Lookup(key); ok && v == "-" {
			return true
		}
	}
	return false
}

func setFieldKind(fm *sentinel.FieldMetadata, t reflect.Type) {
	switch t.Kind() {
	case reflect.Struct:
		fm.Kind = sentinel.KindStruct
	case reflect.Ptr:
		fm.Kind = sentinel.KindPointer
	case reflect.Slice, reflect.Array:
		fm.Kind = sentinel.KindSlice
	case reflect.Map:
		fm.Kind = sentinel.KindMap
	case reflect.Interface:
		fm.Kind = sentinel.KindInterface
	default:
		fm.Kind = sentinel.KindScalar
	}
}

func fieldPath(t reflect.Type, index []int) string {
	names := make([]string, 0, len(index))
	for _, i := range index {
		f := t.Field(i)
		names = append(names, f.Name)
		t = f.Type
	}
	return strings.Join(names, ".")
}

// buildHook resolves one lifecycle hook for struct type t. A method in the
// method set of *t, declared or promoted, wins. Otherwise the hooks of
// embedded structs run in declaration order. It returns nil when no level
// declares the hook.
func buildHook(t reflect.Type, name string) (hookFunc, error) {
	if m, ok := reflect.PointerTo(t).MethodByName(name); ok {
		if err := checkHookSignature(t, m); err != nil {
			return nil, err
		}
		returnsErr := m.Type.NumOut() == 1
		return func(v reflect.Value) error {
			out := v.Addr().Method(m.Index).Call(nil)
			if returnsErr && !out[0].IsNil() {
				return out[0].Interface().(error)
			}
			return nil
		}, nil
	}

	type part struct {
		field int
		fn    hookFunc
	}
	var parts []part
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.Anonymous || !sf.IsExported() || sf.Type.Kind() != reflect.Struct {
			continue
		}
		fn, err := buildHook(sf.Type, name)
		if err != nil {
			return nil, err
		}
		if fn != nil {
			parts = append(parts, part{field: i, fn: fn})
		}
	}
	if len(parts) == 0 {
		return nil, nil
	}
	return func(v reflect.Value) error {
		for _, p := range parts {
			if err := p.fn(v.Field(p.field)); err != nil {
				return err
			}
		}
		return nil
	}, nil
}

func checkHookSignature(t reflect.Type, m reflect.Method) error {
	mt := m.Type // includes the receiver
	ok := mt.NumIn() == 1 && !mt.IsVariadic() &&
		(mt.NumOut() == 0 || (mt.NumOut() == 1 && mt.Out(0) == errorType))
	if ok {
		return nil
	}
	return newSerializationError(ErrHookSignature, t.String(),
		"%s has type %s, want func() or func() error", m.Name, mt)
}
