package weave

import (
	"reflect"
)

// DefaultMaxDepth bounds element nesting unless WithMaxDepth says otherwise.
// Every pointer hop nests one element, so a linked list of more than about
// DefaultMaxDepth nodes needs a higher limit.
const DefaultMaxDepth = 1000

// DefaultMaxLength bounds the elements a read may allocate for one slice
// unless WithMaxLength says otherwise.
const DefaultMaxLength = 1 << 24

type knownType struct {
	name string
	typ  reflect.Type
}

type fieldOverride struct {
	typ         reflect.Type
	field, name string
}

type substitution struct {
	iface, concrete reflect.Type
}

// settings collects options before New validates them.
type settings struct {
	rootName      string
	refTracking   bool
	maxDepth      int
	maxLength     int
	indent        string
	knownTypes    []knownType
	fieldNames    []fieldOverride
	substitutions []substitution
	codecs        []Opaque
	wrappers      []Wrapper
	errs          []error
}

func defaultSettings() settings {
	return settings{
		maxDepth:  DefaultMaxDepth,
		maxLength: DefaultMaxLength,
		indent:    "  ",
	}
}

// Option configures a Serializer.
type Option func(*settings)

// WithRootName sets the name of the document root element.
func WithRootName(name string) Option {
	return func(s *settings) {
		s.rootName = name
	}
}

// WithRefTracking enables identity tracking. Shared objects are written
// once with an id and referenced afterwards, which also makes cycles writable.
func WithRefTracking(enabled bool) Option {
	return func(s *settings) {
		s.refTracking = enabled
	}
}

// WithMaxDepth sets the maximum element nesting. Zero disables the limit.
// Nesting grows with each pointer hop, so long linked structures need a
// limit above their length.
func WithMaxDepth(depth int) Option {
	return func(s *settings) {
		s.maxDepth = depth
	}
}

// WithMaxLength sets the largest slice a read will allocate, counted in
// elements. Documents declaring more fail with ErrArrayOverflow. Zero
// disables the limit.
func WithMaxLength(n int) Option {
	return func(s *settings) {
		s.maxLength = n
	}
}

// WithIndent sets the indentation of written documents. An empty string
// writes the document on one line.
func WithIndent(indent string) Option {
	return func(s *settings) {
		s.indent = indent
	}
}

// WithKnownType binds t to name in type attributes. An empty name uses the
// first free of the type's short, full and canonical names.
func WithKnownType(name string, t reflect.Type) Option {
	return func(s *settings) {
		s.knownTypes = append(s.knownTypes, knownType{name: name, typ: t})
	}
}

// WithKnownTypes binds each type under its first free name.
func WithKnownTypes(ts ...reflect.Type) Option {
	return func(s *settings) {
		for _, t := range ts {
			s.knownTypes = append(s.knownTypes, knownType{typ: t})
		}
	}
}

// WithFieldName renames a struct field in documents.
func WithFieldName(t reflect.Type, field, name string) Option {
	return func(s *settings) {
		s.fieldNames = append(s.fieldNames, fieldOverride{typ: t, field: field, name: name})
	}
}

// WithSubstitution makes readers construct concrete for elements declared
// as iface that carry no type attribute.
func WithSubstitution(iface, concrete reflect.Type) Option {
	return func(s *settings) {
		s.substitutions = append(s.substitutions, substitution{iface: iface, concrete: concrete})
	}
}

// WithOpaque adds an opaque codec. Codecs added earlier take precedence.
func WithOpaque(c Opaque) Option {
	return func(s *settings) {
		if c == nil {
			s.errs = append(s.errs, newSerializationError(ErrUnsupportedType, "", "nil opaque codec"))
			return
		}
		s.codecs = append(s.codecs, c)
	}
}

// WithWrapper adds a wrapper. Wrappers are consulted after opaque codecs,
// before the built-in callable and type wrappers.
func WithWrapper(w Wrapper) Option {
	return func(s *settings) {
		if w == nil {
			s.errs = append(s.errs, newSerializationError(ErrUnsupportedType, "", "nil wrapper"))
			return
		}
		s.wrappers = append(s.wrappers, w)
	}
}

// WithListType registers the default List[E] shape so that documents naming
// it resolve in a process that has not built a Vector[E] yet.
func WithListType[E any]() Option {
	return func(*settings) {
		RegisterType[*Vector[E]]()
	}
}

// WithMapType is WithListType for Map[K, V].
func WithMapType[K comparable, V any]() Option {
	return func(*settings) {
		RegisterType[*HashMap[K, V]]()
	}
}
