package weave

import (
	"encoding"
	"reflect"
	"strconv"
	"strings"
)

// engine is the configuration shared by the reads and writes of one serializer.
type engine struct {
	known       *knownTypes
	schemas     *schemaCache
	opaques     *opaqueRegistry
	collections *collectionRegistry
	track       bool
	maxDepth    int
	maxLength   int
}

// inferable reports whether a reader can derive actual from declared
// without a type attribute.
func (e *engine) inferable(declared, actual reflect.Type) bool {
	if declared == actual {
		return true
	}
	if declared.Kind() != reflect.Interface {
		return false
	}
	concrete, ok := e.collections.concreteOf(declared)
	return ok && concrete == actual
}

// pathStack tracks element names for error messages.
type pathStack []string

func (p *pathStack) push(name string) { *p = append(*p, name) }
func (p *pathStack) pop() { *p = (*p)[:len(*p)-1] }
func (p pathStack) String() string { return strings.Join(p, "/") }

var (
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// isTextual reports whether values of t round-trip through their own text form.
func isTextual(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface:
		return false
	}
	pt := reflect.PointerTo(t)
	return (t.Implements(textMarshalerType) || pt.Implements(textMarshalerType)) &&
		pt.Implements(textUnmarshalerType)
}

func marshalText(v reflect.Value) ([]byte, error) {
	if v.Type().Implements(textMarshalerType) {
		return v.Interface().(encoding.TextMarshaler).MarshalText()
	}
	c := reflect.New(v.Type())
	c.Elem().Set(v)
	return c.Interface().(encoding.TextMarshaler).MarshalText()
}

// unmarshalText decodes text into the addressable value dst.
func unmarshalText(dst reflect.Value, text string) error {
	return dst.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(text))
}

func isScalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	}
	return false
}

// nullable reports whether t has a nil value.
func nullable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

func isNil(v reflect.Value) bool {
	return nullable(v.Type()) && v.IsNil()
}

func formatScalar(v reflect.Value) string {
	switch v.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case reflect.Complex64:
		return strconv.FormatComplex(v.Complex(), 'g', -1, 64)
	case reflect.Complex128:
		return strconv.FormatComplex(v.Complex(), 'g', -1, 128)
	}
	return v.String()
}

func parseScalar(text string, t reflect.Type) (reflect.Value, error) {
	v := reflect.New(t).Elem()
	var err error
	switch t.Kind() {
	case reflect.Bool:
		var b bool
		b, err = strconv.ParseBool(text)
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var i int64
		i, err = strconv.ParseInt(text, 10, t.Bits())
		v.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		var u uint64
		u, err = strconv.ParseUint(text, 10, t.Bits())
		v.SetUint(u)
	case reflect.Float32, reflect.Float64:
		var f float64
		f, err = strconv.ParseFloat(text, t.Bits())
		v.SetFloat(f)
	case reflect.Complex64, reflect.Complex128:
		var c complex128
		c, err = strconv.ParseComplex(text, t.Bits())
		v.SetComplex(c)
	case reflect.String:
		v.SetString(text)
	}
	return v, err
}
