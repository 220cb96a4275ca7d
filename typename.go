package weave

import (
	"fmt"
	"reflect"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
)

const (
	// modulePath is the import path prefix of this module family.
	modulePath = "github.com/zoobzio/weave"

	// moduleShort qualifies names of this module family. It carries no version,
	// so documents stay valid across internal version bumps.
	moduleShort = "weave"
)

// TypeName returns the canonical name of t.
//
// Predeclared and standard library types use their full name only
// ("int", "time.Time"). Types of this module use the full name plus the
// short module name ("github.com/zoobzio/weave.Vector[[int]], weave").
// All other types carry the complete module identity from the binary's
// build info ("example.com/p.Node, example.com/p@v1.2.0").
//
// TypeName is memoized process-wide and safe for concurrent use.
func TypeName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	return types.name(t)
}

// ResolveTypeName returns the type named by a canonical name.
// Named types resolve only once this process has named or registered them;
// unnamed composites (pointers, slices, arrays, maps, funcs) are rebuilt
// structurally from their element types.
func ResolveTypeName(name string) (reflect.Type, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false
	}
	if t, ok := types.lookup(name); ok {
		return t, true
	}
	p := &nameParser{src: name}
	t, err := p.parse(true)
	if err != nil || p.pos != len(p.src) {
		return nil, false
	}
	return t, true
}

// renderTypeName computes the canonical name of t and, for named types,
// the same name without its module qualifier.
func renderTypeName(t reflect.Type) (name, full string) {
	if t.Name() != "" {
		if t.PkgPath() == "" {
			return t.Name(), t.Name()
		}
		full = t.PkgPath() + "." + renderGenericName(t.Name())
		return qualify(t.PkgPath(), full), full
	}

	switch t.Kind() {
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return "any", ""
		}
	case reflect.Pointer:
		return "*" + nestedName(t.Elem()), ""
	case reflect.Slice:
		return "[]" + nestedName(t.Elem()), ""
	case reflect.Array:
		return "[" + strconv.Itoa(t.Len()) + "]" + nestedName(t.Elem()), ""
	case reflect.Map:
		return "map[" + nestedName(t.Key()) + "]" + nestedName(t.Elem()), ""
	case reflect.Func:
		return renderFuncName(t), ""
	case reflect.Chan:
		switch t.ChanDir() {
		case reflect.RecvDir:
			return "<-chan " + nestedName(t.Elem()), ""
		case reflect.SendDir:
			return "chan<- " + nestedName(t.Elem()), ""
		}
		return "chan " + nestedName(t.Elem()), ""
	}
	// Unnamed structs and interfaces have no better identity than their literal.
	return t.String(), ""
}

func renderFuncName(t reflect.Type) string {
	var b strings.Builder
	b.WriteString("func(")
	for i := 0; i < t.NumIn(); i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		in := t.In(i)
		if t.IsVariadic() && i == t.NumIn()-1 {
			b.WriteString("...")
			in = in.Elem()
		}
		b.WriteString(nestedName(in))
	}
	b.WriteByte(')')
	switch t.NumOut() {
	case 0:
	case 1:
		b.WriteByte(' ')
		b.WriteString(nestedName(t.Out(0)))
	default:
		b.WriteString(" (")
		for i := 0; i < t.NumOut(); i++ {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(nestedName(t.Out(i)))
		}
		b.WriteByte(')')
	}
	return b.String()
}

// nestedName brackets a module-qualified name so it can sit inside a composite.
func nestedName(t reflect.Type) string {
	return bracketQualified(TypeName(t))
}

func bracketQualified(n string) string {
	if _, _, ok := splitQualifier(n); ok {
		return "[" + n + "]"
	}
	return n
}

// splitQualifier splits "full, module" at the top-level ", ".
func splitQualifier(n string) (base, module string, ok bool) {
	depth := 0
	for i := 0; i < len(n); i++ {
		switch n[i] {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
		case ',':
			if depth == 0 && i+1 < len(n) && n[i+1] == ' ' {
				return n[:i], n[i+2:], true
			}
		}
	}
	return n, "", false
}

// qualify applies the three-tier module rule to a full type name.
func qualify(pkgPath, full string) string {
	switch {
	case isStdlib(pkgPath):
		return full
	case pkgPath == modulePath || strings.HasPrefix(pkgPath, modulePath+"/"):
		return full + ", " + moduleShort
	}
	if mod := moduleOf(pkgPath); mod != "" {
		return full + ", " + mod
	}
	return full
}

// isStdlib reports whether an import path belongs to the Go distribution.
func isStdlib(pkgPath string) bool {
	first, _, _ := strings.Cut(pkgPath, "/")
	return !strings.Contains(first, ".")
}

type buildModule struct {
	path    string
	version string
}

var buildModules = sync.OnceValue(func() []buildModule {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	mods := make([]buildModule, 0, len(info.Deps)+1)
	if info.Main.Path != "" {
		mods = append(mods, buildModule{path: info.Main.Path, version: info.Main.Version})
	}
	for _, dep := range info.Deps {
		mods = append(mods, buildModule{path: dep.Path, version: dep.Version})
	}
	return mods
})

// moduleOf returns "path@version" of the module providing pkgPath.
func moduleOf(pkgPath string) string {
	var best buildModule
	for _, m := range buildModules() {
		if pkgPath != m.path && !strings.HasPrefix(pkgPath, m.path+"/") {
			continue
		}
		if len(m.path) > len(best.path) {
			best = m
		}
	}
	if best.path == "" {
		return ""
	}
	if best.version == "" {
		return best.path
	}
	return best.path + "@" + best.version
}

// renderGenericName rewrites Go's "Pair[int,example.com/p.Node]" into
// "Pair[[int],[example.com/p.Node, example.com/p@v1.0.0]]".
func renderGenericName(name string) string {
	open := strings.IndexByte(name, '[')
	if open < 0 || !strings.HasSuffix(name, "]") {
		return name
	}
	args := splitTopLevel(name[open+1:len(name)-1], ',')
	rendered := make([]string, len(args))
	for i, arg := range args {
		rendered[i] = "[" + canonicalGoText(arg) + "]"
	}
	return name[:open] + "[" + strings.Join(rendered, ",") + "]"
}

// canonicalGoText canonicalises a type written in Go's reflect notation.
// Reflection does not expose type arguments, so generic arguments are
// rewritten textually; shapes it does not recognise are kept verbatim.
func canonicalGoText(s string) string {
	switch {
	case strings.HasPrefix(s, "*"):
		return "*" + bracketQualified(canonicalGoText(s[1:]))
	case strings.HasPrefix(s, "[]"):
		return "[]" + bracketQualified(canonicalGoText(s[2:]))
	case strings.HasPrefix(s, "map["):
		end := matchBracket(s, 3)
		if end < 0 {
			return s
		}
		return "map[" + bracketQualified(canonicalGoText(s[4:end])) + "]" + bracketQualified(canonicalGoText(s[end+1:]))
	case strings.HasPrefix(s, "["):
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return s
		}
		if _, err := strconv.Atoi(s[1:end]); err != nil {
			return s
		}
		return s[:end+1] + bracketQualified(canonicalGoText(s[end+1:]))
	case strings.HasPrefix(s, "func(") || strings.HasPrefix(s, "chan ") || strings.Contains(s, " "):
		return s
	}

	base, args := s, ""
	if open := strings.IndexByte(s, '['); open >= 0 {
		base, args = s[:open], s[open:]
	}
	dot := strings.LastIndexByte(base, '.')
	if dot < 0 {
		return s
	}
	pkg := base[:dot]
	return qualify(pkg, pkg+"."+renderGenericName(base[dot+1:]+args))
}

// matchBracket returns the index of the ']' closing the '[' at open.
func matchBracket(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits s on sep outside of brackets and parentheses.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

var predeclared = map[string]reflect.Type{
	"bool":         reflect.TypeFor[bool](),
	"int":          reflect.TypeFor[int](),
	"int8":         reflect.TypeFor[int8](),
	"int16":        reflect.TypeFor[int16](),
	"int32":        reflect.TypeFor[int32](),
	"int64":        reflect.TypeFor[int64](),
	"uint":         reflect.TypeFor[uint](),
	"uint8":        reflect.TypeFor[uint8](),
	"uint16":       reflect.TypeFor[uint16](),
	"uint32":       reflect.TypeFor[uint32](),
	"uint64":       reflect.TypeFor[uint64](),
	"uintptr":      reflect.TypeFor[uintptr](),
	"float32":      reflect.TypeFor[float32](),
	"float64":      reflect.TypeFor[float64](),
	"complex64":    reflect.TypeFor[complex64](),
	"complex128":   reflect.TypeFor[complex128](),
	"string":       reflect.TypeFor[string](),
	"error":        reflect.TypeFor[error](),
	"interface {}": reflect.TypeFor[any](),
	"any":          reflect.TypeFor[any](),
}

// nameParser rebuilds composite types from canonical names.
type nameParser struct {
	src string
	pos int
}

// maxArrayTypeSize bounds the size in bytes of array types built from
// names, which documents control.
const maxArrayTypeSize = 1 << 30

func (p *nameParser) rest() string { return p.src[p.pos:] }

func (p *nameParser) errorf(format string, args ...any) error {
	return fmt.Errorf("type name %q at %d: %s", p.src, p.pos, fmt.Sprintf(format, args...))
}

// parse reads one type. At top level a plain name may carry a module
// qualifier and extends to the end of the input.
func (p *nameParser) parse(top bool) (reflect.Type, error) {
	rest := p.rest()
	switch {
	case strings.HasPrefix(rest, "*"):
		p.pos++
		elem, err := p.parse(false)
		if err != nil {
			return nil, err
		}
		return reflect.PointerTo(elem), nil

	case strings.HasPrefix(rest, "[]"):
		p.pos += 2
		elem, err := p.parse(false)
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(elem), nil

	case strings.HasPrefix(rest, "map["):
		p.pos += 4
		key, err := p.parse(false)
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(p.rest(), "]") {
			return nil, p.errorf("expected ]")
		}
		p.pos++
		elem, err := p.parse(false)
		if err != nil {
			return nil, err
		}
		if !key.Comparable() {
			return nil, p.errorf("map key %s is not comparable", key)
		}
		return reflect.MapOf(key, elem), nil

	case strings.HasPrefix(rest, "func("):
		return p.parseFunc()

	case strings.HasPrefix(rest, "["):
		end := strings.IndexByte(rest, ']')
		if end > 1 {
			if n, err := strconv.Atoi(rest[1:end]); err == nil {
				p.pos += end + 1
				if n < 0 {
					return nil, p.errorf("negative array length %d", n)
				}
				elem, err := p.parse(false)
				if err != nil {
					return nil, err
				}
				if elem.Size() > 0 && uint64(n) > maxArrayTypeSize/uint64(elem.Size()) {
					return nil, p.errorf("array of %d %s is too large", n, elem)
				}
				return reflect.ArrayOf(n, elem), nil
			}
		}
		closing := matchBracket(rest, 0)
		if closing < 0 {
			return nil, p.errorf("unbalanced brackets")
		}
		inner := rest[1:closing]
		p.pos += closing + 1
		t, ok := ResolveTypeName(inner)
		if !ok {
			return nil, p.errorf("unknown type %q", inner)
		}
		return t, nil
	}

	token := p.scanName(top)
	if token == "" {
		return nil, p.errorf("expected type")
	}
	if t, ok := predeclared[token]; ok {
		return t, nil
	}
	if t, ok := types.lookup(token); ok {
		return t, nil
	}
	return nil, p.errorf("unknown type %q", token)
}

func (p *nameParser) parseFunc() (reflect.Type, error) {
	p.pos += len("func(")
	var in []reflect.Type
	variadic := false
	for !strings.HasPrefix(p.rest(), ")") {
		if len(in) > 0 {
			if !strings.HasPrefix(p.rest(), ",") {
				return nil, p.errorf("expected , or )")
			}
			p.pos++
		}
		if strings.HasPrefix(p.rest(), "...") {
			p.pos += 3
			variadic = true
		}
		t, err := p.parse(false)
		if err != nil {
			return nil, err
		}
		if variadic {
			t = reflect.SliceOf(t)
		}
		in = append(in, t)
	}
	p.pos++

	var out []reflect.Type
	switch {
	case strings.HasPrefix(p.rest(), " ("):
		p.pos += 2
		for !strings.HasPrefix(p.rest(), ")") {
			if len(out) > 0 {
				if !strings.HasPrefix(p.rest(), ",") {
					return nil, p.errorf("expected , or )")
				}
				p.pos++
			}
			t, err := p.parse(false)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
		p.pos++
	case strings.HasPrefix(p.rest(), " "):
		p.pos++
		t, err := p.parse(false)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return reflect.FuncOf(in, out, variadic), nil
}

// scanName reads a plain type name. Nested names stop at the first
// separator outside brackets; top-level names take the remainder.
func (p *nameParser) scanName(top bool) string {
	if top {
		token := p.rest()
		p.pos = len(p.src)
		return token
	}
	start, depth := p.pos, 0
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case '[':
			depth++
		case ']':
			if depth == 0 {
				return p.src[start:p.pos]
			}
			depth--
		case ',', ')', ' ':
			if depth == 0 {
				return p.src[start:p.pos]
			}
		}
		p.pos++
	}
	return p.src[start:p.pos]
}
