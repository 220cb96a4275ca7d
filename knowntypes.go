package weave

import (
	"reflect"
	"regexp"
	"strings"
)

// DelegateAlias is the known-type name always bound to CallableDescriptor.
const DelegateAlias = "Delegate"

// legacyModule matches the module path and short qualifier used by
// documents written before the codec moved to this module.
var legacyModule = regexp.MustCompile(`github\.com/zoobzio/cereal\b|, cereal\b`)

// remapLegacyName rewrites a type name from the former module layout.
func remapLegacyName(name string) string {
	return legacyModule.ReplaceAllStringFunc(name, func(m string) string {
		if strings.HasPrefix(m, ",") {
			return ", " + moduleShort
		}
		return modulePath
	})
}

// knownTypes is a serializer's explicit name<->type table.
// Entries are never overwritten; a conflicting registration fails.
type knownTypes struct {
	byName map[string]reflect.Type
	byType map[reflect.Type]string
}

func newKnownTypes() *knownTypes {
	return &knownTypes{
		byName: make(map[string]reflect.Type),
		byType: make(map[reflect.Type]string),
	}
}

// register binds t under name. With an empty name it tries the short name,
// the full name, then the canonical name and keeps the first not already
// bound to a different type.
func (k *knownTypes) register(name string, t reflect.Type) error {
	if t == nil {
		return newSerializationError(ErrUnknownType, "", "cannot register a nil type")
	}
	if name != "" {
		if bound, ok := k.byName[name]; ok && bound != t {
			return newSerializationError(ErrNameCollision, "", "name %q is bound to %s, cannot bind %s", name, bound, t)
		}
		k.bind(name, t)
		return nil
	}

	candidates := nameCandidates(t)
	for _, c := range candidates {
		if bound, ok := k.byName[c]; !ok || bound == t {
			k.bind(c, t)
			return nil
		}
	}
	return newSerializationError(ErrNameCollision, "", "every name of %s is bound to another type: %s", t, strings.Join(candidates, ", "))
}

func (k *knownTypes) bind(name string, t reflect.Type) {
	k.byName[name] = t
	if _, ok := k.byType[t]; !ok {
		k.byType[t] = name
	}
	// Keep the type resolvable process-wide by its canonical name too.
	registerTypeOf(t)
}

// nameCandidates lists the short, full and canonical names of t, deduplicated.
func nameCandidates(t reflect.Type) []string {
	canonical := TypeName(t)
	full, _, _ := splitQualifier(canonical)
	short := t.Name()
	if short == "" {
		short = full
	}

	out := make([]string, 0, 3)
	for _, c := range []string{short, full, canonical} {
		if len(out) > 0 && out[len(out)-1] == c {
			continue
		}
		out = append(out, c)
	}
	return out
}

// nameOf returns the name a document should use for t.
func (k *knownTypes) nameOf(t reflect.Type) string {
	if name, ok := k.byType[t]; ok {
		return name
	}
	return TypeName(t)
}

// resolve maps a document type name back to a type.
func (k *knownTypes) resolve(name string) (reflect.Type, bool) {
	name = remapLegacyName(name)
	if t, ok := k.byName[name]; ok {
		return t, true
	}
	return ResolveTypeName(name)
}
