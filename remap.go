package weave

import (
	"reflect"
)

// fieldNames holds per-type external field name overrides.
type fieldNames map[reflect.Type]map[string]string

func (f fieldNames) set(t reflect.Type, field, external string) error {
	if t == nil || field == "" || external == "" {
		return newSerializationError(ErrUnknownField, "", "field override needs a type, a field and a name")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return newSerializationError(ErrUnsupportedType, t.String(), "field overrides apply to structs")
	}
	if _, ok := t.FieldByName(field); !ok {
		return newSerializationError(ErrUnknownField, t.String(), "no field %q", field)
	}
	byField, ok := f[t]
	if !ok {
		byField = make(map[string]string)
		f[t] = byField
	}
	if prev, ok := byField[field]; ok && prev != external {
		return newSerializationError(ErrNameCollision, t.String(), "field %s already renamed to %q", field, prev)
	}
	byField[field] = external
	return nil
}

func (f fieldNames) lookup(t reflect.Type, field string) (string, bool) {
	name, ok := f[t][field]
	return name, ok
}

// ContractField maps a struct field to its name in an external contract.
type ContractField struct {
	Original string       // Go field name
	External string       // name used by the external encoding
	Type     reflect.Type // declared field type
}

// ContractTable is a bidirectional original<->external field name table
// used when bridging a type to an externally defined encoding.
// It is read-only once built.
type ContractTable struct {
	fields     []ContractField
	byOriginal map[string]int
	byExternal map[string]int
}

// NewContractTable builds a table. Every original and external name must be unique.
func NewContractTable(fields ...ContractField) (*ContractTable, error) {
	c := &ContractTable{
		fields:     make([]ContractField, 0, len(fields)),
		byOriginal: make(map[string]int, len(fields)),
		byExternal: make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if f.Original == "" || f.External == "" || f.Type == nil {
			return nil, newSerializationError(ErrUnknownField, "", "contract field needs original, external and type")
		}
		if _, ok := c.byOriginal[f.Original]; ok {
			return nil, newSerializationError(ErrNameCollision, "", "field %q listed twice", f.Original)
		}
		if _, ok := c.byExternal[f.External]; ok {
			return nil, newSerializationError(ErrNameCollision, "", "external name %q listed twice", f.External)
		}
		c.byOriginal[f.Original] = len(c.fields)
		c.byExternal[f.External] = len(c.fields)
		c.fields = append(c.fields, f)
	}
	return c, nil
}

// ContractFor derives a table from the exported fields of struct type T,
// naming each field by its tag under key, or its Go name when untagged.
func ContractFor[T any](key string) (*ContractTable, error) {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Struct {
		return nil, newSerializationError(ErrUnsupportedType, t.String(), "contracts describe structs")
	}
	fields := make([]ContractField, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() || transient(sf.Tag) {
			continue
		}
		if v, ok := sf.Tag.Lookup(key); ok && v == "-" {
			continue
		}
		external := tagValue(sf.Tag, key)
		if external == "" {
			external = sf.Name
		}
		fields = append(fields, ContractField{Original: sf.Name, External: external, Type: sf.Type})
	}
	return NewContractTable(fields...)
}

// External returns the external name of an original field name.
func (c *ContractTable) External(original string) (string, bool) {
	i, ok := c.byOriginal[original]
	if !ok {
		return "", false
	}
	return c.fields[i].External, true
}

// Original returns the original field name of an external name.
func (c *ContractTable) Original(external string) (string, bool) {
	i, ok := c.byExternal[external]
	if !ok {
		return "", false
	}
	return c.fields[i].Original, true
}

// Fields returns the table entries in declaration order.
func (c *ContractTable) Fields() []ContractField {
	out := make([]ContractField, len(c.fields))
	copy(out, c.fields)
	return out
}
