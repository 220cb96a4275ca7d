package weave

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"reflect"
	"strings"
)

// wireTags are the struct tag keys set on contract wire fields, one per
// codec subpackage.
var wireTags = []string{"json", "yaml", "msgpack", "bson", "cbor", "xml"}

// ContractCodec is an opaque codec that writes a struct through an external
// Codec, naming its fields by a ContractTable. Fields outside the table are
// not written. Binary encodings are embedded as base64.
type ContractCodec struct {
	codec  Codec
	table  *ContractTable
	typ    reflect.Type
	wire   reflect.Type
	binary bool
}

// NewContractCodec builds a codec for struct type T. Every table field must
// name an exported field of T with the declared type.
func NewContractCodec[T any](codec Codec, table *ContractTable) (*ContractCodec, error) {
	t := reflect.TypeFor[T]()
	if codec == nil || table == nil {
		return nil, newSerializationError(ErrUnsupportedType, t.String(), "contract codec needs a codec and a table")
	}
	if t.Kind() != reflect.Struct {
		return nil, newSerializationError(ErrUnsupportedType, t.String(), "contracts describe structs")
	}

	fields := make([]reflect.StructField, 0, len(table.fields)+1)
	fields = append(fields, reflect.StructField{
		Name: "XMLName",
		Type: reflect.TypeFor[xml.Name](),
		Tag:  wireTag(defaultRootName(t), "-"),
	})
	for i, f := range table.fields {
		sf, ok := t.FieldByName(f.Original)
		if !ok || !sf.IsExported() {
			return nil, newSerializationError(ErrUnknownField, t.String(), "no exported field %q", f.Original)
		}
		if sf.Type != f.Type {
			return nil, newSerializationError(ErrUnsupportedType, t.String(), "field %s is %s, contract says %s", f.Original, sf.Type, f.Type)
		}
		fields = append(fields, reflect.StructField{
			Name: fmt.Sprintf("F%d", i),
			Type: f.Type,
			Tag:  wireTag("", f.External),
		})
	}

	RegisterType[T]()
	return &ContractCodec{
		codec:  codec,
		table:  table,
		typ:    t,
		wire:   reflect.StructOf(fields),
		binary: !textual(codec.ContentType()),
	}, nil
}

// wireTag tags a field with name under every codec key. A non-empty xmlName
// overrides the xml key.
func wireTag(xmlName, name string) reflect.StructTag {
	parts := make([]string, 0, len(wireTags))
	for _, key := range wireTags {
		v := name
		if key == "xml" && xmlName != "" {
			v = xmlName
		}
		parts = append(parts, fmt.Sprintf("%s:%q", key, v))
	}
	return reflect.StructTag(strings.Join(parts, " "))
}

// ContentType returns the content type of the embedded payload.
func (c *ContractCodec) ContentType() string {
	return c.codec.ContentType()
}

// Table returns the contract table.
func (c *ContractCodec) Table() *ContractTable {
	return c.table
}

// Accepts implements Opaque.
func (c *ContractCodec) Accepts(t reflect.Type) bool {
	return t == c.typ
}

// Encode implements Opaque.
func (c *ContractCodec) Encode(_ Writer, n *Node, v reflect.Value) error {
	w := reflect.New(c.wire).Elem()
	for i, f := range c.table.fields {
		w.Field(i + 1).Set(v.FieldByName(f.Original))
	}
	data, err := c.codec.Marshal(w.Addr().Interface())
	if err != nil {
		return wrapSerializationError(ErrUnsupportedType, "", err)
	}
	if c.binary {
		n.Text = base64.StdEncoding.EncodeToString(data)
	} else {
		n.Text = string(data)
	}
	return nil
}

// Decode implements Opaque.
func (c *ContractCodec) Decode(_ Reader, n *Node, t reflect.Type) (reflect.Value, error) {
	if len(n.Children) > 0 {
		return reflect.Value{}, newSerializationError(ErrMalformed, "", "contract payload with child elements")
	}
	data := []byte(n.Text)
	if c.binary {
		var err error
		if data, err = base64.StdEncoding.DecodeString(strings.TrimSpace(n.Text)); err != nil {
			return reflect.Value{}, wrapSerializationError(ErrMalformed, "", err)
		}
	}

	w := reflect.New(c.wire)
	if err := c.codec.Unmarshal(data, w.Interface()); err != nil {
		return reflect.Value{}, wrapSerializationError(ErrMalformed, "", err)
	}
	out := reflect.New(t).Elem()
	for i, f := range c.table.fields {
		out.FieldByName(f.Original).Set(w.Elem().Field(i + 1))
	}
	return out, nil
}
