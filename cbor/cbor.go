// Package cbor provides a CBOR codec implementation.
package cbor

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/zoobzio/weave"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map keys,
// smallest integer encoding, no indefinite-length items.
var encMode cbor.EncMode

// decMode decodes any-typed maps as map[string]any.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("cbor: encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("cbor: decoder initialization failed: " + err.Error())
	}
}

// cborCodec implements weave.Codec for CBOR.
type cborCodec struct{}

// New returns a CBOR codec.
func New() weave.Codec {
	return &cborCodec{}
}

// Contract returns an opaque codec embedding T as CBOR, with fields
// named by their cbor tags.
func Contract[T any]() (*weave.ContractCodec, error) {
	table, err := weave.ContractFor[T]("cbor")
	if err != nil {
		return nil, err
	}
	return weave.NewContractCodec[T](New(), table)
}

// ContentType returns the MIME type for CBOR.
func (c *cborCodec) ContentType() string {
	return "application/cbor"
}

// Marshal encodes v as CBOR using Core Deterministic Encoding.
func (c *cborCodec) Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func (c *cborCodec) Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
