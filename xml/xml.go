// Package xml provides an XML codec implementation.
package xml

import (
	"encoding/xml"

	"github.com/zoobzio/weave"
)

// xmlCodec implements weave.Codec for XML.
type xmlCodec struct{}

// New returns an XML codec.
func New() weave.Codec {
	return &xmlCodec{}
}

// Contract returns an opaque codec embedding T as XML, with fields
// named by their xml tags.
func Contract[T any]() (*weave.ContractCodec, error) {
	table, err := weave.ContractFor[T]("xml")
	if err != nil {
		return nil, err
	}
	return weave.NewContractCodec[T](New(), table)
}

// ContentType returns the MIME type for XML.
func (c *xmlCodec) ContentType() string {
	return "application/xml"
}

// Marshal encodes v as XML.
func (c *xmlCodec) Marshal(v any) ([]byte, error) {
	return xml.Marshal(v)
}

// Unmarshal decodes XML data into v.
func (c *xmlCodec) Unmarshal(data []byte, v any) error {
	return xml.Unmarshal(data, v)
}
