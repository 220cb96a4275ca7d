// Package json provides a JSON codec implementation.
package json

import (
	"encoding/json"

	"github.com/zoobzio/weave"
)

// jsonCodec implements weave.Codec for JSON.
type jsonCodec struct{}

// New returns a JSON codec.
func New() weave.Codec {
	return &jsonCodec{}
}

// Contract returns an opaque codec embedding T as JSON, with fields
// named by their json tags.
func Contract[T any]() (*weave.ContractCodec, error) {
	table, err := weave.ContractFor[T]("json")
	if err != nil {
		return nil, err
	}
	return weave.NewContractCodec[T](New(), table)
}

// ContentType returns the MIME type for JSON.
func (c *jsonCodec) ContentType() string {
	return "application/json"
}

// Marshal encodes v as JSON.
func (c *jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes JSON data into v.
func (c *jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
