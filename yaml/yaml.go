// Package yaml provides a YAML codec implementation.
package yaml

import (
	"github.com/zoobzio/weave"
	"gopkg.in/yaml.v3"
)

// yamlCodec implements weave.Codec for YAML.
type yamlCodec struct{}

// New returns a YAML codec.
func New() weave.Codec {
	return &yamlCodec{}
}

// Contract returns an opaque codec embedding T as YAML, with fields
// named by their yaml tags.
func Contract[T any]() (*weave.ContractCodec, error) {
	table, err := weave.ContractFor[T]("yaml")
	if err != nil {
		return nil, err
	}
	return weave.NewContractCodec[T](New(), table)
}

// ContentType returns the MIME type for YAML.
func (c *yamlCodec) ContentType() string {
	return "application/yaml"
}

// Marshal encodes v as YAML.
func (c *yamlCodec) Marshal(v any) ([]byte, error) {
	return yaml.Marshal(v)
}

// Unmarshal decodes YAML data into v.
func (c *yamlCodec) Unmarshal(data []byte, v any) error {
	return yaml.Unmarshal(data, v)
}
