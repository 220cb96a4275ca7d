// Package msgpack provides a MessagePack codec implementation.
package msgpack

import (
	"github.com/vmihailenco/msgpack/v5"
	"github.com/zoobzio/weave"
)

// msgpackCodec implements weave.Codec for MessagePack.
type msgpackCodec struct{}

// New returns a MessagePack codec.
func New() weave.Codec {
	return &msgpackCodec{}
}

// Contract returns an opaque codec embedding T as MessagePack, with fields
// named by their msgpack tags.
func Contract[T any]() (*weave.ContractCodec, error) {
	table, err := weave.ContractFor[T]("msgpack")
	if err != nil {
		return nil, err
	}
	return weave.NewContractCodec[T](New(), table)
}

// ContentType returns the MIME type for MessagePack.
func (c *msgpackCodec) ContentType() string {
	return "application/msgpack"
}

// Marshal encodes v as MessagePack.
func (c *msgpackCodec) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Unmarshal decodes MessagePack data into v.
func (c *msgpackCodec) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}
