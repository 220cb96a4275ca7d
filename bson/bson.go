// Package bson provides a BSON codec implementation.
package bson

import (
	"github.com/zoobzio/weave"
	"go.mongodb.org/mongo-driver/bson"
)

// bsonCodec implements weave.Codec for BSON.
type bsonCodec struct{}

// New returns a BSON codec.
func New() weave.Codec {
	return &bsonCodec{}
}

// Contract returns an opaque codec embedding T as BSON, with fields
// named by their bson tags.
func Contract[T any]() (*weave.ContractCodec, error) {
	table, err := weave.ContractFor[T]("bson")
	if err != nil {
		return nil, err
	}
	return weave.NewContractCodec[T](New(), table)
}

// ContentType returns the MIME type for BSON.
func (c *bsonCodec) ContentType() string {
	return "application/bson"
}

// Marshal encodes v as BSON.
func (c *bsonCodec) Marshal(v any) ([]byte, error) {
	return bson.Marshal(v)
}

// Unmarshal decodes BSON data into v.
func (c *bsonCodec) Unmarshal(data []byte, v any) error {
	return bson.Unmarshal(data, v)
}
