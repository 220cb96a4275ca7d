package weave

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/blake2b"
)

// Digester derives a deterministic content key.
type Digester interface {
	// Digest returns the hex-encoded digest of data.
	Digest(data []byte) (string, error)
}

// sha256Digester implements SHA-256 digests.
type sha256Digester struct{}

// SHA256Digester returns a SHA-256 digester.
// The result is a hex-encoded 64-character string.
func SHA256Digester() Digester {
	return &sha256Digester{}
}

func (d *sha256Digester) Digest(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// sha512Digester implements SHA-512 digests.
type sha512Digester struct{}

// SHA512Digester returns a SHA-512 digester.
// The result is a hex-encoded 128-character string.
func SHA512Digester() Digester {
	return &sha512Digester{}
}

func (d *sha512Digester) Digest(data []byte) (string, error) {
	sum := sha512.Sum512(data)
	return hex.EncodeToString(sum[:]), nil
}

// blake2bDigester implements BLAKE2b-256 digests.
type blake2bDigester struct{}

// BLAKE2bDigester returns a BLAKE2b-256 digester.
// The result is a hex-encoded 64-character string.
func BLAKE2bDigester() Digester {
	return &blake2bDigester{}
}

func (d *blake2bDigester) Digest(data []byte) (string, error) {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// DigestValue digests the MessagePack encoding of v. Map keys are sorted so
// equal values digest equally.
func DigestValue(d Digester, v any) (string, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("digest encoding failed: %w", err)
	}
	return d.Digest(buf.Bytes())
}
