package weave

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// Encryption errors.
var (
	ErrInvalidKeySize   = errors.New("invalid key size")
	ErrCiphertextShort  = errors.New("ciphertext too short")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Encryptor handles encryption/decryption operations.
type Encryptor interface {
	// Encrypt encrypts plaintext and returns ciphertext.
	Encrypt(plaintext []byte) ([]byte, error)

	// Decrypt decrypts ciphertext and returns plaintext.
	Decrypt(ciphertext []byte) ([]byte, error)
}

// aeadEncryptor seals with a random nonce prepended to the ciphertext.
type aeadEncryptor struct {
	aead cipher.AEAD
}

// AES returns an AES-GCM encryptor.
// Key must be 16, 24, or 32 bytes for AES-128, AES-192, or AES-256.
func AES(key []byte) (Encryptor, error) {
	if len(key) != 16 && len(key) != 24 && len(key) != 32 {
		return nil, fmt.Errorf("%w: must be 16, 24, or 32 bytes, got %d", ErrInvalidKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &aeadEncryptor{aead: gcm}, nil
}

// XChaCha20 returns an XChaCha20-Poly1305 encryptor. Key must be 32 bytes.
func XChaCha20(key []byte) (Encryptor, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidKeySize, chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &aeadEncryptor{aead: aead}, nil
}

func (e *aeadEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plaintext)+e.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (e *aeadEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	n := e.aead.NonceSize()
	if len(ciphertext) < n {
		return nil, ErrCiphertextShort
	}
	plaintext, err := e.aead.Open(nil, ciphertext[:n], ciphertext[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// SealedCodec is an opaque codec that writes values of T encoded by an
// external Codec and encrypted. The element text is the base64 ciphertext.
type SealedCodec struct {
	codec Codec
	enc   Encryptor
	typ   reflect.Type
}

// NewSealedCodec builds a sealed codec for T.
func NewSealedCodec[T any](codec Codec, enc Encryptor) (*SealedCodec, error) {
	t := reflect.TypeFor[T]()
	if codec == nil || enc == nil {
		return nil, newSerializationError(ErrUnsupportedType, t.String(), "sealed codec needs a codec and an encryptor")
	}
	RegisterType[T]()
	return &SealedCodec{codec: codec, enc: enc, typ: t}, nil
}

// Accepts implements Opaque.
func (c *SealedCodec) Accepts(t reflect.Type) bool {
	return t == c.typ
}

// Encode implements Opaque.
func (c *SealedCodec) Encode(_ Writer, n *Node, v reflect.Value) error {
	p := reflect.New(c.typ)
	p.Elem().Set(v)
	data, err := c.codec.Marshal(p.Interface())
	if err != nil {
		return wrapSerializationError(ErrUnsupportedType, "", err)
	}
	sealed, err := c.enc.Encrypt(data)
	if err != nil {
		return wrapSerializationError(ErrUnsupportedType, "", err)
	}
	n.Text = base64.StdEncoding.EncodeToString(sealed)
	return nil
}

// Decode implements Opaque.
func (c *SealedCodec) Decode(_ Reader, n *Node, t reflect.Type) (reflect.Value, error) {
	sealed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(n.Text))
	if err != nil {
		return reflect.Value{}, wrapSerializationError(ErrMalformed, "", err)
	}
	data, err := c.enc.Decrypt(sealed)
	if err != nil {
		return reflect.Value{}, wrapSerializationError(ErrMalformed, "", err)
	}
	p := reflect.New(t)
	if err := c.codec.Unmarshal(data, p.Interface()); err != nil {
		return reflect.Value{}, wrapSerializationError(ErrMalformed, "", err)
	}
	return p.Elem(), nil
}
