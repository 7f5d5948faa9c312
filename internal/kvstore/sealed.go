package kvstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Seal parameters.
const (
	SealKeyLen  = 32
	SealSaltLen = 16

	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 1
)

// Rand returns n cryptographically random bytes.
func Rand(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// DeriveSealKey derives the master seal key from a passphrase and salt using Argon2id.
func DeriveSealKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, SealKeyLen)
}

// Sealed wraps a Store and encrypts values at rest. A per-key AEAD key is
// derived from the master key via HKDF-SHA256 with the kv key as info, and the
// kv key doubles as AAD so a ciphertext moved between keys fails to open.
// Blobs are nonce-prefixed XChaCha20-Poly1305.
type Sealed struct {
	base Store
	key  []byte
}

var _ Store = (*Sealed)(nil)

// NewSealed wraps base with at-rest encryption under the given master key.
func NewSealed(base Store, key []byte) (*Sealed, error) {
	if len(key) != SealKeyLen {
		return nil, errors.New("kvstore: seal key must be 32 bytes")
	}
	return &Sealed{base: base, key: append([]byte(nil), key...)}, nil
}

func (s *Sealed) keyFor(kvKey string) ([]byte, error) {
	r := hkdf.New(sha256.New, s.key, nil, []byte(kvKey))
	k := make([]byte, SealKeyLen)
	_, err := r.Read(k)
	return k, err
}

// Get reads and opens the sealed value; tampered blobs surface as errors.
func (s *Sealed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	blob, ok, err := s.base.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	if len(blob) < chacha20poly1305.NonceSizeX {
		return nil, false, errors.New("kvstore: sealed blob too short")
	}
	k, err := s.keyFor(key)
	if err != nil {
		return nil, false, err
	}
	aead, err := chacha20poly1305.NewX(k)
	if err != nil {
		return nil, false, err
	}
	nonce := blob[:chacha20poly1305.NonceSizeX]
	ct := blob[chacha20poly1305.NonceSizeX:]
	pt, err := aead.Open(nil, nonce, ct, []byte(key))
	if err != nil {
		return nil, false, err
	}
	return pt, true, nil
}

// Set seals value and stores the blob in the underlying store.
func (s *Sealed) Set(ctx context.Context, key string, value []byte) error {
	k, err := s.keyFor(key)
	if err != nil {
		return err
	}
	aead, err := chacha20poly1305.NewX(k)
	if err != nil {
		return err
	}
	nonce, err := Rand(chacha20poly1305.NonceSizeX)
	if err != nil {
		return err
	}
	out := make([]byte, 0, len(nonce)+len(value)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, value, []byte(key))...)
	return s.base.Set(ctx, key, out)
}

// Delete removes the key from the underlying store.
func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.base.Delete(ctx, key)
}
