package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// ErrSealedCorrupt indicates a stored value could not be authenticated.
var ErrSealedCorrupt = errors.New("storage: sealed value failed authentication")

// Sealed encrypts values with nacl/secretbox before delegating to another Store.
type Sealed struct {
	inner Store
	key   [32]byte
}

// NewSealed wraps inner using a 32-byte key encoded as 64 hex characters.
func NewSealed(inner Store, hexKey string) (*Sealed, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot secret: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("snapshot secret must be 32 bytes, got %d", len(raw))
	}
	s := &Sealed{inner: inner}
	copy(s.key[:], raw)
	return s, nil
}

// Get reads and decrypts the value stored under key.
func (s *Sealed) Get(ctx context.Context, key string) ([]byte, error) {
	box, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(box) < nonceSize+secretbox.Overhead {
		return nil, ErrSealedCorrupt
	}

	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrSealedCorrupt
	}
	return plain, nil
}

// Put encrypts value under a fresh nonce and stores nonce||box.
func (s *Sealed) Put(ctx context.Context, key string, value []byte) error {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], value, &nonce, &s.key)
	return s.inner.Put(ctx, key, box)
}

// Delete removes key from the wrapped store.
func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

// Close closes the wrapped store.
func (s *Sealed) Close() error {
	return s.inner.Close()
}
