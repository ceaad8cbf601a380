package secure

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// ErrKeyringClosed is returned by a closed keyring.
var ErrKeyringClosed = errors.New("secure: keyring closed")

// MinSecretSize is the shortest secret a keyring accepts.
const MinSecretSize = 16

// Keyring derives and caches transforms from one pre-shared secret. Each
// label yields an independent key. A keyring belongs to one endpoint and
// is wiped when the endpoint closes.
type Keyring struct {
	mu     sync.Mutex
	secret []byte
	salt   []byte
	keys   map[string][]byte
	cache  map[string]*AEAD
	closed bool
}

// NewKeyring copies secret into a new keyring. salt may be nil.
func NewKeyring(secret, salt []byte) (*Keyring, error) {
	if len(secret) < MinSecretSize {
		return nil, fmt.Errorf("secure: secret must be at least %d bytes", MinSecretSize)
	}
	return &Keyring{
		secret: append([]byte(nil), secret...),
		salt:   append([]byte(nil), salt...),
		keys:   make(map[string][]byte),
		cache:  make(map[string]*AEAD),
	}, nil
}

// Transform returns the AEAD transform for label, deriving it on first use.
func (k *Keyring) Transform(label string) (*AEAD, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil, ErrKeyringClosed
	}
	if t, ok := k.cache[label]; ok {
		return t, nil
	}
	key, err := DeriveKey(k.secret, k.salt, label)
	if err != nil {
		return nil, err
	}
	t, err := NewAEAD(key)
	if err != nil {
		return nil, err
	}
	k.keys[label] = key
	k.cache[label] = t
	return t, nil
}

// Len returns the number of derived keys held.
func (k *Keyring) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.cache)
}

// Close wipes the secret and every derived key. Transforms already handed
// out keep working with their own cipher state.
func (k *Keyring) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	clear(k.secret)
	for label, key := range k.keys {
		clear(key)
		delete(k.keys, label)
	}
	clear(k.cache)
	return nil
}

// DeriveKey expands secret into a KeySize key bound to label using
// HKDF-SHA256.
func DeriveKey(secret, salt []byte, label string) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, salt, []byte("pnet "+label))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("secure: derive key: %w", err)
	}
	return key, nil
}
