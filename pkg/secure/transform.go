package secure

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Errors returned by transforms.
var (
	// ErrDecrypt is returned when a sealed message fails authentication.
	ErrDecrypt = errors.New("secure: message authentication failed")

	// ErrShortMessage is returned for input shorter than a nonce.
	ErrShortMessage = errors.New("secure: message too short")
)

// Transform is an opaque byte transform pair. Open must invert Seal.
type Transform interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// KeySize is the key length NewAEAD expects.
const KeySize = chacha20poly1305.KeySize

// AEAD seals messages with XChaCha20-Poly1305. Each message carries its
// random 24-byte nonce as a prefix.
type AEAD struct {
	aead cipher.AEAD
}

// NewAEAD creates a transform from a 32-byte key.
func NewAEAD(key []byte) (*AEAD, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("secure: %w", err)
	}
	return &AEAD{aead: aead}, nil
}

// Overhead returns the bytes Seal adds to each message.
func (a *AEAD) Overhead() int {
	return a.aead.NonceSize() + a.aead.Overhead()
}

// Seal encrypts plaintext.
func (a *AEAD) Seal(plaintext []byte) ([]byte, error) {
	ns := a.aead.NonceSize()
	out := make([]byte, ns, ns+len(plaintext)+a.aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("secure: nonce: %w", err)
	}
	return a.aead.Seal(out, out[:ns], plaintext, nil), nil
}

// Open decrypts a message produced by Seal.
func (a *AEAD) Open(sealed []byte) ([]byte, error) {
	ns := a.aead.NonceSize()
	if len(sealed) < ns+a.aead.Overhead() {
		return nil, ErrShortMessage
	}
	plain, err := a.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}

var _ Transform = (*AEAD)(nil)
