// Package codec seals biometric templates for at-rest storage.
//
// Ciphertexts are version || nonce || XChaCha20-Poly1305(template).  The
// AEAD key is derived from the configured secret with HKDF-SHA256, so the
// secret itself never touches the cipher.
package codec

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	formatV1 byte = 1

	// MinSecretLen is the shortest secret New accepts.
	MinSecretLen = 16

	hkdfInfo = "portunus/biogate template codec v1"
)

var (
	// ErrDecryption is returned for any ciphertext that fails to open:
	// wrong key, tampered bytes, truncation, or an unknown format version.
	ErrDecryption = errors.New("template decryption failed")

	ErrWeakSecret = fmt.Errorf("encryption secret must be at least %d bytes", MinSecretLen)
)

type Codec struct {
	aead cipher.AEAD
	rand io.Reader
}

func New(secret []byte) (*Codec, error) {
	if len(secret) < MinSecretLen {
		return nil, ErrWeakSecret
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive template key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init template cipher: %w", err)
	}
	return &Codec{aead: aead, rand: rand.Reader}, nil
}

// Encrypt seals template under a fresh random nonce, so equal templates
// never produce equal ciphertexts.
func (c *Codec) Encrypt(template []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	out := make([]byte, 1+ns, 1+ns+len(template)+c.aead.Overhead())
	out[0] = formatV1
	if _, err := io.ReadFull(c.rand, out[1:1+ns]); err != nil {
		return nil, fmt.Errorf("template nonce: %w", err)
	}
	// The version byte is bound as associated data.
	return c.aead.Seal(out, out[1:1+ns], template, out[:1]), nil
}

func (c *Codec) Decrypt(ciphertext []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(ciphertext) < 1+ns+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short (%d bytes)", ErrDecryption, len(ciphertext))
	}
	if ciphertext[0] != formatV1 {
		return nil, fmt.Errorf("%w: unknown format version %d", ErrDecryption, ciphertext[0])
	}

	plain, err := c.aead.Open(nil, ciphertext[1:1+ns], ciphertext[1+ns:], ciphertext[:1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return plain, nil
}

// EncodeToString is the at-rest text encoding used by the stores.
func EncodeToString(ciphertext []byte) string {
	return base64.StdEncoding.EncodeToString(ciphertext)
}

// DecodeString reverses EncodeToString.  A structurally invalid encoding is
// reported as ErrDecryption since the record cannot be opened either way.
func DecodeString(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: bad encoding: %v", ErrDecryption, err)
	}
	return b, nil
}
