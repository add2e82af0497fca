// Package envelope provides authenticated encryption for session payloads
// at rest, using AES-256-GCM.
//
// The wire format is base64(IV(12) || TAG(16) || CIPHERTEXT), with no
// associated data. A fresh IV is sampled per call to Encrypt; reuse under the
// same key never happens because IV derivation is always from crypto/rand.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrDecrypt indicates that a blob could not be decrypted: malformed
// base64, too short to contain an IV and tag, or AEAD authentication
// failure. These cases are deliberately not distinguished in the returned
// error so that callers cannot build an oracle from the failure mode.
var ErrDecrypt = errors.New("envelope: decryption failed")

// ErrConfig indicates that the Envelope could not be constructed, e.g.
// because the key is too short.
var ErrConfig = errors.New("envelope: invalid config")

const (
	ivLen  = 12
	keyLen = 32
)

// Envelope encrypts and decrypts opaque byte payloads with a single
// AES-256-GCM key.
type Envelope struct {
	aead cipher.AEAD
}

// New returns an Envelope keyed by the provided secret, which must be at
// least 32 bytes. Only the first 32 bytes are used as the AES-256 key; keys
// longer than 32 bytes (e.g., HKDF output sized to the application's liking)
// are accepted to simplify key derivation at call sites.
func New(key []byte) (*Envelope, error) {
	if len(key) < keyLen {
		return nil, fmt.Errorf("key too short (want >= %d bytes): %w", keyLen, ErrConfig)
	}
	block, err := aes.NewCipher(key[:keyLen])
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrConfig)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrConfig)
	}
	return &Envelope{aead: aead}, nil
}

// Encrypt returns base64(IV || TAG || CIPHERTEXT) for the provided
// plaintext, including the empty plaintext.
func (e *Envelope) Encrypt(plaintext []byte) ([]byte, error) {
	iv := make([]byte, ivLen)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, err
	}
	// Seal appends ciphertext || tag after the destination; split the two
	// back out so the wire format can put the tag before the ciphertext.
	sealed := e.aead.Seal(nil, iv, plaintext, nil)
	tagLen := e.aead.Overhead()
	ciphertext, tag := sealed[:len(sealed)-tagLen], sealed[len(sealed)-tagLen:]

	raw := make([]byte, 0, ivLen+tagLen+len(ciphertext))
	raw = append(raw, iv...)
	raw = append(raw, tag...)
	raw = append(raw, ciphertext...)

	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

// Decrypt reverses Encrypt. Any malformed input (bad base64, too short to
// contain an IV and tag, or failed authentication) returns ErrDecrypt and
// nothing else, by design: the caller must not be able to distinguish why
// decryption failed.
func (e *Envelope) Decrypt(blob []byte) ([]byte, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(blob)))
	n, err := base64.StdEncoding.Decode(raw, blob)
	if err != nil {
		return nil, ErrDecrypt
	}
	raw = raw[:n]
	tagLen := e.aead.Overhead()
	if len(raw) < ivLen+tagLen {
		return nil, ErrDecrypt
	}
	iv := raw[:ivLen]
	tag := raw[ivLen : ivLen+tagLen]
	ciphertext := raw[ivLen+tagLen:]

	// Open expects ciphertext || tag; reassemble in that order.
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := e.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
