package shared

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const sealerInfo = "userdesk session token v1"

// ErrSealedValueInvalid is returned when a sealed value cannot be opened.
var ErrSealedValueInvalid = errors.New("sealed value invalid")

// Sealer encrypts small secrets (API bearer tokens) before they reach Redis.
type Sealer struct {
	key [32]byte
}

// NewSealer derives the sealing key from the session secret.
func NewSealer(secret string) *Sealer {
	s := &Sealer{}
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(sealerInfo))
	if _, err := io.ReadFull(kdf, s.key[:]); err != nil {
		// hkdf only fails after 255*32 bytes of output.
		panic(err)
	}
	return s
}

// Seal encrypts plain and returns a URL-safe encoding of nonce+ciphertext.
func (s *Sealer) Seal(plain string) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	out := secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.key)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(raw) < 24+secretbox.Overhead {
		return "", ErrSealedValueInvalid
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &s.key)
	if !ok {
		return "", ErrSealedValueInvalid
	}
	return string(plain), nil
}
