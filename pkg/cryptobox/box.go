// Package cryptobox wraps the NaCl box construction and the AES-GCM body
// cipher used by the message encryption pipeline. All blobs cross the wire
// base64-encoded: sealed keys as nonce(24) || box, message bodies as
// iv(12) || tag(16) || ciphertext.
package cryptobox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"

	"cipherlink-backend/pkg/constants"
)

// ErrKeyUnseal is returned when a sealed session key fails authentication:
// wrong keys, corrupted data, or tampering. Callers must treat this as a
// hard failure, never as an empty result.
var ErrKeyUnseal = errors.New("unable to decrypt session key")

// KeyPair holds a base64-encoded curve25519 box key pair
type KeyPair struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// GenerateKeyPair produces a curve25519-xsalsa20-poly1305 box key pair
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	return &KeyPair{
		PublicKey:  base64.StdEncoding.EncodeToString(pub[:]),
		PrivateKey: base64.StdEncoding.EncodeToString(priv[:]),
	}, nil
}

// Seal encrypts plaintext for the recipient's public key under a fresh
// 24-byte nonce and returns nonce || box as a single base64 string
func Seal(plaintext []byte, recipientPublicKey, senderPrivateKey string) (string, error) {
	recipientPub, err := decodeKey(recipientPublicKey)
	if err != nil {
		return "", fmt.Errorf("invalid recipient public key: %w", err)
	}
	senderPriv, err := decodeKey(senderPrivateKey)
	if err != nil {
		return "", fmt.Errorf("invalid sender private key: %w", err)
	}

	var nonce [constants.BoxNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := box.Seal(nonce[:], plaintext, &nonce, recipientPub, senderPriv)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open authenticates and decrypts a sealed blob produced by Seal. Every
// failure mode - bad encoding, truncated blob, failed authentication -
// collapses into ErrKeyUnseal so callers cannot mistake garbage for a key.
func Open(sealedB64, senderPublicKey, recipientPrivateKey string) ([]byte, error) {
	senderPub, err := decodeKey(senderPublicKey)
	if err != nil {
		return nil, ErrKeyUnseal
	}
	recipientPriv, err := decodeKey(recipientPrivateKey)
	if err != nil {
		return nil, ErrKeyUnseal
	}

	sealed, err := base64.StdEncoding.DecodeString(sealedB64)
	if err != nil || len(sealed) < constants.BoxNonceSize {
		return nil, ErrKeyUnseal
	}

	var nonce [constants.BoxNonceSize]byte
	copy(nonce[:], sealed[:constants.BoxNonceSize])

	plaintext, ok := box.Open(nil, sealed[constants.BoxNonceSize:], &nonce, senderPub, recipientPriv)
	if !ok {
		return nil, ErrKeyUnseal
	}

	return plaintext, nil
}

func decodeKey(keyB64 string) (*[32]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(raw))
	}

	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}
