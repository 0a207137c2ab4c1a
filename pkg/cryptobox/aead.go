package cryptobox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"cipherlink-backend/pkg/constants"
)

// ErrAuthenticationFailed is returned when an AEAD blob fails tag
// verification or is too short to contain IV and tag.
var ErrAuthenticationFailed = errors.New("message authentication failed")

// EncryptAEAD encrypts plaintext with AES-256-GCM under the caller-supplied
// session key. The key is owned by the caller so it can be sealed for each
// recipient after the single body encryption. Output layout is
// iv(12) || tag(16) || ciphertext, base64-encoded.
func EncryptAEAD(plaintext, sessionKey []byte) (string, error) {
	if len(sessionKey) != constants.SessionKeySize {
		return "", fmt.Errorf("session key must be %d bytes, got %d", constants.SessionKeySize, len(sessionKey))
	}

	block, err := aes.NewCipher(sessionKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	iv := make([]byte, constants.AEADNonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	// gcm.Seal appends the tag after the ciphertext; the wire format wants
	// iv || tag || ciphertext, so split and reorder
	sealed := gcm.Seal(nil, iv, plaintext, nil)
	tagStart := len(sealed) - constants.AEADTagSize

	blob := make([]byte, 0, constants.AEADNonceSize+len(sealed))
	blob = append(blob, iv...)
	blob = append(blob, sealed[tagStart:]...)
	blob = append(blob, sealed[:tagStart]...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// DecryptAEAD is the structural inverse of EncryptAEAD. It returns
// ErrAuthenticationFailed when the tag does not verify or the blob is
// malformed; corrupted plaintext is never returned.
func DecryptAEAD(blobB64 string, sessionKey []byte) ([]byte, error) {
	if len(sessionKey) != constants.SessionKeySize {
		return nil, fmt.Errorf("session key must be %d bytes, got %d", constants.SessionKeySize, len(sessionKey))
	}

	blob, err := base64.StdEncoding.DecodeString(blobB64)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	if len(blob) < constants.AEADNonceSize+constants.AEADTagSize {
		return nil, ErrAuthenticationFailed
	}

	iv := blob[:constants.AEADNonceSize]
	tag := blob[constants.AEADNonceSize : constants.AEADNonceSize+constants.AEADTagSize]
	ciphertext := blob[constants.AEADNonceSize+constants.AEADTagSize:]

	block, err := aes.NewCipher(sessionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	// Reassemble ciphertext || tag for gcm.Open
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}

	return plaintext, nil
}

// NewSessionKey generates a fresh 256-bit symmetric key
func NewSessionKey() ([]byte, error) {
	key := make([]byte, constants.SessionKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate session key: %w", err)
	}
	return key, nil
}

// Zero scrubs key material in place
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
