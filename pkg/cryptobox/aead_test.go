package cryptobox

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherlink-backend/pkg/constants"
)

func TestEncryptDecryptAEADRoundTrip(t *testing.T) {
	key, err := NewSessionKey()
	require.NoError(t, err)

	plaintexts := []string{
		"hello world",
		"",
		"héllo wörld ünïcödé 🙂",
		string(make([]byte, 64*1024)),
	}

	for _, plaintext := range plaintexts {
		blob, err := EncryptAEAD([]byte(plaintext), key)
		require.NoError(t, err)

		decrypted, err := DecryptAEAD(blob, key)
		require.NoError(t, err)
		assert.Equal(t, []byte(plaintext), decrypted)
	}
}

func TestEncryptAEADBlobLayout(t *testing.T) {
	key, _ := NewSessionKey()

	blob, err := EncryptAEAD([]byte("payload"), key)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)

	// iv(12) || tag(16) || ciphertext
	assert.Equal(t, constants.AEADNonceSize+constants.AEADTagSize+len("payload"), len(raw))
}

func TestDecryptAEADTamperDetection(t *testing.T) {
	key, _ := NewSessionKey()

	blob, err := EncryptAEAD([]byte("do not touch"), key)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)

	for i := range raw {
		tampered := make([]byte, len(raw))
		copy(tampered, raw)
		tampered[i] ^= 0x80

		_, err := DecryptAEAD(base64.StdEncoding.EncodeToString(tampered), key)
		assert.ErrorIs(t, err, ErrAuthenticationFailed, "bit flip at byte %d must fail authentication", i)
	}
}

func TestDecryptAEADWrongKey(t *testing.T) {
	key, _ := NewSessionKey()
	other, _ := NewSessionKey()

	blob, err := EncryptAEAD([]byte("payload"), key)
	require.NoError(t, err)

	_, err = DecryptAEAD(blob, other)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestDecryptAEADTruncatedBlob(t *testing.T) {
	key, _ := NewSessionKey()

	// Too short to contain IV + tag
	short := base64.StdEncoding.EncodeToString(make([]byte, constants.AEADNonceSize+constants.AEADTagSize-1))
	_, err := DecryptAEAD(short, key)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	_, err = DecryptAEAD("%%%", key)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestAEADRejectsBadKeySize(t *testing.T) {
	_, err := EncryptAEAD([]byte("x"), []byte("short key"))
	assert.Error(t, err)

	_, err = DecryptAEAD("", []byte("short key"))
	assert.Error(t, err)
}

func TestZero(t *testing.T) {
	key := []byte{1, 2, 3, 4}
	Zero(key)
	assert.Equal(t, []byte{0, 0, 0, 0}, key)
}
