package cryptobox

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPair(t *testing.T) {
	pair, err := GenerateKeyPair()
	require.NoError(t, err)

	pub, err := base64.StdEncoding.DecodeString(pair.PublicKey)
	require.NoError(t, err)
	priv, err := base64.StdEncoding.DecodeString(pair.PrivateKey)
	require.NoError(t, err)

	assert.Len(t, pub, 32)
	assert.Len(t, priv, 32)
	assert.NotEqual(t, pair.PublicKey, pair.PrivateKey)
}

func TestSealOpenRoundTrip(t *testing.T) {
	sender, err := GenerateKeyPair()
	require.NoError(t, err)
	recipient, err := GenerateKeyPair()
	require.NoError(t, err)

	sessionKey := []byte("0123456789abcdef0123456789abcdef")

	sealed, err := Seal(sessionKey, recipient.PublicKey, sender.PrivateKey)
	require.NoError(t, err)

	opened, err := Open(sealed, sender.PublicKey, recipient.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, sessionKey, opened)
}

func TestSealProducesFreshNonces(t *testing.T) {
	sender, _ := GenerateKeyPair()
	recipient, _ := GenerateKeyPair()

	first, err := Seal([]byte("key material"), recipient.PublicKey, sender.PrivateKey)
	require.NoError(t, err)
	second, err := Seal([]byte("key material"), recipient.PublicKey, sender.PrivateKey)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestOpenWrongRecipientKey(t *testing.T) {
	sender, _ := GenerateKeyPair()
	recipient, _ := GenerateKeyPair()
	eavesdropper, _ := GenerateKeyPair()

	sealed, err := Seal([]byte("secret"), recipient.PublicKey, sender.PrivateKey)
	require.NoError(t, err)

	_, err = Open(sealed, sender.PublicKey, eavesdropper.PrivateKey)
	assert.ErrorIs(t, err, ErrKeyUnseal)
}

func TestOpenTamperedBlob(t *testing.T) {
	sender, _ := GenerateKeyPair()
	recipient, _ := GenerateKeyPair()

	sealed, err := Seal([]byte("secret"), recipient.PublicKey, sender.PrivateKey)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)

	// Flip one bit at every position; none may open
	for i := range raw {
		tampered := make([]byte, len(raw))
		copy(tampered, raw)
		tampered[i] ^= 0x01

		_, err := Open(base64.StdEncoding.EncodeToString(tampered), sender.PublicKey, recipient.PrivateKey)
		assert.ErrorIs(t, err, ErrKeyUnseal, "bit flip at byte %d must not open", i)
	}
}

func TestOpenMalformedInput(t *testing.T) {
	sender, _ := GenerateKeyPair()
	recipient, _ := GenerateKeyPair()

	cases := []struct {
		name   string
		sealed string
	}{
		{"not base64", "!!!not-base64!!!"},
		{"empty", ""},
		{"shorter than nonce", base64.StdEncoding.EncodeToString(make([]byte, 10))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Open(tc.sealed, sender.PublicKey, recipient.PrivateKey)
			assert.ErrorIs(t, err, ErrKeyUnseal)
		})
	}
}

func TestSealInvalidKeys(t *testing.T) {
	sender, _ := GenerateKeyPair()

	_, err := Seal([]byte("x"), "not-a-key", sender.PrivateKey)
	assert.Error(t, err)

	_, err = Seal([]byte("x"), sender.PublicKey, base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}
