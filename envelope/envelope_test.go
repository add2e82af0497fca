package envelope_test

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arn-sess/sessguard/envelope"
	"github.com/arn-sess/sessguard/internal/testutil"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestNewRejectsShortKeys(t *testing.T) {
	_, err := envelope.New(make([]byte, 31))
	assert.ErrorIs(t, err, envelope.ErrConfig)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	env, err := envelope.New(testKey())
	require.NoError(t, err)

	plaintext := []byte(`{"user_id":"abc123"}`)
	blob, err := env.Encrypt(plaintext)
	require.NoError(t, err)

	got, err := env.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncryptEmptyPlaintextRoundTrips(t *testing.T) {
	env, err := envelope.New(testKey())
	require.NoError(t, err)

	blob, err := env.Encrypt(nil)
	require.NoError(t, err)

	got, err := env.Decrypt(blob)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEncryptIsNotDeterministic(t *testing.T) {
	env, err := envelope.New(testKey())
	require.NoError(t, err)

	plaintext := []byte("same plaintext every time")
	a, err := env.Encrypt(plaintext)
	require.NoError(t, err)
	b, err := env.Encrypt(plaintext)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "distinct IVs must yield distinct ciphertexts")
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	env, err := envelope.New(testKey())
	require.NoError(t, err)

	blob, err := env.Encrypt([]byte("don't trust me"))
	require.NoError(t, err)

	raw := testutil.MustDecodeBase64(t, string(blob))
	raw[len(raw)-1] ^= 0xff // flip every bit of the last ciphertext byte
	tampered := []byte(base64.StdEncoding.EncodeToString(raw))

	_, err = env.Decrypt(tampered)
	assert.ErrorIs(t, err, envelope.ErrDecrypt)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	envA, err := envelope.New(testKey())
	require.NoError(t, err)
	envB, err := envelope.New(bytes.Repeat([]byte{0x99}, 32))
	require.NoError(t, err)

	blob, err := envA.Encrypt([]byte("payload"))
	require.NoError(t, err)

	_, err = envB.Decrypt(blob)
	assert.ErrorIs(t, err, envelope.ErrDecrypt)
}

func TestDecryptRejectsTruncatedInput(t *testing.T) {
	env, err := envelope.New(testKey())
	require.NoError(t, err)

	_, err = env.Decrypt([]byte(base64.StdEncoding.EncodeToString([]byte("short"))))
	assert.ErrorIs(t, err, envelope.ErrDecrypt)
}

func TestDecryptRejectsMalformedBase64(t *testing.T) {
	env, err := envelope.New(testKey())
	require.NoError(t, err)

	_, err = env.Decrypt([]byte("not valid base64!!"))
	assert.ErrorIs(t, err, envelope.ErrDecrypt)
}
