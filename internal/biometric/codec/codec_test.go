package codec_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/biometric/codec"
)

func newCodec(t *testing.T, secret string) *codec.Codec {
	t.Helper()
	c, err := codec.New([]byte(secret))
	require.NoError(t, err)
	return c
}

func TestNew_RejectsShortSecret(t *testing.T) {
	_, err := codec.New([]byte("short"))
	require.ErrorIs(t, err, codec.ErrWeakSecret)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	c := newCodec(t, "0123456789abcdef-test-secret")

	for _, tmpl := range [][]byte{
		[]byte("abc123=="),
		[]byte(""),
		bytes.Repeat([]byte{0xff}, 4096),
	} {
		ct, err := c.Encrypt(tmpl)
		require.NoError(t, err)

		got, err := c.Decrypt(ct)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(tmpl, got), "round trip mismatch for %d-byte template", len(tmpl))
	}
}

func TestEncrypt_NonDeterministic(t *testing.T) {
	c := newCodec(t, "0123456789abcdef-test-secret")

	a, err := c.Encrypt([]byte("abc123=="))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("abc123=="))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDecrypt_DetectsEveryFlippedByte(t *testing.T) {
	c := newCodec(t, "0123456789abcdef-test-secret")

	ct, err := c.Encrypt([]byte("abc123=="))
	require.NoError(t, err)

	for i := range ct {
		tampered := append([]byte(nil), ct...)
		tampered[i] ^= 0x01

		_, err := c.Decrypt(tampered)
		require.ErrorIs(t, err, codec.ErrDecryption, "byte %d flip not detected", i)
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	a := newCodec(t, "0123456789abcdef-key-one")
	b := newCodec(t, "0123456789abcdef-key-two")

	ct, err := a.Encrypt([]byte("abc123=="))
	require.NoError(t, err)

	_, err = b.Decrypt(ct)
	require.ErrorIs(t, err, codec.ErrDecryption)
}

func TestDecrypt_Truncated(t *testing.T) {
	c := newCodec(t, "0123456789abcdef-test-secret")

	_, err := c.Decrypt([]byte{1, 2, 3})
	require.ErrorIs(t, err, codec.ErrDecryption)

	_, err = c.Decrypt(nil)
	require.ErrorIs(t, err, codec.ErrDecryption)
}

func TestEncodeDecodeString(t *testing.T) {
	c := newCodec(t, "0123456789abcdef-test-secret")

	ct, err := c.Encrypt([]byte("abc123=="))
	require.NoError(t, err)

	back, err := codec.DecodeString(codec.EncodeToString(ct))
	require.NoError(t, err)
	assert.Equal(t, ct, back)

	_, err = codec.DecodeString("not-base64!")
	require.ErrorIs(t, err, codec.ErrDecryption)
}
