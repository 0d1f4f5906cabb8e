// SPDX-License-Identifier: MIT

package aes128

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encryptCBC(t *testing.T, plain, key, iv []byte) []byte {
	t.Helper()
	pad := aes.BlockSize - len(plain)%aes.BlockSize
	padded := append(append([]byte{}, plain...), bytes.Repeat([]byte{byte(pad)}, pad)...)

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out
}

func TestDecryptRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := []byte("fedcba9876543210")

	for _, plain := range [][]byte{
		[]byte("hello segment payload"),
		bytes.Repeat([]byte{0xAB}, aes.BlockSize), // whole blocks force a full padding block
		{0x01},
	} {
		got, err := Decrypt(encryptCBC(t, plain, key, iv), key, iv)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestDecryptRejectsPartialBlock(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := []byte("fedcba9876543210")

	_, err := Decrypt(bytes.Repeat([]byte{0x01}, aes.BlockSize+3), key, iv)
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = Decrypt(nil, key, iv)
	assert.ErrorIs(t, err, ErrDecrypt)
}

// encryptRaw encrypts already-padded blocks verbatim, so tests can construct
// ciphertext whose padding bytes are deliberately wrong.
func encryptRaw(t *testing.T, padded, key, iv []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out
}

func TestDecryptRejectsBadPadding(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := []byte("fedcba9876543210")

	for name, lastBlock := range map[string][]byte{
		"zero pad length":       {1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 0x00},
		"pad length over block": append(bytes.Repeat([]byte{0x11}, 15), 0x11),
		"inconsistent bytes":    {1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 0x02, 0x03, 0x03},
	} {
		_, err := Decrypt(encryptRaw(t, lastBlock, key, iv), key, iv)
		assert.ErrorIs(t, err, ErrDecrypt, name)
	}
}
