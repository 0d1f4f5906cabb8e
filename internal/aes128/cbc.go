// SPDX-License-Identifier: MIT

package aes128

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

// ErrDecrypt classifies structurally invalid ciphertext: input that is not a
// whole number of blocks, or padding whose trailing bytes are inconsistent.
var ErrDecrypt = errors.New("decrypt failed")

// Decrypt applies AES-128-CBC to data and strips PKCS#7 padding. It is
// stateless and safe for concurrent use; data is not modified.
func Decrypt(data, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a multiple of the block size", ErrDecrypt, len(data))
	}
	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, data)
	return unpad(plain)
}

// unpad removes PKCS#7 padding: the pad value equals the count of pad bytes
// and occupies the final 1-16 bytes of the plaintext.
func unpad(plain []byte) ([]byte, error) {
	n := int(plain[len(plain)-1])
	if n == 0 || n > aes.BlockSize || n > len(plain) {
		return nil, fmt.Errorf("%w: invalid padding length %d", ErrDecrypt, n)
	}
	for _, b := range plain[len(plain)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: inconsistent padding bytes", ErrDecrypt)
		}
	}
	return plain[:len(plain)-n], nil
}
