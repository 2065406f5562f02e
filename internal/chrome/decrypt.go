package chrome

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

var (
	prefixV10 = []byte("v10")

	// Chrome's fixed CBC IV: sixteen spaces.
	cbcIV = bytes.Repeat([]byte{' '}, aes.BlockSize)
)

// IsV10 reports whether blob carries the v10 marker.
func IsV10(blob []byte) bool {
	return bytes.HasPrefix(blob, prefixV10)
}

// DecryptPassword decrypts a password_value blob with key.
//
// v10 blobs are AES-128-CBC with the space IV. Any other blob is treated as
// legacy plaintext and returned as it is.
func DecryptPassword(blob, key []byte) (string, error) {
	if !IsV10(blob) {
		return string(blob), nil
	}
	plain, err := decryptCBC(blob[len(prefixV10):], key)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func decryptCBC(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(ciphertext))
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, cbcIV).CryptBlocks(plain, ciphertext)
	return unpad(plain), nil
}

// unpad strips PKCS#7 padding. A pad byte outside [1,16] means the padding is
// not ours to trust, and the buffer is returned untouched.
func unpad(b []byte) []byte {
	if len(b) == 0 {
		return b
	}
	pad := int(b[len(b)-1])
	if pad < 1 || pad > aes.BlockSize || pad > len(b) {
		return b
	}
	return b[:len(b)-pad]
}
