// Package cryptobox implements the transport's symmetric encryption
// primitive: AES in CFB mode with a fresh random IV prepended to each
// ciphertext, under a single pre-shared key.
package cryptobox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// KeySize is the AES key length this package requires (AES-128).
const KeySize = 16

// ErrShortCiphertext is returned by Open when the input is too short to
// contain even an IV.
var ErrShortCiphertext = errors.New("cryptobox: ciphertext shorter than one IV")

// Box encrypts and decrypts messages under one fixed key.
type Box struct {
	block cipher.Block
}

// New builds a Box from a pre-shared key. The key must be exactly
// KeySize bytes.
func New(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("cryptobox: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptobox: %w", err)
	}
	return &Box{block: block}, nil
}

// Seal encrypts plaintext with a freshly generated random IV and
// returns IV || ciphertext.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("cryptobox: generating IV: %w", err)
	}

	out := make([]byte, aes.BlockSize+len(plaintext))
	copy(out, iv)

	stream := cipher.NewCFBEncrypter(b.block, iv)
	stream.XORKeyStream(out[aes.BlockSize:], plaintext)
	return out, nil
}

// Open splits the leading IV off data and decrypts the remainder.
func (b *Box) Open(data []byte) ([]byte, error) {
	if len(data) < aes.BlockSize {
		return nil, ErrShortCiphertext
	}
	iv := data[:aes.BlockSize]
	ciphertext := data[aes.BlockSize:]

	plaintext := make([]byte, len(ciphertext))
	stream := cipher.NewCFBDecrypter(b.block, iv)
	stream.XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}
