package aes

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// BlockSize is the AES block size in bytes.
const BlockSize = aes.BlockSize

var (
	ErrInvalidKeySize   = errors.New("aes key must be 16, 24 or 32 bytes")
	ErrInvalidIVSize    = errors.New("aes iv must be 16 bytes")
	ErrNotBlockMultiple = errors.New("data length must be a multiple of block size")
)

// AESSymmetricDecrypter decrypts AES-CBC data that has no padding scheme of
// its own. SSU pads every packet to the block size with random bytes and
// records the real lengths inside the payload.
type AESSymmetricDecrypter struct {
	Key []byte
	IV  []byte
}

// DecryptNoPadding decrypts data using AES-CBC without padding
func (d *AESSymmetricDecrypter) DecryptNoPadding(data []byte) ([]byte, error) {
	plaintext := make([]byte, len(data))
	if err := d.DecryptInto(plaintext, data); err != nil {
		return nil, err
	}
	return plaintext, nil
}

// DecryptInto decrypts src into dst; dst and src may overlap exactly.
func (d *AESSymmetricDecrypter) DecryptInto(dst, src []byte) error {
	block, err := newBlock(d.Key, d.IV)
	if err != nil {
		return err
	}
	if len(src)%aes.BlockSize != 0 || len(dst) < len(src) {
		log.WithField("data_length", len(src)).Debug("ciphertext is not a multiple of the block size")
		return ErrNotBlockMultiple
	}
	cipher.NewCBCDecrypter(block, d.IV).CryptBlocks(dst[:len(src)], src)
	return nil
}

func newBlock(key, iv []byte) (cipher.Block, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, ErrInvalidKeySize
	}
	if len(iv) != aes.BlockSize {
		return nil, ErrInvalidIVSize
	}
	return aes.NewCipher(key)
}
