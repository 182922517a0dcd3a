package aes

import (
	"crypto/aes"
	"crypto/cipher"
)

// AESSymmetricEncrypter encrypts with AES-CBC, leaving padding to the caller.
type AESSymmetricEncrypter struct {
	Key []byte
	IV  []byte
}

// EncryptNoPadding encrypts data using AES-CBC without padding
func (e *AESSymmetricEncrypter) EncryptNoPadding(data []byte) ([]byte, error) {
	ciphertext := make([]byte, len(data))
	if err := e.EncryptInto(ciphertext, data); err != nil {
		return nil, err
	}
	return ciphertext, nil
}

// EncryptInto encrypts src into dst; dst and src may overlap exactly.
func (e *AESSymmetricEncrypter) EncryptInto(dst, src []byte) error {
	block, err := newBlock(e.Key, e.IV)
	if err != nil {
		return err
	}
	if len(src)%aes.BlockSize != 0 || len(dst) < len(src) {
		return ErrNotBlockMultiple
	}
	cipher.NewCBCEncrypter(block, e.IV).CryptBlocks(dst[:len(src)], src)
	return nil
}
