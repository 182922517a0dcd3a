package dsa

import (
	"crypto/dsa"
	"crypto/rand"
	"math/big"

	"github.com/go-i2p/go-ssu/lib/crypto/types"
)

type DSAPrivateKey [20]byte

// create a new dsa signer
func (k DSAPrivateKey) NewSigner() (s types.Signer, err error) {
	p := createDSAPrivkey(new(big.Int).SetBytes(k[:]))
	if p == nil {
		return nil, types.ErrInvalidKeyFormat
	}
	return &DSASigner{k: p}, nil
}

func (k DSAPrivateKey) Public() (types.SigningPublicKey, error) {
	var pk DSAPublicKey
	p := createDSAPrivkey(new(big.Int).SetBytes(k[:]))
	if p == nil {
		log.Error("Invalid DSA private key format")
		return nil, types.ErrInvalidKeyFormat
	}
	p.Y.FillBytes(pk[:])
	return pk, nil
}

func (k DSAPrivateKey) Len() int {
	return len(k)
}

// GenerateDSAPrivateKey creates a fresh key in the I2P DSA group.
func GenerateDSAPrivateKey() (k DSAPrivateKey, err error) {
	dk := new(dsa.PrivateKey)
	if err = generateDSA(dk, rand.Reader); err != nil {
		return
	}
	dk.X.FillBytes(k[:])
	return
}
