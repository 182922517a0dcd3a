package dsa

import (
	"math/big"

	"github.com/go-i2p/go-ssu/lib/crypto/types"
)

type DSAPublicKey [128]byte

func (k DSAPublicKey) Bytes() []byte {
	return k[:]
}

// create a new dsa verifier
func (k DSAPublicKey) NewVerifier() (v types.Verifier, err error) {
	y := new(big.Int).SetBytes(k[:])
	if y.Sign() <= 0 || y.Cmp(dsap) >= 0 {
		return nil, types.ErrInvalidKeyFormat
	}
	return &DSAVerifier{k: createDSAPublicKey(y)}, nil
}

func (k DSAPublicKey) Len() int {
	return len(k)
}
