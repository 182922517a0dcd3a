package dsa

import (
	"crypto/dsa"
	"crypto/rand"
	"crypto/sha1"
	"math/big"
)

// SignatureSize is the length of an I2P DSA-SHA1 signature (r ‖ s).
const SignatureSize = 40

type DSASigner struct {
	k *dsa.PrivateKey
}

func (ds *DSASigner) Sign(data []byte) (sig []byte, err error) {
	h := sha1.Sum(data)
	sig, err = ds.SignHash(h[:])
	return
}

func (ds *DSASigner) SignHash(h []byte) (sig []byte, err error) {
	var r, s *big.Int
	r, s, err = dsa.Sign(rand.Reader, ds.k, h)
	if err == nil {
		sig = make([]byte, SignatureSize)
		r.FillBytes(sig[:20])
		s.FillBytes(sig[20:])
	} else {
		log.WithError(err).Error("Failed to create DSA signature")
	}
	return
}

func (ds *DSASigner) SignatureSize() int {
	return SignatureSize
}
