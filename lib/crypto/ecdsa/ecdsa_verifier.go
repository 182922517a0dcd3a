package ecdsa

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/go-i2p/go-ssu/lib/crypto/types"
	"github.com/go-i2p/logger"
)

type ECDSAVerifier struct {
	k    *ecdsa.PublicKey
	spec curveSpec
}

// verify a signature given the hash
func (v *ECDSAVerifier) VerifyHash(h, sig []byte) (err error) {
	if len(sig) != v.spec.signatureSize() {
		log.WithFields(logger.Fields{
			"hash_length": len(h),
			"sig_length":  len(sig),
		}).Error("Bad ECDSA signature size")
		return types.ErrBadSignatureSize
	}
	r := new(big.Int).SetBytes(sig[:v.spec.size])
	s := new(big.Int).SetBytes(sig[v.spec.size:])
	if !ecdsa.Verify(v.k, h, r, s) {
		log.Warn("Invalid ECDSA signature")
		err = types.ErrInvalidSignature
	}
	return
}

// verify a block of data by hashing it and comparing the hash against the signature
func (v *ECDSAVerifier) Verify(data, sig []byte) error {
	hasher := v.spec.hash.New()
	hasher.Write(data)
	return v.VerifyHash(hasher.Sum(nil), sig)
}
