package dsa

import (
	"crypto/dsa"
	"crypto/sha1"
	"math/big"

	"github.com/go-i2p/go-ssu/lib/crypto/types"
	"github.com/go-i2p/logger"
)

type DSAVerifier struct {
	k *dsa.PublicKey
}

// verify data with a dsa public key
func (v *DSAVerifier) Verify(data, sig []byte) (err error) {
	h := sha1.Sum(data)
	err = v.VerifyHash(h[:], sig)
	return
}

// verify hash of data with a dsa public key
func (v *DSAVerifier) VerifyHash(h, sig []byte) (err error) {
	if len(sig) != SignatureSize {
		log.WithFields(logger.Fields{
			"hash_length": len(h),
			"sig_length":  len(sig),
		}).Error("Bad DSA signature size")
		return types.ErrBadSignatureSize
	}
	r := new(big.Int).SetBytes(sig[:20])
	s := new(big.Int).SetBytes(sig[20:])
	if !dsa.Verify(v.k, h, r, s) {
		log.Warn("Invalid DSA signature")
		err = types.ErrInvalidSignature
	}
	return
}
