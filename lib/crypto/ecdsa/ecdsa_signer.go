package ecdsa

import (
	"crypto/ecdsa"
	"crypto/rand"
)

type ECDSASigner struct {
	k    *ecdsa.PrivateKey
	spec curveSpec
}

func (s *ECDSASigner) Sign(data []byte) ([]byte, error) {
	hasher := s.spec.hash.New()
	hasher.Write(data)
	return s.SignHash(hasher.Sum(nil))
}

func (s *ECDSASigner) SignHash(h []byte) ([]byte, error) {
	r, ss, err := ecdsa.Sign(rand.Reader, s.k, h)
	if err != nil {
		log.WithError(err).Error("Failed to create ECDSA signature")
		return nil, err
	}
	sig := make([]byte, s.spec.signatureSize())
	r.FillBytes(sig[:s.spec.size])
	ss.FillBytes(sig[s.spec.size:])
	return sig, nil
}

func (s *ECDSASigner) SignatureSize() int {
	return s.spec.signatureSize()
}
