package ecdsa

import "github.com/go-i2p/go-ssu/lib/crypto/types"

type (
	ECP256PublicKey  [64]byte
	ECP256PrivateKey [32]byte
	ECP384PublicKey  [96]byte
	ECP384PrivateKey [48]byte
	ECP521PublicKey  [132]byte
	ECP521PrivateKey [66]byte
)

func (k ECP256PublicKey) Len() int      { return len(k) }
func (k ECP256PublicKey) Bytes() []byte { return k[:] }
func (k ECP256PublicKey) NewVerifier() (types.Verifier, error) {
	return p256.newVerifier(k[:])
}

func (k ECP384PublicKey) Len() int      { return len(k) }
func (k ECP384PublicKey) Bytes() []byte { return k[:] }
func (k ECP384PublicKey) NewVerifier() (types.Verifier, error) {
	return p384.newVerifier(k[:])
}

func (k ECP521PublicKey) Len() int      { return len(k) }
func (k ECP521PublicKey) Bytes() []byte { return k[:] }
func (k ECP521PublicKey) NewVerifier() (types.Verifier, error) {
	return p521.newVerifier(k[:])
}

func (k ECP256PrivateKey) Len() int { return len(k) }
func (k ECP256PrivateKey) NewSigner() (types.Signer, error) {
	return p256.newSigner(k[:])
}
func (k ECP256PrivateKey) Public() (types.SigningPublicKey, error) {
	var pk ECP256PublicKey
	raw, err := p256.public(k[:])
	if err != nil {
		return nil, err
	}
	copy(pk[:], raw)
	return pk, nil
}

func (k ECP384PrivateKey) Len() int { return len(k) }
func (k ECP384PrivateKey) NewSigner() (types.Signer, error) {
	return p384.newSigner(k[:])
}
func (k ECP384PrivateKey) Public() (types.SigningPublicKey, error) {
	var pk ECP384PublicKey
	raw, err := p384.public(k[:])
	if err != nil {
		return nil, err
	}
	copy(pk[:], raw)
	return pk, nil
}

func (k ECP521PrivateKey) Len() int { return len(k) }
func (k ECP521PrivateKey) NewSigner() (types.Signer, error) {
	return p521.newSigner(k[:])
}
func (k ECP521PrivateKey) Public() (types.SigningPublicKey, error) {
	var pk ECP521PublicKey
	raw, err := p521.public(k[:])
	if err != nil {
		return nil, err
	}
	copy(pk[:], raw)
	return pk, nil
}

// GenerateP256 creates a fresh P-256 private key.
func GenerateP256() (k ECP256PrivateKey, err error) {
	raw, err := p256.generate()
	if err == nil {
		copy(k[:], raw)
	}
	return
}

// GenerateP384 creates a fresh P-384 private key.
func GenerateP384() (k ECP384PrivateKey, err error) {
	raw, err := p384.generate()
	if err == nil {
		copy(k[:], raw)
	}
	return
}

// GenerateP521 creates a fresh P-521 private key.
func GenerateP521() (k ECP521PrivateKey, err error) {
	raw, err := p521.generate()
	if err == nil {
		copy(k[:], raw)
	}
	return
}
