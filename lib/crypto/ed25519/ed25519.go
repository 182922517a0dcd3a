// Package ed25519 implements the I2P EdDSA_SHA512_Ed25519 signature type.
// Signatures are computed over the message itself; SHA-512 is internal to
// EdDSA, so VerifyHash/SignHash treat their input as the message.
package ed25519

import (
	"crypto/rand"

	"github.com/go-i2p/go-ssu/lib/crypto/types"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"golang.org/x/crypto/ed25519"
)

var log = logger.GetGoI2PLogger()

const (
	PublicKeySize  = ed25519.PublicKeySize
	PrivateKeySize = ed25519.PrivateKeySize
	SignatureSize  = ed25519.SignatureSize
	SeedSize       = ed25519.SeedSize
)

type Ed25519PublicKey []byte

func (k Ed25519PublicKey) NewVerifier() (types.Verifier, error) {
	if len(k) != PublicKeySize {
		return nil, types.ErrInvalidKeyFormat
	}
	return &Ed25519Verifier{k: ed25519.PublicKey(k)}, nil
}

func (k Ed25519PublicKey) Len() int {
	return len(k)
}

func (k Ed25519PublicKey) Bytes() []byte {
	return k
}

// Ed25519PrivateKey holds the 64-byte expanded form (seed ‖ public key).
type Ed25519PrivateKey []byte

func (k Ed25519PrivateKey) NewSigner() (types.Signer, error) {
	if len(k) != PrivateKeySize {
		return nil, oops.Errorf("failed to create signer: invalid ed25519 private key size %d", len(k))
	}
	return &Ed25519Signer{k: ed25519.PrivateKey(k)}, nil
}

func (k Ed25519PrivateKey) Len() int {
	return len(k)
}

func (k Ed25519PrivateKey) Public() (types.SigningPublicKey, error) {
	if len(k) != PrivateKeySize {
		return nil, types.ErrInvalidKeyFormat
	}
	pub := ed25519.PrivateKey(k).Public().(ed25519.PublicKey)
	return Ed25519PublicKey(pub), nil
}

// GenerateEd25519Key creates a fresh signing key.
func GenerateEd25519Key() (Ed25519PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, oops.Wrapf(err, "failed to generate ed25519 key")
	}
	return Ed25519PrivateKey(priv), nil
}

type Ed25519Verifier struct {
	k ed25519.PublicKey
}

func (v *Ed25519Verifier) VerifyHash(h, sig []byte) error {
	return v.Verify(h, sig)
}

func (v *Ed25519Verifier) Verify(data, sig []byte) error {
	if len(sig) != SignatureSize {
		log.WithField("sig_length", len(sig)).Error("Bad Ed25519 signature size")
		return types.ErrBadSignatureSize
	}
	if !ed25519.Verify(v.k, data, sig) {
		log.Warn("Invalid Ed25519 signature")
		return types.ErrInvalidSignature
	}
	return nil
}

type Ed25519Signer struct {
	k ed25519.PrivateKey
}

func (s *Ed25519Signer) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(s.k, data), nil
}

func (s *Ed25519Signer) SignHash(h []byte) ([]byte, error) {
	return s.Sign(h)
}

func (s *Ed25519Signer) SignatureSize() int {
	return SignatureSize
}
