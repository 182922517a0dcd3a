// Package ecdsa implements the I2P ECDSA signature types (P-256/SHA-256,
// P-384/SHA-384, P-521/SHA-512). Keys and signatures use the raw fixed-width
// big-endian encodings from the common structures spec: public keys are X ‖ Y,
// signatures are r ‖ s.
package ecdsa

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"

	"github.com/go-i2p/go-ssu/lib/crypto/types"
	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// curveSpec binds a curve to its digest and field width.
type curveSpec struct {
	curve elliptic.Curve
	hash  crypto.Hash
	size  int
}

var (
	p256 = curveSpec{elliptic.P256(), crypto.SHA256, 32}
	p384 = curveSpec{elliptic.P384(), crypto.SHA384, 48}
	p521 = curveSpec{elliptic.P521(), crypto.SHA512, 66}
)

func (c curveSpec) publicKeySize() int { return 2 * c.size }
func (c curveSpec) signatureSize() int { return 2 * c.size }

func (c curveSpec) newVerifier(raw []byte) (types.Verifier, error) {
	if len(raw) != c.publicKeySize() {
		return nil, types.ErrInvalidKeyFormat
	}
	uncompressed := make([]byte, 0, len(raw)+1)
	uncompressed = append(uncompressed, 0x04)
	uncompressed = append(uncompressed, raw...)
	pub, err := ecdsa.ParseUncompressedPublicKey(c.curve, uncompressed)
	if err != nil {
		log.WithError(err).Error("Invalid ECDSA key format")
		return nil, types.ErrInvalidKeyFormat
	}
	return &ECDSAVerifier{k: pub, spec: c}, nil
}

func (c curveSpec) newSigner(raw []byte) (*ECDSASigner, error) {
	priv, err := ecdsa.ParseRawPrivateKey(c.curve, raw)
	if err != nil {
		return nil, types.ErrInvalidKeyFormat
	}
	return &ECDSASigner{k: priv, spec: c}, nil
}

func (c curveSpec) generate() ([]byte, error) {
	priv, err := ecdsa.GenerateKey(c.curve, rand.Reader)
	if err != nil {
		return nil, err
	}
	return priv.Bytes()
}

func (c curveSpec) public(raw []byte) ([]byte, error) {
	priv, err := ecdsa.ParseRawPrivateKey(c.curve, raw)
	if err != nil {
		return nil, types.ErrInvalidKeyFormat
	}
	full, err := priv.PublicKey.Bytes()
	if err != nil {
		return nil, err
	}
	// strip the 0x04 uncompressed point marker
	return full[1:], nil
}
