// Package router_identity implements the I2P RouterIdentity common data
// structure as far as the SSU handshake needs it: parsing, hashing and
// selecting a signature verifier from the key certificate.
package router_identity

import (
	"github.com/go-i2p/common/data"
	"github.com/go-i2p/go-ssu/lib/crypto/dsa"
	"github.com/go-i2p/go-ssu/lib/crypto/ecdsa"
	"github.com/go-i2p/go-ssu/lib/crypto/ed25519"
	"github.com/go-i2p/go-ssu/lib/crypto/types"
	"github.com/samber/oops"
	log "github.com/sirupsen/logrus"
)

/*
[RouterIdentity]
Accurate for version 0.9.49

+----+----+----+----+----+----+----+----+
| public_key (256)                      |
~                                       ~
+----+----+----+----+----+----+----+----+
| padding ‖ signing_key (128)           |
~                                       ~
+----+----+----+----+----+----+----+----+
| certificate                           |
+----+----+----+-//

Signing keys shorter than 128 bytes are right aligned in their area, the
leading bytes are padding. Longer keys spill into the key certificate.
*/

const (
	KEYS_AND_CERT_PUBKEY_SIZE = 256
	KEYS_AND_CERT_SPK_SIZE    = 128
	KEYS_AND_CERT_DATA_SIZE   = KEYS_AND_CERT_PUBKEY_SIZE + KEYS_AND_CERT_SPK_SIZE
	KEYS_AND_CERT_MIN_SIZE    = KEYS_AND_CERT_DATA_SIZE + CERT_MIN_SIZE
)

// RouterIdentity is the representation of an I2P RouterIdentity.
type RouterIdentity struct {
	raw     []byte
	cert    Certificate
	sigType int
	hash    data.Hash
}

// ReadRouterIdentity returns a RouterIdentity from a []byte.
// The remaining bytes after the identity are also returned.
func ReadRouterIdentity(b []byte) (ri *RouterIdentity, remainder []byte, err error) {
	if len(b) < KEYS_AND_CERT_MIN_SIZE {
		log.WithFields(log.Fields{
			"at":       "ReadRouterIdentity",
			"data_len": len(b),
			"required": KEYS_AND_CERT_MIN_SIZE,
		}).Debug("router identity too short")
		return nil, b, ErrIdentityTooShort
	}
	cert, remainder, err := ReadCertificate(b[KEYS_AND_CERT_DATA_SIZE:])
	if err != nil {
		return nil, b, err
	}
	sigType, err := cert.SigningKeyType()
	if err != nil {
		return nil, b, err
	}
	size := len(b) - len(remainder)
	raw := make([]byte, size)
	copy(raw, b[:size])
	cert.Payload = raw[KEYS_AND_CERT_DATA_SIZE+CERT_MIN_SIZE:]
	ri = &RouterIdentity{
		raw:     raw,
		cert:    cert,
		sigType: sigType,
		hash:    data.HashData(raw),
	}
	return ri, remainder, nil
}

// Bytes returns the serialized identity.
func (ri *RouterIdentity) Bytes() []byte {
	return ri.raw
}

// Hash returns the SHA-256 of the serialized identity.
func (ri *RouterIdentity) Hash() data.Hash {
	return ri.hash
}

// Certificate returns the identity's certificate.
func (ri *RouterIdentity) Certificate() Certificate {
	return ri.cert
}

// SignatureType returns the signing key type from the key certificate.
func (ri *RouterIdentity) SignatureType() int {
	return ri.sigType
}

// SignatureSize returns the length of signatures made by this identity.
func (ri *RouterIdentity) SignatureSize() (int, error) {
	return SignatureSize(ri.sigType)
}

// SigningPublicKey reconstructs the signing public key named by the certificate.
func (ri *RouterIdentity) SigningPublicKey() (types.SigningPublicKey, error) {
	size, err := signingKeySize(ri.sigType)
	if err != nil {
		return nil, err
	}
	area := ri.raw[KEYS_AND_CERT_PUBKEY_SIZE:KEYS_AND_CERT_DATA_SIZE]
	var key []byte
	if size <= KEYS_AND_CERT_SPK_SIZE {
		key = area[KEYS_AND_CERT_SPK_SIZE-size:]
	} else {
		excess := ri.cert.excessSigningKey()
		if len(excess) < size-KEYS_AND_CERT_SPK_SIZE {
			return nil, ErrCertificateTooShort
		}
		key = append(append([]byte{}, area...), excess[:size-KEYS_AND_CERT_SPK_SIZE]...)
	}
	switch ri.sigType {
	case KEYCERT_SIGN_DSA_SHA1:
		var k dsa.DSAPublicKey
		copy(k[:], key)
		return k, nil
	case KEYCERT_SIGN_P256:
		var k ecdsa.ECP256PublicKey
		copy(k[:], key)
		return k, nil
	case KEYCERT_SIGN_P384:
		var k ecdsa.ECP384PublicKey
		copy(k[:], key)
		return k, nil
	case KEYCERT_SIGN_P521:
		var k ecdsa.ECP521PublicKey
		copy(k[:], key)
		return k, nil
	case KEYCERT_SIGN_ED25519:
		return ed25519.Ed25519PublicKey(append([]byte{}, key...)), nil
	}
	return nil, ErrUnsupportedSignatureType
}

// NewVerifier returns a verifier for signatures made by this identity.
func (ri *RouterIdentity) NewVerifier() (types.Verifier, error) {
	spk, err := ri.SigningPublicKey()
	if err != nil {
		return nil, err
	}
	return spk.NewVerifier()
}

// NewRouterIdentity builds an identity around a signing public key. The
// encryption key area is filled with the given bytes, which SSU never reads.
func NewRouterIdentity(spk types.SigningPublicKey, sigType int, encryptionKey []byte) (*RouterIdentity, error) {
	size, err := signingKeySize(sigType)
	if err != nil {
		return nil, err
	}
	if spk.Len() != size {
		return nil, oops.Wrapf(ErrSigningKeyMismatch, "type %d wants %d bytes, got %d", sigType, size, spk.Len())
	}
	keyBytes := spk.Bytes()
	buf := make([]byte, KEYS_AND_CERT_DATA_SIZE)
	copy(buf[:KEYS_AND_CERT_PUBKEY_SIZE], encryptionKey)

	var cert Certificate
	switch {
	case sigType == KEYCERT_SIGN_DSA_SHA1:
		copy(buf[KEYS_AND_CERT_PUBKEY_SIZE:], keyBytes)
		cert = Certificate{Type: CERT_NULL}
	case size <= KEYS_AND_CERT_SPK_SIZE:
		copy(buf[KEYS_AND_CERT_DATA_SIZE-size:], keyBytes)
		cert = keyCertificate(sigType, nil)
	default:
		copy(buf[KEYS_AND_CERT_PUBKEY_SIZE:], keyBytes[:KEYS_AND_CERT_SPK_SIZE])
		cert = keyCertificate(sigType, keyBytes[KEYS_AND_CERT_SPK_SIZE:])
	}
	ri, _, err := ReadRouterIdentity(append(buf, cert.Bytes()...))
	return ri, err
}

// SignatureSize returns the signature length for a signing key type.
func SignatureSize(sigType int) (int, error) {
	switch sigType {
	case KEYCERT_SIGN_DSA_SHA1:
		return dsa.SignatureSize, nil
	case KEYCERT_SIGN_P256:
		return 64, nil
	case KEYCERT_SIGN_P384:
		return 96, nil
	case KEYCERT_SIGN_P521:
		return 132, nil
	case KEYCERT_SIGN_ED25519:
		return ed25519.SignatureSize, nil
	}
	return 0, oops.Wrapf(ErrUnsupportedSignatureType, "type %d", sigType)
}

func signingKeySize(sigType int) (int, error) {
	switch sigType {
	case KEYCERT_SIGN_DSA_SHA1:
		return KEYCERT_SIGN_DSA_SHA1_SIZE, nil
	case KEYCERT_SIGN_P256:
		return KEYCERT_SIGN_P256_SIZE, nil
	case KEYCERT_SIGN_P384:
		return KEYCERT_SIGN_P384_SIZE, nil
	case KEYCERT_SIGN_P521:
		return KEYCERT_SIGN_P521_SIZE, nil
	case KEYCERT_SIGN_ED25519:
		return KEYCERT_SIGN_ED25519_SIZE, nil
	}
	return 0, oops.Wrapf(ErrUnsupportedSignatureType, "type %d", sigType)
}
