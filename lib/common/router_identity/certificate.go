package router_identity

import (
	"encoding/binary"

	log "github.com/sirupsen/logrus"
)

/*
I2P Certificate
https://geti2p.net/spec/common-structures#certificate

+----+----+----+----+----+-//
|type| length  | payload
+----+----+----+----+----+-//

A KEY certificate payload starts with the signing key type (2 bytes) and the
crypto key type (2 bytes), followed by any signing key bytes that did not fit
in the 128 byte signing key area.
*/

// Certificate types
const (
	CERT_NULL = iota
	CERT_HASHCASH
	CERT_HIDDEN
	CERT_SIGNED
	CERT_MULTIPLE
	CERT_KEY
)

// Key Certificate Signing Key Types
const (
	KEYCERT_SIGN_DSA_SHA1 = iota
	KEYCERT_SIGN_P256
	KEYCERT_SIGN_P384
	KEYCERT_SIGN_P521
	KEYCERT_SIGN_RSA2048
	KEYCERT_SIGN_RSA3072
	KEYCERT_SIGN_RSA4096
	KEYCERT_SIGN_ED25519
	KEYCERT_SIGN_ED25519PH
)

const KEYCERT_CRYPTO_ELG = 0

// SigningPublicKey sizes for Signing Key Types
const (
	KEYCERT_SIGN_DSA_SHA1_SIZE = 128
	KEYCERT_SIGN_P256_SIZE     = 64
	KEYCERT_SIGN_P384_SIZE     = 96
	KEYCERT_SIGN_P521_SIZE     = 132
	KEYCERT_SIGN_ED25519_SIZE  = 32
)

const (
	CERT_MIN_SIZE    = 3
	KEYCERT_MIN_SIZE = 4
)

// Certificate is a parsed certificate. Payload aliases the input it was read from.
type Certificate struct {
	Type    uint8
	Payload []byte
}

// ReadCertificate parses a certificate and returns the remaining bytes.
func ReadCertificate(data []byte) (cert Certificate, remainder []byte, err error) {
	if len(data) < CERT_MIN_SIZE {
		log.WithFields(log.Fields{
			"at":       "ReadCertificate",
			"data_len": len(data),
			"reason":   "too short",
		}).Debug("certificate parse failed")
		err = ErrCertificateTooShort
		return
	}
	length := int(binary.BigEndian.Uint16(data[1:3]))
	if len(data) < CERT_MIN_SIZE+length {
		err = ErrCertificateTooShort
		return
	}
	cert.Type = data[0]
	cert.Payload = data[CERT_MIN_SIZE : CERT_MIN_SIZE+length]
	remainder = data[CERT_MIN_SIZE+length:]
	return
}

// Bytes serializes the certificate.
func (c Certificate) Bytes() []byte {
	out := make([]byte, CERT_MIN_SIZE+len(c.Payload))
	out[0] = c.Type
	binary.BigEndian.PutUint16(out[1:3], uint16(len(c.Payload)))
	copy(out[CERT_MIN_SIZE:], c.Payload)
	return out
}

// SigningKeyType returns the signing key type named by the certificate.
// Anything other than a KEY certificate implies DSA-SHA1.
func (c Certificate) SigningKeyType() (int, error) {
	if c.Type != CERT_KEY {
		return KEYCERT_SIGN_DSA_SHA1, nil
	}
	if len(c.Payload) < KEYCERT_MIN_SIZE {
		return 0, ErrCertificateTooShort
	}
	return int(binary.BigEndian.Uint16(c.Payload[0:2])), nil
}

// excessSigningKey returns signing key bytes carried in the certificate payload.
func (c Certificate) excessSigningKey() []byte {
	if c.Type != CERT_KEY || len(c.Payload) <= KEYCERT_MIN_SIZE {
		return nil
	}
	return c.Payload[KEYCERT_MIN_SIZE:]
}

func keyCertificate(sigType int, excess []byte) Certificate {
	payload := make([]byte, KEYCERT_MIN_SIZE+len(excess))
	binary.BigEndian.PutUint16(payload[0:2], uint16(sigType))
	binary.BigEndian.PutUint16(payload[2:4], KEYCERT_CRYPTO_ELG)
	copy(payload[KEYCERT_MIN_SIZE:], excess)
	return Certificate{Type: CERT_KEY, Payload: payload}
}
