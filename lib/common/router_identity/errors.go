package router_identity

import "errors"

var (
	ErrCertificateTooShort      = errors.New("certificate data too short")
	ErrIdentityTooShort         = errors.New("router identity data too short")
	ErrUnsupportedSignatureType = errors.New("unsupported signature type")
	ErrSigningKeyMismatch       = errors.New("signing key does not match certificate")
)
