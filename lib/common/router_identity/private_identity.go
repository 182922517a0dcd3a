package router_identity

import (
	"github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/go-ssu/lib/crypto/dsa"
	"github.com/go-i2p/go-ssu/lib/crypto/ecdsa"
	"github.com/go-i2p/go-ssu/lib/crypto/ed25519"
	"github.com/go-i2p/go-ssu/lib/crypto/types"
	"github.com/samber/oops"
)

// PrivateIdentity pairs a router identity with the signing key behind it.
type PrivateIdentity struct {
	Identity   *RouterIdentity
	SigningKey types.SigningPrivateKey
}

// Signer returns a signer for the identity's signing key.
func (p *PrivateIdentity) Signer() (types.Signer, error) {
	return p.SigningKey.NewSigner()
}

// GeneratePrivateIdentity creates a fresh identity of the given signing key type.
func GeneratePrivateIdentity(sigType int) (*PrivateIdentity, error) {
	var (
		priv types.SigningPrivateKey
		err  error
	)
	switch sigType {
	case KEYCERT_SIGN_DSA_SHA1:
		priv, err = dsa.GenerateDSAPrivateKey()
	case KEYCERT_SIGN_P256:
		priv, err = ecdsa.GenerateP256()
	case KEYCERT_SIGN_P384:
		priv, err = ecdsa.GenerateP384()
	case KEYCERT_SIGN_P521:
		priv, err = ecdsa.GenerateP521()
	case KEYCERT_SIGN_ED25519:
		priv, err = ed25519.GenerateEd25519Key()
	default:
		return nil, oops.Wrapf(ErrUnsupportedSignatureType, "type %d", sigType)
	}
	if err != nil {
		return nil, oops.Wrapf(err, "generating signing key")
	}
	return NewPrivateIdentity(priv, sigType)
}

// NewPrivateIdentity wraps an existing signing key in a fresh identity.
func NewPrivateIdentity(priv types.SigningPrivateKey, sigType int) (*PrivateIdentity, error) {
	pub, err := priv.Public()
	if err != nil {
		return nil, err
	}
	encKey := make([]byte, KEYS_AND_CERT_PUBKEY_SIZE)
	if _, err := rand.Read(encKey); err != nil {
		return nil, oops.Wrapf(err, "filling public key area")
	}
	ri, err := NewRouterIdentity(pub, sigType, encKey)
	if err != nil {
		return nil, err
	}
	return &PrivateIdentity{Identity: ri, SigningKey: priv}, nil
}
