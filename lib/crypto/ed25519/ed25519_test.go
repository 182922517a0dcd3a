package ed25519

import (
	"testing"

	"github.com/go-i2p/go-ssu/lib/crypto/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEd25519_SignVerify(t *testing.T) {
	priv, err := GenerateEd25519Key()
	require.NoError(t, err)
	signer, err := priv.NewSigner()
	require.NoError(t, err)
	pub, err := priv.Public()
	require.NoError(t, err)
	assert.Equal(t, PublicKeySize, pub.Len())

	v, err := pub.NewVerifier()
	require.NoError(t, err)

	msg := []byte("session confirmed")
	sig, err := signer.Sign(msg)
	require.NoError(t, err)
	assert.NoError(t, v.Verify(msg, sig))

	msg[0] ^= 1
	assert.ErrorIs(t, v.Verify(msg, sig), types.ErrInvalidSignature)
	assert.ErrorIs(t, v.Verify(msg, sig[:10]), types.ErrBadSignatureSize)
}

func TestEd25519_BadKeySizes(t *testing.T) {
	_, err := Ed25519PublicKey(make([]byte, 31)).NewVerifier()
	assert.ErrorIs(t, err, types.ErrInvalidKeyFormat)

	_, err = Ed25519PrivateKey(make([]byte, 10)).NewSigner()
	assert.Error(t, err)
}
