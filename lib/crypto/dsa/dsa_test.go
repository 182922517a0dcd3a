package dsa

import (
	"testing"

	"github.com/go-i2p/go-ssu/lib/crypto/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSA_SignVerify(t *testing.T) {
	priv, err := GenerateDSAPrivateKey()
	require.NoError(t, err)

	signer, err := priv.NewSigner()
	require.NoError(t, err)
	pub, err := priv.Public()
	require.NoError(t, err)
	verifier, err := pub.NewVerifier()
	require.NoError(t, err)

	data := []byte("session created signed tuple")
	sig, err := signer.Sign(data)
	require.NoError(t, err)
	assert.Len(t, sig, SignatureSize)

	assert.NoError(t, verifier.Verify(data, sig))

	data[0] ^= 0xFF
	assert.ErrorIs(t, verifier.Verify(data, sig), types.ErrInvalidSignature)
}

func TestDSA_BadSignatureSize(t *testing.T) {
	priv, err := GenerateDSAPrivateKey()
	require.NoError(t, err)
	pub, err := priv.Public()
	require.NoError(t, err)
	v, err := pub.NewVerifier()
	require.NoError(t, err)

	assert.ErrorIs(t, v.Verify([]byte("x"), make([]byte, 39)), types.ErrBadSignatureSize)
}

func TestDSA_ZeroPublicKeyRejected(t *testing.T) {
	var pub DSAPublicKey
	_, err := pub.NewVerifier()
	assert.ErrorIs(t, err, types.ErrInvalidKeyFormat)
}
