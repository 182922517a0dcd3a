package dh

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDH_AgreementIsSymmetric(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)

	ka, err := alice.DeriveSessionKeys(bob.PublicBytes())
	require.NoError(t, err)
	kb, err := bob.DeriveSessionKeys(alice.PublicBytes())
	require.NoError(t, err)

	assert.Equal(t, ka, kb)
	assert.NotEqual(t, ka.SessionKey, ka.MACKey)
}

func TestDH_RejectsDegeneratePublicValues(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	zero := make([]byte, PublicKeySize)
	_, err = kp.SharedSecret(zero)
	assert.ErrorIs(t, err, ErrInvalidPublicKey)

	oneVal := make([]byte, PublicKeySize)
	oneVal[PublicKeySize-1] = 1
	_, err = kp.SharedSecret(oneVal)
	assert.ErrorIs(t, err, ErrInvalidPublicKey)

	_, err = kp.SharedSecret(make([]byte, 10))
	assert.ErrorIs(t, err, ErrInvalidPublicKey)

	pMinusOne := make([]byte, PublicKeySize)
	new(big.Int).Sub(prime, one).FillBytes(pMinusOne)
	_, err = kp.SharedSecret(pMinusOne)
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestKeyPool_GetAndClose(t *testing.T) {
	pool := NewKeyPool(2)
	require.Eventually(t, func() bool { return pool.Available() > 0 }, 5*time.Second, 10*time.Millisecond)

	a, err := pool.Get()
	require.NoError(t, err)
	b, err := pool.Get()
	require.NoError(t, err)
	assert.NotEqual(t, a.PublicBytes(), b.PublicBytes())

	pool.Close()
	pool.Close()
	_, err = pool.Get()
	assert.ErrorIs(t, err, ErrPoolClosed)
}
