// Package dh implements the 2048-bit Diffie-Hellman agreement used by the SSU
// handshake (the MODP group of RFC 3526, which is also the I2P ElGamal group)
// and a pool of precomputed keypairs that keeps modular exponentiation off the
// packet path.
package dh

import (
	"errors"
	"math/big"

	"github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

// PublicKeySize is the size of a serialized public value (X or Y).
const PublicKeySize = 256

// exponentSize is the length of the private exponent in bytes.
const exponentSize = 32

var (
	ErrInvalidPublicKey = errors.New("dh: public value out of range")
	ErrPoolClosed       = errors.New("dh: keypair pool closed")
)

var (
	prime = func() *big.Int {
		p, ok := new(big.Int).SetString(
			"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74"+
				"020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F1437"+
				"4FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED"+
				"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163BF05"+
				"98DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB"+
				"9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B"+
				"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF695581718"+
				"3995497CEA956AE515D2261898FA051015728E5A8AACAA68FFFFFFFFFFFFFFFF", 16)
		if !ok {
			panic("dh: bad prime constant")
		}
		return p
	}()
	generator = big.NewInt(2)
	one       = big.NewInt(1)
)

// KeyPair is an ephemeral DH keypair.
type KeyPair struct {
	private *big.Int
	public  [PublicKeySize]byte
}

// GenerateKeyPair creates a fresh ephemeral keypair.
func GenerateKeyPair() (*KeyPair, error) {
	buf := make([]byte, exponentSize)
	for {
		if _, err := rand.Read(buf); err != nil {
			return nil, oops.Wrapf(err, "dh: reading random exponent")
		}
		x := new(big.Int).SetBytes(buf)
		if x.Cmp(one) <= 0 {
			continue
		}
		kp := &KeyPair{private: x}
		new(big.Int).Exp(generator, x, prime).FillBytes(kp.public[:])
		return kp, nil
	}
}

// PublicBytes returns the 256-byte big-endian public value.
func (kp *KeyPair) PublicBytes() []byte {
	out := make([]byte, PublicKeySize)
	copy(out, kp.public[:])
	return out
}

// SharedSecret computes peer^x mod p. The peer value must lie in [2, p-2].
func (kp *KeyPair) SharedSecret(peer []byte) (*big.Int, error) {
	if len(peer) != PublicKeySize {
		return nil, ErrInvalidPublicKey
	}
	y := new(big.Int).SetBytes(peer)
	upper := new(big.Int).Sub(prime, one)
	if y.Cmp(one) <= 0 || y.Cmp(upper) >= 0 {
		return nil, ErrInvalidPublicKey
	}
	return new(big.Int).Exp(y, kp.private, prime), nil
}

// SessionKeys holds the symmetric keys derived from an agreement.
type SessionKeys struct {
	SessionKey [32]byte
	MACKey     [32]byte
}

// DeriveSessionKeys runs the agreement and splits the secret into the session
// and MAC keys. The secret is taken as a minimal two's-complement big-endian
// integer: a leading zero byte is prepended when its top bit is set.
func (kp *KeyPair) DeriveSessionKeys(peer []byte) (SessionKeys, error) {
	var keys SessionKeys
	secret, err := kp.SharedSecret(peer)
	if err != nil {
		return keys, err
	}
	b := secret.Bytes()
	if len(b) > 0 && b[0]&0x80 != 0 {
		b = append([]byte{0}, b...)
	}
	if len(b) < 64 {
		return keys, oops.Errorf("dh: shared secret too short (%d bytes)", len(b))
	}
	copy(keys.SessionKey[:], b[:32])
	copy(keys.MACKey[:], b[32:64])
	return keys, nil
}
